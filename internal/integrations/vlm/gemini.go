package vlm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"peircevlm/internal/domain"
)

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiGenerator struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGemini talks to the generateContent REST endpoint directly.
func NewGemini(apiKey, baseURL string, httpClient *http.Client) Adapter {
	return adapter{
		provider: "google",
		gen:      geminiGenerator{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: httpClient},
		now:      time.Now,
	}
}

func (g geminiGenerator) generate(ctx context.Context, img encodedImage, prompt string, model domain.ModelConfig) (completion, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{
			{Text: prompt},
			{InlineData: &geminiInlineData{MIMEType: img.MIMEType, Data: img.Data}},
		}}},
		GenerationConfig: geminiGenerationConfig{Temperature: 0, MaxOutputTokens: model.MaxTokens},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return completion{}, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, url.PathEscape(model.ModelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return completion{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	respBody, err := doJSON(g.client, req)
	if err != nil {
		return completion{}, err
	}

	candidate := gjson.GetBytes(respBody, "candidates.0")
	if !candidate.Exists() {
		return completion{}, fmt.Errorf("no candidates in response: %s", truncate(string(respBody), 500))
	}
	var text strings.Builder
	for _, part := range candidate.Get("content.parts").Array() {
		if part.Get("thought").Bool() {
			continue
		}
		text.WriteString(part.Get("text").String())
	}
	finish := candidate.Get("finishReason").String()
	if text.Len() == 0 && !candidate.Get("content.parts").Exists() {
		return completion{}, fmt.Errorf("no text in response (finish=%s)", finish)
	}
	return completion{Text: text.String(), FinishReason: finish}, nil
}

// doJSON sends req and returns the body of a 2xx response. Any other
// status becomes a *StatusError carrying the body.
func doJSON(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("malformed response body: %s", truncate(string(body), 500))
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
