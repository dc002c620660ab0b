package vlm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"peircevlm/internal/domain"
)

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Images  []string      `json:"images"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaGenerator struct {
	baseURL string
	client  *http.Client
}

// NewOllama targets a local /api/generate endpoint; no credential.
func NewOllama(baseURL string, httpClient *http.Client) Adapter {
	return adapter{
		provider: "ollama",
		gen:      ollamaGenerator{baseURL: strings.TrimRight(baseURL, "/"), client: httpClient},
		now:      time.Now,
	}
}

func (g ollamaGenerator) generate(ctx context.Context, img encodedImage, prompt string, model domain.ModelConfig) (completion, error) {
	bodyBytes, err := json.Marshal(ollamaRequest{
		Model:   model.ModelID,
		Prompt:  prompt,
		Images:  []string{img.Data},
		Stream:  false,
		Options: ollamaOptions{Temperature: 0, NumPredict: model.MaxTokens},
	})
	if err != nil {
		return completion{}, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return completion{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := doJSON(g.client, req)
	if err != nil {
		return completion{}, err
	}
	if msg := gjson.GetBytes(respBody, "error"); msg.Exists() {
		return completion{}, fmt.Errorf("ollama error: %s", msg.String())
	}
	return completion{
		Text:         gjson.GetBytes(respBody, "response").String(),
		FinishReason: gjson.GetBytes(respBody, "done_reason").String(),
	}, nil
}
