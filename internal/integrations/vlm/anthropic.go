package vlm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"peircevlm/internal/domain"
)

type anthropicGenerator struct {
	client anthropic.Client
}

// NewAnthropic returns the messages-API adapter. SDK retries are off: a
// failed diagram is left for a resumed run.
func NewAnthropic(apiKey, baseURL string, httpClient *http.Client) Adapter {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(withTrailingSlash(baseURL)),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)
	return adapter{provider: "anthropic", gen: anthropicGenerator{client: client}, now: time.Now}
}

func (g anthropicGenerator) generate(ctx context.Context, img encodedImage, prompt string, model domain.ModelConfig) (completion, error) {
	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model.ModelID),
		MaxTokens:   int64(model.MaxTokens),
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(img.MIMEType, img.Data),
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		return completion{}, fmt.Errorf("anthropic messages: %w", err)
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			return completion{Text: block.Text, FinishReason: string(message.StopReason)}, nil
		}
	}
	return completion{}, fmt.Errorf("no text content in anthropic response")
}

func withTrailingSlash(u string) string {
	return strings.TrimRight(u, "/") + "/"
}
