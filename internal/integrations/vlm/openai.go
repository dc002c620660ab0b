package vlm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"peircevlm/internal/domain"
)

type openAIGenerator struct {
	client openai.Client
}

// NewOpenAICompatible serves every chat-completions endpoint (OpenRouter,
// AcademicCloud). The image travels as a data URI.
func NewOpenAICompatible(provider, apiKey, baseURL string, httpClient *http.Client) Adapter {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(withTrailingSlash(baseURL)),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)
	return adapter{provider: provider, gen: openAIGenerator{client: client}, now: time.Now}
}

func (g openAIGenerator) generate(ctx context.Context, img encodedImage, prompt string, model domain.ModelConfig) (completion, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model.ModelID),
		MaxTokens:   openai.Int(int64(model.MaxTokens)),
		Temperature: openai.Float(0),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: img.DataURI(),
				}),
			}),
		},
	})
	if err != nil {
		return completion{}, fmt.Errorf("chat completions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return completion{}, fmt.Errorf("no choices in chat completion response")
	}
	choice := resp.Choices[0]
	return completion{Text: choice.Message.Content, FinishReason: string(choice.FinishReason)}, nil
}
