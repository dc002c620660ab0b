package vlm

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"peircevlm/internal/config"
	"peircevlm/internal/domain"
)

// Adapter sends one image and prompt to a model. Failures are folded into
// the returned result; Evaluate never panics on provider errors.
type Adapter interface {
	Evaluate(ctx context.Context, imagePath, prompt string, model domain.ModelConfig) domain.EvaluationResult
}

// generator is the provider-specific half of an adapter: one request, raw
// text back.
type generator interface {
	generate(ctx context.Context, img encodedImage, prompt string, model domain.ModelConfig) (completion, error)
}

type completion struct {
	Text         string
	FinishReason string
}

type adapter struct {
	provider string
	gen      generator
	now      func() time.Time
}

func (a adapter) Evaluate(ctx context.Context, imagePath, prompt string, model domain.ModelConfig) domain.EvaluationResult {
	img, err := loadImage(imagePath)
	if err != nil {
		return domain.FailedResult(model.ModelID, err.Error(), a.now())
	}
	out, err := a.gen.generate(ctx, img, prompt, model)
	if err != nil {
		log.Printf("vlm %s error model=%s err=%v", a.provider, model.ModelID, err)
		return domain.FailedResult(model.ModelID, describeError(err), a.now())
	}
	text := Clean(out.Text)
	if text == "" {
		log.Printf("vlm %s empty response model=%s finish=%s", a.provider, model.ModelID, out.FinishReason)
	} else {
		log.Printf("vlm %s response model=%s size=%d finish=%s", a.provider, model.ModelID, len(text), out.FinishReason)
	}
	res := domain.SucceededResult(model.ModelID, text, a.now())
	res.FinishReason = out.FinishReason
	return res
}

// Dispatcher is the table from api_family to adapter.
type Dispatcher struct {
	adapters map[domain.APIFamily]Adapter
}

// NewDispatcher builds one adapter per family from the provider settings in
// cfg. All adapters share httpClient.
func NewDispatcher(cfg config.Config, httpClient *http.Client) *Dispatcher {
	return &Dispatcher{adapters: map[domain.APIFamily]Adapter{
		domain.APIFamilyAnthropic:     NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, httpClient),
		domain.APIFamilyGoogle:        NewGemini(cfg.GoogleAPIKey, cfg.GoogleBaseURL, httpClient),
		domain.APIFamilyOllama:        NewOllama(cfg.OllamaURL, httpClient),
		domain.APIFamilyOpenRouter:    NewOpenAICompatible("openrouter", cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, httpClient),
		domain.APIFamilyAcademicCloud: NewOpenAICompatible("academiccloud", cfg.AcademicCloudAPIKey, cfg.AcademicCloudBaseURL, httpClient),
	}}
}

// NewDispatcherWith is for callers that bring their own adapters.
func NewDispatcherWith(adapters map[domain.APIFamily]Adapter) *Dispatcher {
	return &Dispatcher{adapters: adapters}
}

func (d *Dispatcher) For(family domain.APIFamily) (Adapter, error) {
	a, ok := d.adapters[family]
	if !ok {
		return nil, fmt.Errorf("no adapter for api_family '%s'", family)
	}
	return a, nil
}

// Evaluate routes to the adapter for model.APIFamily. An unknown family is
// reported as a failed result so batch callers keep going; use For to
// reject it up front.
func (d *Dispatcher) Evaluate(ctx context.Context, imagePath, prompt string, model domain.ModelConfig) domain.EvaluationResult {
	a, err := d.For(model.APIFamily)
	if err != nil {
		return domain.FailedResult(model.ModelID, err.Error(), time.Now())
	}
	return a.Evaluate(ctx, imagePath, prompt, model)
}
