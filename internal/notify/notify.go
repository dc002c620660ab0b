package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/slack-go/slack"

	"peircevlm/internal/config"
	"peircevlm/internal/domain"
)

// Slack posts run summaries either through an incoming webhook or as the
// bot user into a channel. The webhook wins when both are configured.
type Slack struct {
	api        *slack.Client
	channelID  string
	webhookURL string
	httpClient *http.Client
}

// FromConfig returns nil when Slack is not configured.
func FromConfig(cfg config.Config, httpClient *http.Client) *Slack {
	if !cfg.SlackConfigured() {
		return nil
	}
	return NewSlack(cfg.SlackWebhookURL, cfg.SlackBotToken, cfg.SlackChannelID, httpClient)
}

func NewSlack(webhookURL, botToken, channelID string, httpClient *http.Client, opts ...slack.Option) *Slack {
	s := &Slack{webhookURL: webhookURL, channelID: channelID, httpClient: httpClient}
	if botToken != "" {
		opts = append([]slack.Option{slack.OptionHTTPClient(httpClient)}, opts...)
		s.api = slack.New(botToken, opts...)
	}
	return s
}

func (s *Slack) Post(ctx context.Context, text string) error {
	if s.webhookURL != "" {
		if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.httpClient, &slack.WebhookMessage{Text: text}); err != nil {
			return fmt.Errorf("slack webhook: %w", err)
		}
		return nil
	}
	if s.api == nil {
		return fmt.Errorf("slack not configured")
	}
	if _, _, err := s.api.PostMessageContext(ctx, s.channelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}

// RunCompleted is the evaluation driver's completion hook. Posting errors
// are logged and swallowed.
func (s *Slack) RunCompleted(ctx context.Context, model domain.ModelConfig, summary domain.RunSummary, runDir string) {
	if s == nil {
		return
	}
	if err := s.Post(ctx, FormatRunSummary(model, summary, runDir)); err != nil {
		log.Printf("notify run summary failed model=%s err=%v", model.Name, err)
	}
}

func FormatRunSummary(model domain.ModelConfig, summary domain.RunSummary, runDir string) string {
	status := "complete"
	if summary.Failed > 0 {
		status = "complete with failures"
	}
	return fmt.Sprintf("Evaluation %s: %s (%s) prompt=%s diagrams=%d ok=%d failed=%d dir=%s",
		status, model.Label(), summary.Model, summary.Prompt,
		summary.TotalDiagrams, summary.Successful, summary.Failed, runDir)
}
