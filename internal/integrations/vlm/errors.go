package vlm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
)

// StatusError is a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// describeError renders SDK API errors in the same "HTTP <code>: <body>"
// shape as the raw-HTTP adapters.
func describeError(err error) string {
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return (&StatusError{Code: anthropicErr.StatusCode, Body: bodyOr(anthropicErr.RawJSON(), anthropicErr.Error())}).Error()
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return (&StatusError{Code: openaiErr.StatusCode, Body: bodyOr(openaiErr.RawJSON(), openaiErr.Error())}).Error()
	}
	return err.Error()
}

func bodyOr(body, fallback string) string {
	if strings.TrimSpace(body) == "" {
		return fallback
	}
	return body
}
