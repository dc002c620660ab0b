package domain

import "time"

// EvaluationResult is the outcome of one (diagram, model, prompt) call.
// Response is meaningful only when Success is true, Error only when it is false.
type EvaluationResult struct {
	Success      bool   `json:"success"`
	Response     string `json:"response,omitempty"`
	Error        string `json:"error,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Model        string `json:"model"`
	Timestamp    string `json:"timestamp"`
}

func SucceededResult(modelID, response string, now time.Time) EvaluationResult {
	return EvaluationResult{
		Success:   true,
		Response:  response,
		Model:     modelID,
		Timestamp: now.Format(TimestampLayout),
	}
}

func FailedResult(modelID, errText string, now time.Time) EvaluationResult {
	return EvaluationResult{
		Success:   false,
		Error:     errText,
		Model:     modelID,
		Timestamp: now.Format(TimestampLayout),
	}
}

const (
	TimestampLayout = "2006-01-02T15:04:05.000000"
	RunStampLayout  = "20060102_150405"
)

// ResultFile is the per-diagram document written for every successful call.
type ResultFile struct {
	DiagramSegment
	Prompt     string `json:"prompt"`
	Evaluation string `json:"evaluation"`
	Model      string `json:"model"`
	Timestamp  string `json:"timestamp"`
}

type DiagramOutcome struct {
	DiagramID string `json:"diagram_id"`
	Skipped   bool   `json:"skipped,omitempty"`
	EvaluationResult
}

type RunSummary struct {
	Model         string           `json:"model"`
	Prompt        string           `json:"prompt"`
	TotalDiagrams int              `json:"total_diagrams"`
	Successful    int              `json:"successful"`
	Failed        int              `json:"failed"`
	Timestamp     string           `json:"timestamp"`
	Results       []DiagramOutcome `json:"results"`
}
