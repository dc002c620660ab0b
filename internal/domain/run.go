package domain

import "time"

// RunRecord is the ledger's row for one evaluation run. The run directory on
// disk stays authoritative.
type RunRecord struct {
	ID         string
	ModelKey   string
	ModelID    string
	PromptKey  string
	Prompt     string
	RunDir     string
	Resumed    bool
	StartedAt  time.Time
	FinishedAt *time.Time
	Total      int
	Successful int
	Failed     int
}

type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "success"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

func (o DiagramOutcome) Status() OutcomeStatus {
	switch {
	case o.Skipped:
		return OutcomeSkipped
	case o.Success:
		return OutcomeSucceeded
	default:
		return OutcomeFailed
	}
}

type OutcomeRecord struct {
	RunID      string
	DiagramID  string
	Status     OutcomeStatus
	Error      string
	RecordedAt time.Time
}
