package sqlite

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"peircevlm/internal/domain"
)

// Ledger records runs for the evaluation driver.
type Ledger struct {
	DB *sql.DB
}

func Open(path string) (*Ledger, error) {
	db, err := InitDB(path)
	if err != nil {
		return nil, err
	}
	return &Ledger{DB: db}, nil
}

func (l *Ledger) Close() error {
	return l.DB.Close()
}

// StartRun inserts the run row and returns its generated id.
func (l *Ledger) StartRun(run domain.RunRecord) (string, error) {
	run.ID = uuid.NewString()
	if err := InsertRun(l.DB, run); err != nil {
		return "", err
	}
	return run.ID, nil
}

func (l *Ledger) RecordOutcome(runID string, o domain.DiagramOutcome) error {
	return InsertOutcome(l.DB, domain.OutcomeRecord{
		RunID:      runID,
		DiagramID:  o.DiagramID,
		Status:     o.Status(),
		Error:      o.Error,
		RecordedAt: time.Now().UTC(),
	})
}

func (l *Ledger) FinishRun(runID string, summary domain.RunSummary) error {
	return FinishRun(l.DB, runID, summary.TotalDiagrams, summary.Successful, summary.Failed, time.Now().UTC())
}
