package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"peircevlm/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		model_key   TEXT NOT NULL,
		model_id    TEXT NOT NULL,
		prompt_key  TEXT NOT NULL DEFAULT '',
		prompt      TEXT NOT NULL DEFAULT '',
		run_dir     TEXT NOT NULL,
		resumed     INTEGER NOT NULL DEFAULT 0,
		started_at  DATETIME NOT NULL,
		finished_at DATETIME,
		total       INTEGER NOT NULL DEFAULT 0,
		successful  INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_model ON runs(model_key);

	CREATE TABLE IF NOT EXISTS outcomes (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		diagram_id  TEXT NOT NULL,
		status      TEXT NOT NULL,
		error       TEXT DEFAULT '',
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_diagram ON outcomes(diagram_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func InsertRun(db *sql.DB, run domain.RunRecord) error {
	_, err := db.Exec(
		`INSERT INTO runs (id, model_key, model_id, prompt_key, prompt, run_dir, resumed, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ModelKey, run.ModelID, run.PromptKey, run.Prompt, run.RunDir, run.Resumed, run.StartedAt,
	)
	return err
}

func InsertOutcome(db *sql.DB, o domain.OutcomeRecord) error {
	_, err := db.Exec(
		`INSERT INTO outcomes (run_id, diagram_id, status, error, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		o.RunID, o.DiagramID, string(o.Status), o.Error, o.RecordedAt,
	)
	return err
}

func FinishRun(db *sql.DB, runID string, total, successful, failed int, finishedAt time.Time) error {
	res, err := db.Exec(
		`UPDATE runs SET total = ?, successful = ?, failed = ?, finished_at = ? WHERE id = ?`,
		total, successful, failed, finishedAt, runID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// ListRuns returns the newest runs first. An empty modelKey lists all models.
func ListRuns(db *sql.DB, modelKey string, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT id, model_key, model_id, prompt_key, prompt, run_dir, resumed, started_at, finished_at, total, successful, failed
		 FROM runs WHERE (? = '' OR model_key = ?) ORDER BY started_at DESC, id LIMIT ?`,
		modelKey, modelKey, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var r domain.RunRecord
		var finished sql.NullTime
		if err := rows.Scan(
			&r.ID, &r.ModelKey, &r.ModelID, &r.PromptKey, &r.Prompt, &r.RunDir, &r.Resumed,
			&r.StartedAt, &finished, &r.Total, &r.Successful, &r.Failed,
		); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func GetRunOutcomes(db *sql.DB, runID string) ([]domain.OutcomeRecord, error) {
	rows, err := db.Query(
		`SELECT run_id, diagram_id, status, error, recorded_at FROM outcomes WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OutcomeRecord
	for rows.Next() {
		var o domain.OutcomeRecord
		var status string
		if err := rows.Scan(&o.RunID, &o.DiagramID, &status, &o.Error, &o.RecordedAt); err != nil {
			return nil, err
		}
		o.Status = domain.OutcomeStatus(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

// FailedDiagrams lists diagrams whose most recent outcome for the model is a
// failure.
func FailedDiagrams(db *sql.DB, modelKey string) ([]string, error) {
	rows, err := db.Query(
		`SELECT o.diagram_id FROM outcomes o
		 JOIN runs r ON r.id = o.run_id
		 WHERE r.model_key = ? AND o.id = (
			SELECT MAX(o2.id) FROM outcomes o2 JOIN runs r2 ON r2.id = o2.run_id
			WHERE r2.model_key = r.model_key AND o2.diagram_id = o.diagram_id
		 ) AND o.status = ?
		 ORDER BY o.diagram_id`,
		modelKey, string(domain.OutcomeFailed),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
