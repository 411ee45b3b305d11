package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"firequest/pipeline"
)

// AuditLog stores every recorded prediction. It is write-mostly and is never
// used to restore a session's history.
type AuditLog struct {
	db *sql.DB
}

// PredictionRecord is one row of the predictions table.
type PredictionRecord struct {
	SessionID  string    `json:"session_id"`
	Code       int       `json:"code"`
	Label      string    `json:"label"`
	Confidence *float64  `json:"confidence,omitempty"`
	Features   []float64 `json:"features"`
	Warnings   []string  `json:"warnings"`
	Timestamp  time.Time `json:"timestamp"`
}

// Open initializes the SQLite database at path, creating its directory.
func Open(path string) (*AuditLog, error) {
	if path == "" {
		return nil, errors.New("database path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        predicted_label INTEGER NOT NULL,
        label TEXT NOT NULL,
        confidence REAL,
        features TEXT NOT NULL,
        warnings TEXT NOT NULL,
        timestamp DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_timestamp ON predictions(timestamp);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, err
	}
	return &AuditLog{db: database}, nil
}

// Close releases the database handle.
func (a *AuditLog) Close() error {
	return a.db.Close()
}

// RecordPrediction implements pipeline.Recorder.
func (a *AuditLog) RecordPrediction(ctx context.Context, rec pipeline.Record) error {
	features, err := json.Marshal(rec.Features.Slice())
	if err != nil {
		return err
	}
	warnings := rec.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return err
	}

	var confidence sql.NullFloat64
	if rec.Result.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *rec.Result.Confidence, Valid: true}
	}

	_, err = a.db.ExecContext(ctx, `
        INSERT INTO predictions (
            session_id, predicted_label, label, confidence, features, warnings, timestamp
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Result.Code, rec.Result.Label, confidence,
		string(features), string(warningsJSON), rec.At.UTC())
	return err
}

// RecentPredictions returns up to limit rows, newest first.
func (a *AuditLog) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.QueryContext(ctx, `
        SELECT session_id, predicted_label, label, confidence, features, warnings, timestamp
        FROM predictions
        ORDER BY timestamp DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var r PredictionRecord
		var confidence sql.NullFloat64
		var features, warnings string
		if err := rows.Scan(&r.SessionID, &r.Code, &r.Label, &confidence, &features, &warnings, &r.Timestamp); err != nil {
			return nil, err
		}
		if confidence.Valid {
			v := confidence.Float64
			r.Confidence = &v
		}
		if err := json.Unmarshal([]byte(features), &r.Features); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(warnings), &r.Warnings); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
