// Package catalog mirrors a conversion run into a SQLite file for ad-hoc queries.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/audiobids/internal/utils"
)

// Snapshot is everything recorded about one run.
type Snapshot struct {
	RunID       string
	StartedAt   time.Time
	DatasetRoot string
	Subjects    []Subject
	Sessions    []Session
}

// Subject maps a database identifier to its dataset label.
type Subject struct {
	Original  string
	Canonical string
}

// Session is one row of a subject's sessions table.
type Session struct {
	Subject   string
	SessionID string
	Name      string
	Condition string
	Delay     int
	ScanType  string
	Synthetic bool
	Flags     map[string]bool
	// Columns fixes the order flags are stored in.
	Columns []string
}

var schema = []string{
	`DROP TABLE IF EXISTS completeness`,
	`DROP TABLE IF EXISTS sessions`,
	`DROP TABLE IF EXISTS subjects`,
	`DROP TABLE IF EXISTS runs`,
	`CREATE TABLE runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		dataset_root TEXT NOT NULL
	)`,
	`CREATE TABLE subjects (
		canonical TEXT PRIMARY KEY,
		original TEXT NOT NULL
	)`,
	`CREATE TABLE sessions (
		subject TEXT NOT NULL REFERENCES subjects(canonical),
		session_id TEXT NOT NULL,
		session_name TEXT NOT NULL,
		condition TEXT NOT NULL,
		delay INTEGER NOT NULL,
		scan_type TEXT NOT NULL,
		synthetic INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (subject, session_id)
	)`,
	`CREATE TABLE completeness (
		subject TEXT NOT NULL,
		session_id TEXT NOT NULL,
		test TEXT NOT NULL,
		present INTEGER NOT NULL,
		PRIMARY KEY (subject, session_id, test),
		FOREIGN KEY (subject, session_id) REFERENCES sessions(subject, session_id)
	)`,
}

// Write recreates the catalog at path from snap in a single transaction.
func Write(ctx context.Context, path string, snap Snapshot) error {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite db: %w", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("apply pragma: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, dataset_root) VALUES (?, ?, ?)`,
		snap.RunID, snap.StartedAt.UTC().Format(time.RFC3339), snap.DatasetRoot); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, s := range snap.Subjects {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO subjects (canonical, original) VALUES (?, ?)`, s.Canonical, s.Original); err != nil {
			return fmt.Errorf("insert subject %s: %w", s.Canonical, err)
		}
	}
	for _, s := range snap.Sessions {
		synthetic := 0
		if s.Synthetic {
			synthetic = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (subject, session_id, session_name, condition, delay, scan_type, synthetic)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.Subject, s.SessionID, s.Name, s.Condition, s.Delay, s.ScanType, synthetic); err != nil {
			return fmt.Errorf("insert session %s/%s: %w", s.Subject, s.SessionID, err)
		}
		for _, col := range s.Columns {
			present := 0
			if s.Flags[col] {
				present = 1
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO completeness (subject, session_id, test, present) VALUES (?, ?, ?, ?)`,
				s.Subject, s.SessionID, col, present); err != nil {
				return fmt.Errorf("insert completeness %s/%s/%s: %w", s.Subject, s.SessionID, col, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Missing lists the sessions of subject that have no data for test.
func Missing(ctx context.Context, path, subject, test string) ([]string, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx,
		`SELECT session_id FROM completeness WHERE subject = ? AND test = ? AND present = 0 ORDER BY session_id`,
		subject, test)
	if err != nil {
		return nil, fmt.Errorf("query completeness: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
