package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store is a single-tenant document store on SQLite. Each collection is a
// table; nested or schema-free payloads are kept as JSON text columns.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS phase_authorizations (
		id TEXT PRIMARY KEY,
		grade_id TEXT NOT NULL,
		grade_name TEXT NOT NULL DEFAULT '',
		phase TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		authorized INTEGER NOT NULL DEFAULT 0,
		authorized_by TEXT NOT NULL DEFAULT '',
		authorized_at DATETIME NOT NULL,
		revoked_at DATETIME,
		institution_id TEXT NOT NULL DEFAULT '',
		campus_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_phase_authorizations_grade ON phase_authorizations(grade_id);

	CREATE TABLE IF NOT EXISTS student_phase_progress (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		grade_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		status TEXT NOT NULL,
		subjects_completed TEXT NOT NULL DEFAULT '[]',
		subjects_in_progress TEXT NOT NULL DEFAULT '[]',
		overall_score REAL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exam_documents (
		student_id TEXT NOT NULL,
		folder TEXT NOT NULL,
		exam_id TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (student_id, folder, exam_id)
	);

	CREATE TABLE IF NOT EXISTS phase1_analyses (
		student_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (student_id, subject)
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'student',
		grade_id TEXT NOT NULL DEFAULT '',
		institution_id TEXT NOT NULL DEFAULT '',
		campus_id TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_cohort ON users(institution_id, campus_id, grade_id);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
