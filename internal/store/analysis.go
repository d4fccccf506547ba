package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/subject"
)

// PutAnalysis stores a Phase-1 analysis, replacing any earlier one for the
// same student and subject.
func (s *Store) PutAnalysis(ctx context.Context, a model.Phase1Analysis) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO phase1_analyses (student_id, subject, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(student_id, subject) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		a.StudentID, a.Subject, string(data), a.AnalyzedAt,
	)
	return err
}

// GetAnalysis returns the stored analysis, or nil if the student has none.
func (s *Store) GetAnalysis(ctx context.Context, studentID string, subj subject.Subject) (*model.Phase1Analysis, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM phase1_analyses WHERE student_id = ? AND subject = ?`, studentID, subj,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var a model.Phase1Analysis
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &a, nil
}
