package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/subject"
)

// GetProgress returns a student's progress record for a phase, or nil if missing.
func (s *Store) GetProgress(ctx context.Context, studentID string, phase model.Phase) (*model.StudentPhaseProgress, error) {
	var p model.StudentPhaseProgress
	var ph, status, completed, inProgress string
	var overall sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, student_id, grade_id, phase, status, subjects_completed, subjects_in_progress,
		        overall_score, created_at, updated_at
		 FROM student_phase_progress WHERE id = ?`, model.ProgressID(studentID, phase),
	).Scan(&p.ID, &p.StudentID, &p.GradeID, &ph, &status, &completed, &inProgress,
		&overall, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Phase = model.Phase(ph)
	p.Status = model.PhaseStatus(status)
	if p.SubjectsCompleted, err = decodeSubjects(completed); err != nil {
		return nil, fmt.Errorf("decode subjects_completed: %w", err)
	}
	if p.SubjectsInProgress, err = decodeSubjects(inProgress); err != nil {
		return nil, fmt.Errorf("decode subjects_in_progress: %w", err)
	}
	if overall.Valid {
		v := overall.Float64
		p.OverallScore = &v
	}
	return &p, nil
}

// UpsertProgress writes a progress record keyed by (student, phase).
func (s *Store) UpsertProgress(ctx context.Context, p model.StudentPhaseProgress) error {
	completed, err := encodeSubjects(p.SubjectsCompleted)
	if err != nil {
		return err
	}
	inProgress, err := encodeSubjects(p.SubjectsInProgress)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO student_phase_progress (id, student_id, grade_id, phase, status,
			subjects_completed, subjects_in_progress, overall_score, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			grade_id = excluded.grade_id,
			status = excluded.status,
			subjects_completed = excluded.subjects_completed,
			subjects_in_progress = excluded.subjects_in_progress,
			overall_score = excluded.overall_score,
			updated_at = excluded.updated_at`,
		model.ProgressID(p.StudentID, p.Phase), p.StudentID, p.GradeID, p.Phase, p.Status,
		completed, inProgress, p.OverallScore, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func encodeSubjects(set subject.Set) (string, error) {
	if set == nil {
		set = subject.Set{}
	}
	b, err := json.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("encode subjects: %w", err)
	}
	return string(b), nil
}

func decodeSubjects(raw string) (subject.Set, error) {
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, err
	}
	set := subject.Set{}
	for _, n := range names {
		// stored sets may predate the canonical keys
		s, err := subject.Parse(n)
		if err != nil {
			continue
		}
		set = set.Add(s)
	}
	return set, nil
}
