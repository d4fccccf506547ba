package store

import (
	"context"
	"database/sql"

	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/subject"
)

const authorizationColumns = `id, grade_id, grade_name, phase, subject, authorized, authorized_by,
	authorized_at, revoked_at, institution_id, campus_id, created_at, updated_at`

// UpsertAuthorization inserts or replaces an authorization keyed by its id.
// created_at survives updates.
func (s *Store) UpsertAuthorization(ctx context.Context, a model.PhaseAuthorization) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO phase_authorizations (`+authorizationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			grade_name = excluded.grade_name,
			authorized = excluded.authorized,
			authorized_by = excluded.authorized_by,
			authorized_at = excluded.authorized_at,
			revoked_at = excluded.revoked_at,
			institution_id = excluded.institution_id,
			campus_id = excluded.campus_id,
			updated_at = excluded.updated_at`,
		a.ID, a.GradeID, a.GradeName, a.Phase, a.Subject, a.Authorized, a.AuthorizedBy,
		a.AuthorizedAt, a.RevokedAt, a.InstitutionID, a.CampusID, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

// GetAuthorization returns the authorization with the given id, or nil if missing.
func (s *Store) GetAuthorization(ctx context.Context, id string) (*model.PhaseAuthorization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+authorizationColumns+` FROM phase_authorizations WHERE id = ?`, id)
	a, err := scanAuthorization(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAuthorizationsByGrade returns every phase and subject record of a grade.
func (s *Store) ListAuthorizationsByGrade(ctx context.Context, gradeID string) ([]model.PhaseAuthorization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+authorizationColumns+` FROM phase_authorizations WHERE grade_id = ? ORDER BY id`, gradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.PhaseAuthorization
	for rows.Next() {
		a, err := scanAuthorization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuthorization(sc scanner) (model.PhaseAuthorization, error) {
	var a model.PhaseAuthorization
	var phase, subj string
	var revokedAt sql.NullTime
	err := sc.Scan(&a.ID, &a.GradeID, &a.GradeName, &phase, &subj, &a.Authorized, &a.AuthorizedBy,
		&a.AuthorizedAt, &revokedAt, &a.InstitutionID, &a.CampusID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.Phase = model.Phase(phase)
	a.Subject = subject.Subject(subj)
	if revokedAt.Valid {
		t := revokedAt.Time
		a.RevokedAt = &t
	}
	return a, nil
}
