package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pavelanni/saber/internal/model"
)

const userColumns = `id, display_name, role, grade_id, institution_id, campus_id, active, created_at`

// UpsertUser creates or updates a roster entry.
func (s *Store) UpsertUser(ctx context.Context, u model.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	if u.Role == "" {
		u.Role = model.UserRoleStudent
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			role = excluded.role,
			grade_id = excluded.grade_id,
			institution_id = excluded.institution_id,
			campus_id = excluded.campus_id,
			active = excluded.active`,
		u.ID, u.DisplayName, u.Role, u.GradeID, u.InstitutionID, u.CampusID, u.Active, u.CreatedAt,
	)
	if err != nil {
		slog.Error("failed to upsert user", "id", u.ID, "error", err)
		return err
	}
	slog.Debug("upserted user", "id", u.ID, "grade_id", u.GradeID, "role", u.Role)
	return nil
}

// GetUserByID returns a user by ID, or nil if missing.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListStudents returns students matching the filter, ordered by id.
// Empty filter fields mean no filtering on that field.
func (s *Store) ListStudents(ctx context.Context, f model.StudentFilter) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = ?`
	args := []any{model.UserRoleStudent}
	if f.InstitutionID != "" {
		query += ` AND institution_id = ?`
		args = append(args, f.InstitutionID)
	}
	if f.CampusID != "" {
		query += ` AND campus_id = ?`
		args = append(args, f.CampusID)
	}
	if f.GradeID != "" {
		query += ` AND grade_id = ?`
		args = append(args, f.GradeID)
	}
	if f.IsActive != nil {
		query += ` AND active = ?`
		args = append(args, *f.IsActive)
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(sc scanner) (model.User, error) {
	var u model.User
	var role string
	err := sc.Scan(&u.ID, &u.DisplayName, &role, &u.GradeID, &u.InstitutionID, &u.CampusID, &u.Active, &u.CreatedAt)
	u.Role = model.UserRole(role)
	return u, err
}
