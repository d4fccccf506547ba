package store

import (
	"context"
	"encoding/json"
	"time"
)

// Document is a raw exam document stored under a student's phase folder.
type Document struct {
	StudentID string
	Folder    string
	ExamID    string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PutDocument inserts or overwrites a document.
func (s *Store) PutDocument(ctx context.Context, studentID, folder, examID string, data []byte) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exam_documents (student_id, folder, exam_id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(student_id, folder, exam_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		studentID, folder, examID, string(data), now, now,
	)
	return err
}

// PutDocumentIfAbsent inserts a document unless one already exists. It reports
// whether a row was written.
func (s *Store) PutDocumentIfAbsent(ctx context.Context, studentID, folder, examID string, data []byte) (bool, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO exam_documents (student_id, folder, exam_id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(student_id, folder, exam_id) DO NOTHING`,
		studentID, folder, examID, string(data), now, now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListDocuments returns every document in a student's folder, oldest first.
func (s *Store) ListDocuments(ctx context.Context, studentID, folder string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id, folder, exam_id, data, created_at, updated_at
		 FROM exam_documents WHERE student_id = ? AND folder = ? ORDER BY created_at, exam_id`,
		studentID, folder,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var d Document
		var data string
		if err := rows.Scan(&d.StudentID, &d.Folder, &d.ExamID, &data, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Data = json.RawMessage(data)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ListFolders returns the distinct folder names that hold documents for a student.
func (s *Store) ListFolders(ctx context.Context, studentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT folder FROM exam_documents WHERE student_id = ? ORDER BY folder`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var folders []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}
