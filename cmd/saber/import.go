package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pavelanni/saber/internal/authz"
	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/phase"
	"github.com/pavelanni/saber/internal/store"
	"github.com/pavelanni/saber/internal/subject"
)

// importFile is the seed format accepted by the import command. Documents
// are written verbatim so legacy result shapes can be loaded as they are.
type importFile struct {
	Users          []model.User           `json:"users"`
	Authorizations []importAuthorization  `json:"authorizations"`
	Documents      []importDocument       `json:"documents"`
	Submissions    []model.ExamSubmission `json:"submissions"`
}

type importAuthorization struct {
	GradeID       string `json:"gradeId"`
	GradeName     string `json:"gradeName"`
	Phase         string `json:"phase"`
	Subject       string `json:"subject"`
	AdminID       string `json:"adminId"`
	InstitutionID string `json:"institutionId"`
	CampusID      string `json:"campusId"`
}

type importDocument struct {
	StudentID string          `json:"studentId"`
	Folder    string          `json:"folder"`
	ExamID    string          `json:"examId"`
	Data      json.RawMessage `json:"data"`
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Load users, authorizations and exam results from JSON seed files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runImport,
	}
	addCommonFlags(cmd)
	cmd.Flags().Bool("force", false, "Re-import files that were already imported")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	engine := phase.New(db, nil, nil, model.EngineConfig{})
	for _, path := range args {
		if err := importPath(cmd.Context(), db, engine, path, v.GetBool("force")); err != nil {
			return err
		}
	}
	return nil
}

func importPath(ctx context.Context, db *store.Store, engine *phase.Service, path string, force bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(ctx, path)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash && !force {
		slog.Info("seed file unchanged, skipping", "path", path)
		return nil
	}

	var f importFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for _, u := range f.Users {
		if err := db.UpsertUser(ctx, u); err != nil {
			return fmt.Errorf("import user %s from %s: %w", u.ID, path, err)
		}
	}

	for _, a := range f.Authorizations {
		p, err := model.ParsePhase(a.Phase)
		if err != nil {
			return fmt.Errorf("authorization for %s in %s: %w", a.GradeID, path, err)
		}
		var subj subject.Subject
		if a.Subject != "" {
			if subj, err = subject.Parse(a.Subject); err != nil {
				return fmt.Errorf("authorization for %s in %s: %w", a.GradeID, path, err)
			}
		}
		admin := a.AdminID
		if admin == "" {
			admin = "import"
		}
		if _, err := engine.Authz().AuthorizePhase(ctx, authz.Request{
			GradeID:       a.GradeID,
			GradeName:     a.GradeName,
			Phase:         p,
			Subject:       subj,
			AdminID:       admin,
			InstitutionID: a.InstitutionID,
			CampusID:      a.CampusID,
		}); err != nil {
			return fmt.Errorf("import authorization from %s: %w", path, err)
		}
	}

	for _, d := range f.Documents {
		if d.StudentID == "" || d.ExamID == "" || len(d.Data) == 0 {
			slog.Warn("skipping incomplete document", "path", path, "student_id", d.StudentID, "exam_id", d.ExamID)
			continue
		}
		if err := db.PutDocument(ctx, d.StudentID, d.Folder, d.ExamID, d.Data); err != nil {
			return fmt.Errorf("import document %s from %s: %w", d.ExamID, path, err)
		}
	}

	for _, s := range f.Submissions {
		if _, err := engine.CompleteExam(ctx, s); err != nil {
			return fmt.Errorf("import submission for %s from %s: %w", s.StudentID, path, err)
		}
	}

	if err := db.SetImportedFileHash(ctx, path, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported seed file", "path", path,
		"users", len(f.Users),
		"authorizations", len(f.Authorizations),
		"documents", len(f.Documents),
		"submissions", len(f.Submissions))
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
