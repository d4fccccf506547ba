package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/store"
	"github.com/pavelanni/saber/internal/subject"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestAuthorizePhaseIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	req := Request{GradeID: "g1", GradeName: "11A", Phase: model.PhaseSecond, AdminID: "admin"}

	first, err := svc.AuthorizePhase(ctx, req)
	if err != nil {
		t.Fatalf("AuthorizePhase: %v", err)
	}
	second, err := svc.AuthorizePhase(ctx, req)
	if err != nil {
		t.Fatalf("AuthorizePhase again: %v", err)
	}
	if !first.Authorized || !second.Authorized {
		t.Error("expected authorized=true both times")
	}
	if first.ID != "g1_second" || second.ID != first.ID {
		t.Errorf("unexpected ids %q, %q", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at moved: %v -> %v", first.CreatedAt, second.CreatedAt)
	}

	list, err := svc.GetGradeAuthorizations(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGradeAuthorizations: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(list))
	}
}

func TestSubjectAuthorizationHasOwnRecord(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AuthorizePhase(ctx, Request{GradeID: "g1", Phase: model.PhaseFirst, AdminID: "a"}); err != nil {
		t.Fatalf("AuthorizePhase: %v", err)
	}
	rec, err := svc.AuthorizePhase(ctx, Request{GradeID: "g1", Phase: model.PhaseFirst, Subject: subject.Fisica, AdminID: "a"})
	if err != nil {
		t.Fatalf("AuthorizePhase subject: %v", err)
	}
	if rec.ID != "g1_first_fisica" {
		t.Errorf("unexpected id %q", rec.ID)
	}
	list, err := svc.GetGradeAuthorizations(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGradeAuthorizations: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 records, got %d", len(list))
	}
}

func TestRevokeKeepsHistory(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	clock := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	if _, err := svc.AuthorizePhase(ctx, Request{GradeID: "g1", Phase: model.PhaseFirst, AdminID: "boss"}); err != nil {
		t.Fatalf("AuthorizePhase: %v", err)
	}
	clock = clock.Add(time.Hour)
	rec, err := svc.RevokePhaseAuthorization(ctx, "g1", model.PhaseFirst, "")
	if err != nil {
		t.Fatalf("RevokePhaseAuthorization: %v", err)
	}
	if rec == nil || rec.Authorized {
		t.Fatalf("expected revoked record, got %+v", rec)
	}
	if rec.AuthorizedBy != "boss" {
		t.Errorf("authorizedBy lost: %q", rec.AuthorizedBy)
	}
	if rec.RevokedAt == nil || !rec.RevokedAt.Equal(clock) {
		t.Errorf("unexpected revokedAt %v", rec.RevokedAt)
	}

	got, err := svc.GetAuthorization(ctx, "g1", model.PhaseFirst, "")
	if err != nil {
		t.Fatalf("GetAuthorization: %v", err)
	}
	if got == nil || got.Authorized {
		t.Errorf("expected stored revoked record, got %+v", got)
	}

	again, err := svc.AuthorizePhase(ctx, Request{GradeID: "g1", Phase: model.PhaseFirst, AdminID: "boss"})
	if err != nil {
		t.Fatalf("re-authorize: %v", err)
	}
	if !again.Authorized || again.RevokedAt != nil {
		t.Errorf("expected clean re-authorization, got %+v", again)
	}
}

func TestRevokeMissing(t *testing.T) {
	svc := newTestService(t)
	rec, err := svc.RevokePhaseAuthorization(context.Background(), "nope", model.PhaseThird, "")
	if err != nil {
		t.Fatalf("RevokePhaseAuthorization: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %+v", rec)
	}
}

func TestValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"missing grade", Request{Phase: model.PhaseFirst, AdminID: "a"}, model.ErrInvalidArgument},
		{"bad phase", Request{GradeID: "g", Phase: "fourth", AdminID: "a"}, model.ErrInvalidPhase},
		{"bad subject", Request{GradeID: "g", Phase: model.PhaseFirst, Subject: "arte", AdminID: "a"}, subject.ErrUnknownSubject},
		{"missing admin", Request{GradeID: "g", Phase: model.PhaseFirst}, model.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AuthorizePhase(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
