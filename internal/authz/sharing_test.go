package authz

import (
	"context"
	"errors"
	"testing"
)

type stubGrantStore struct {
	shareFn            func(context.Context, string, string, ParticipantRole, string) (ShareResult, error)
	unshareFn          func(context.Context, string, string, string) (UnshareResult, error)
	listParticipantsFn func(context.Context, string) ([]Participant, error)
	listSharedFn       func(context.Context, string) ([]CaseSummary, error)
	listAuditFn        func(context.Context, string) ([]AuditEntry, error)
}

func (s *stubGrantStore) ShareCase(ctx context.Context, caseID, targetUserID string, role ParticipantRole, actingUserID string) (ShareResult, error) {
	if s.shareFn != nil {
		return s.shareFn(ctx, caseID, targetUserID, role, actingUserID)
	}
	return ShareResult{Outcome: ShareCreated, NewRole: role}, nil
}

func (s *stubGrantStore) UnshareCase(ctx context.Context, caseID, targetUserID, actingUserID string) (UnshareResult, error) {
	if s.unshareFn != nil {
		return s.unshareFn(ctx, caseID, targetUserID, actingUserID)
	}
	return UnshareResult{}, nil
}

func (s *stubGrantStore) ListParticipants(ctx context.Context, caseID string) ([]Participant, error) {
	if s.listParticipantsFn != nil {
		return s.listParticipantsFn(ctx, caseID)
	}
	return nil, nil
}

func (s *stubGrantStore) ListSharedCases(ctx context.Context, userID string) ([]CaseSummary, error) {
	if s.listSharedFn != nil {
		return s.listSharedFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubGrantStore) ListAudit(ctx context.Context, caseID string) ([]AuditEntry, error) {
	if s.listAuditFn != nil {
		return s.listAuditFn(ctx, caseID)
	}
	return nil, nil
}

func newTestSharing(t *testing.T, store GrantStore) *SharingService {
	t.Helper()
	svc, err := NewSharingService(store)
	if err != nil {
		t.Fatalf("NewSharingService: %v", err)
	}
	return svc
}

func TestShareCaseValidatesInput(t *testing.T) {
	svc := newTestSharing(t, &stubGrantStore{})

	if _, err := svc.ShareCase(context.Background(), "", "user-2", RoleViewer, "user-1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.ShareCase(context.Background(), "case-1", "user-2", "superuser", "user-1"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestShareCaseTrimsAndForwards(t *testing.T) {
	var got struct {
		caseID, target, actor string
		role                  ParticipantRole
	}
	store := &stubGrantStore{
		shareFn: func(_ context.Context, caseID, targetUserID string, role ParticipantRole, actingUserID string) (ShareResult, error) {
			got.caseID, got.target, got.role, got.actor = caseID, targetUserID, role, actingUserID
			return ShareResult{Outcome: ShareCreated, NewRole: role}, nil
		},
	}
	svc := newTestSharing(t, store)

	res, err := svc.ShareCase(context.Background(), " case-1 ", " user-2 ", RoleCollaborator, " user-1 ")
	if err != nil {
		t.Fatalf("ShareCase: %v", err)
	}
	if got.caseID != "case-1" || got.target != "user-2" || got.actor != "user-1" {
		t.Fatalf("inputs not trimmed: %+v", got)
	}
	if res.Outcome != ShareCreated || res.NewRole != RoleCollaborator {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestShareCaseRetriesOnceOnConcurrentModification(t *testing.T) {
	calls := 0
	store := &stubGrantStore{
		shareFn: func(_ context.Context, _, _ string, role ParticipantRole, _ string) (ShareResult, error) {
			calls++
			if calls == 1 {
				return ShareResult{}, ErrConcurrentModification
			}
			return ShareResult{Outcome: ShareRoleChanged, OldRole: RoleViewer, NewRole: role}, nil
		},
	}
	svc := newTestSharing(t, store)

	res, err := svc.ShareCase(context.Background(), "case-1", "user-2", RoleCollaborator, "user-1")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", calls)
	}
	if res.Outcome != ShareRoleChanged {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
}

func TestShareCaseGivesUpAfterOneRetry(t *testing.T) {
	calls := 0
	store := &stubGrantStore{
		shareFn: func(context.Context, string, string, ParticipantRole, string) (ShareResult, error) {
			calls++
			return ShareResult{}, ErrConcurrentModification
		},
	}
	svc := newTestSharing(t, store)

	if _, err := svc.ShareCase(context.Background(), "case-1", "user-2", RoleViewer, "user-1"); !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected two attempts, got %d", calls)
	}
}

func TestUnshareCaseRetriesOnceOnConcurrentModification(t *testing.T) {
	calls := 0
	store := &stubGrantStore{
		unshareFn: func(context.Context, string, string, string) (UnshareResult, error) {
			calls++
			if calls == 1 {
				return UnshareResult{}, ErrConcurrentModification
			}
			return UnshareResult{Removed: true, OldRole: RoleViewer}, nil
		},
	}
	svc := newTestSharing(t, store)

	res, err := svc.UnshareCase(context.Background(), "case-1", "user-2", "user-1")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if !res.Removed || res.OldRole != RoleViewer {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestUnshareCaseValidatesInput(t *testing.T) {
	svc := newTestSharing(t, &stubGrantStore{})

	if _, err := svc.UnshareCase(context.Background(), "case-1", "", "user-1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGetSharingAuditRequiresCase(t *testing.T) {
	svc := newTestSharing(t, &stubGrantStore{})

	if _, err := svc.GetSharingAudit(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
