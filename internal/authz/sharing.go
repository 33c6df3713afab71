package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SharingService exposes the sharing operations of the case grant store.
// It validates inputs and retries a mutation once when it races with a
// concurrent mutation on the same (case, user) pair; the store provides
// atomicity of grant change + audit entry.
type SharingService struct {
	store GrantStore
}

// NewSharingService constructs the service.
func NewSharingService(store GrantStore) (*SharingService, error) {
	if store == nil {
		return nil, errors.New("grant store is required")
	}
	return &SharingService{store: store}, nil
}

// ShareCase grants or updates the target user's explicit role on a case.
// Repeating a share with the identical role is a no-op and produces no
// audit entry.
func (s *SharingService) ShareCase(ctx context.Context, caseID, targetUserID string, role ParticipantRole, actingUserID string) (ShareResult, error) {
	caseID = strings.TrimSpace(caseID)
	targetUserID = strings.TrimSpace(targetUserID)
	actingUserID = strings.TrimSpace(actingUserID)
	if caseID == "" || targetUserID == "" || actingUserID == "" {
		return ShareResult{}, fmt.Errorf("%w: case_id, target_user_id and acting_user_id are required", ErrInvalidInput)
	}
	if !ValidParticipantRole(role) {
		return ShareResult{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	result, err := s.store.ShareCase(ctx, caseID, targetUserID, role, actingUserID)
	if errors.Is(err, ErrConcurrentModification) {
		result, err = s.store.ShareCase(ctx, caseID, targetUserID, role, actingUserID)
	}
	return result, err
}

// UnshareCase revokes the target user's explicit grant. No-op without an
// audit entry when no grant existed.
func (s *SharingService) UnshareCase(ctx context.Context, caseID, targetUserID, actingUserID string) (UnshareResult, error) {
	caseID = strings.TrimSpace(caseID)
	targetUserID = strings.TrimSpace(targetUserID)
	actingUserID = strings.TrimSpace(actingUserID)
	if caseID == "" || targetUserID == "" || actingUserID == "" {
		return UnshareResult{}, fmt.Errorf("%w: case_id, target_user_id and acting_user_id are required", ErrInvalidInput)
	}

	result, err := s.store.UnshareCase(ctx, caseID, targetUserID, actingUserID)
	if errors.Is(err, ErrConcurrentModification) {
		result, err = s.store.UnshareCase(ctx, caseID, targetUserID, actingUserID)
	}
	return result, err
}

// GetCaseParticipants lists the explicit grants on a case.
func (s *SharingService) GetCaseParticipants(ctx context.Context, caseID string) ([]Participant, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, fmt.Errorf("%w: case_id is required", ErrInvalidInput)
	}
	return s.store.ListParticipants(ctx, caseID)
}

// GetUserSharedCases lists cases shared with the user through explicit
// grants. Cases visible only through org or team membership are not
// included.
func (s *SharingService) GetUserSharedCases(ctx context.Context, userID string) ([]CaseSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.ListSharedCases(ctx, userID)
}

// GetSharingAudit returns the append-only sharing history of a case in
// occurrence order.
func (s *SharingService) GetSharingAudit(ctx context.Context, caseID string) ([]AuditEntry, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, fmt.Errorf("%w: case_id is required", ErrInvalidInput)
	}
	return s.store.ListAudit(ctx, caseID)
}
