package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Engine composes the four access grant paths into a single decision.
// The paths are logically OR'd; evaluation order is a fast-path
// optimization, not a correctness requirement.
type Engine struct {
	store    DecisionStore
	resolver PermissionResolver
}

// NewEngine constructs the decision engine.
func NewEngine(store DecisionStore, resolver PermissionResolver) (*Engine, error) {
	if store == nil {
		return nil, errors.New("decision store is required")
	}
	if resolver == nil {
		return nil, errors.New("permission resolver is required")
	}
	return &Engine{store: store, resolver: resolver}, nil
}

// CanAccess decides whether user may exercise the capability on the case.
// It never returns an error to the caller: every failure on the read path,
// including unknown case or user references, collapses to a deny whose
// cause is recorded only in Decision.Reason.
func (e *Engine) CanAccess(ctx context.Context, userID, caseID string, capability Capability) Decision {
	userID = strings.TrimSpace(userID)
	caseID = strings.TrimSpace(caseID)
	if userID == "" || caseID == "" {
		return deny("user_id and case_id are required")
	}
	if !ValidCapability(capability) {
		return deny(fmt.Sprintf("unknown capability %q", capability))
	}

	c, err := e.store.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return deny("case not found")
		}
		return deny(fmt.Sprintf("case lookup failed: %v", err))
	}

	// Direct ownership is total; no permission lookup needed.
	if c.OwnerUserID == userID {
		return Decision{
			Allowed:       true,
			GrantPath:     GrantPathOwner,
			EffectiveRole: string(RoleOwner),
			Reason:        "case owner",
		}
	}

	if d, ok := e.checkParticipant(ctx, c, userID, capability); ok {
		return d
	}
	if d, ok := e.checkOrganization(ctx, c, userID, capability); ok {
		return d
	}
	if d, ok := e.checkTeam(ctx, c, userID, capability); ok {
		return d
	}
	return deny("insufficient permission")
}

func (e *Engine) checkParticipant(ctx context.Context, c Case, userID string, capability Capability) (Decision, bool) {
	p, err := e.store.GetParticipant(ctx, c.ID, userID)
	if err != nil {
		return Decision{}, false
	}
	if !p.Role.Covers(capability) {
		return Decision{}, false
	}
	// Best effort; the grant already allowed access.
	_ = e.store.TouchParticipantAccess(ctx, c.ID, userID)
	return Decision{
		Allowed:       true,
		GrantPath:     GrantPathParticipant,
		EffectiveRole: string(p.Role),
		Reason:        "explicit grant",
	}, true
}

func (e *Engine) checkOrganization(ctx context.Context, c Case, userID string, capability Capability) (Decision, bool) {
	if c.OrganizationID == "" {
		return Decision{}, false
	}
	m, err := e.store.GetOrgMembership(ctx, userID, c.OrganizationID)
	if err != nil {
		return Decision{}, false
	}
	perms, err := e.resolver.ResolvePermissions(ctx, m.RoleID)
	if err != nil {
		return Decision{}, false
	}
	if !perms.Covers(ResourceCases, capability) {
		return Decision{}, false
	}
	return Decision{
		Allowed:       true,
		GrantPath:     GrantPathOrganization,
		EffectiveRole: m.RoleID,
		Reason:        "organization membership",
	}, true
}

func (e *Engine) checkTeam(ctx context.Context, c Case, userID string, capability Capability) (Decision, bool) {
	if c.TeamID == "" {
		return Decision{}, false
	}
	m, err := e.store.GetTeamMembership(ctx, userID, c.TeamID)
	if err != nil {
		return Decision{}, false
	}
	if m.RoleID == "" {
		return Decision{}, false
	}
	perms, err := e.resolver.ResolvePermissions(ctx, m.RoleID)
	if err != nil {
		return Decision{}, false
	}
	if !perms.Covers(ResourceCases, capability) {
		return Decision{}, false
	}
	return Decision{
		Allowed:       true,
		GrantPath:     GrantPathTeam,
		EffectiveRole: m.RoleID,
		Reason:        "team membership",
	}, true
}

func deny(reason string) Decision {
	return Decision{Allowed: false, GrantPath: GrantPathNone, Reason: reason}
}
