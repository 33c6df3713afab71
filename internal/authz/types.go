package authz

import "time"

// Capability is a single action a caller may require on a resource.
type Capability string

const (
	CapabilityRead   Capability = "read"
	CapabilityWrite  Capability = "write"
	CapabilityDelete Capability = "delete"
	CapabilityManage Capability = "manage"
)

// ValidCapability reports whether c is one of the known capabilities.
func ValidCapability(c Capability) bool {
	switch c {
	case CapabilityRead, CapabilityWrite, CapabilityDelete, CapabilityManage:
		return true
	}
	return false
}

// RoleScope identifies the level a role applies at.
type RoleScope string

const (
	ScopeSystem       RoleScope = "system"
	ScopeOrganization RoleScope = "organization"
	ScopeTeam         RoleScope = "team"
)

// Organization is a tenant workspace.
type Organization struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Slug       string            `json:"slug"`
	PlanTier   string            `json:"plan_tier"`
	MaxMembers int               `json:"max_members"`
	Settings   map[string]string `json:"settings,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	DeletedAt  *time.Time        `json:"deleted_at,omitempty"`
}

// OrgMembership binds a user to an organization with exactly one role.
type OrgMembership struct {
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	RoleID         string    `json:"role_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Team is a collaboration group inside a single organization.
type Team struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	Name           string     `json:"name"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// TeamMembership binds a user to a team with an optional team-scope role.
type TeamMembership struct {
	UserID    string    `json:"user_id"`
	TeamID    string    `json:"team_id"`
	RoleID    string    `json:"role_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TeamRole pairs a team with the role a user holds in it.
type TeamRole struct {
	TeamID string `json:"team_id"`
	RoleID string `json:"role_id,omitempty"`
}

// Role is a named, scope-tagged bundle of permissions. System roles are
// seeded at bootstrap and immutable.
type Role struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Scope          RoleScope `json:"scope"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Description    string    `json:"description,omitempty"`
	System         bool      `json:"system"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Permission is an atomic (resource, action) pair.
type Permission struct {
	ID          string     `json:"id"`
	Resource    string     `json:"resource"`
	Action      Capability `json:"action"`
	Description string     `json:"description,omitempty"`
}

// Key returns the catalog key, e.g. "cases.read".
func (p Permission) Key() string {
	return p.Resource + "." + string(p.Action)
}

// PermissionSet is a resolved set of permission keys for a role.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from resolved permissions.
func NewPermissionSet(perms []Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p.Key()] = struct{}{}
	}
	return set
}

// Covers reports whether the set grants capability c on resource.
// The manage action on a resource implies every other action on it.
func (s PermissionSet) Covers(resource string, c Capability) bool {
	if _, ok := s[resource+"."+string(c)]; ok {
		return true
	}
	_, ok := s[resource+"."+string(CapabilityManage)]
	return ok
}

// ParticipantRole is the explicit per-case grant level.
type ParticipantRole string

const (
	RoleOwner        ParticipantRole = "owner"
	RoleCollaborator ParticipantRole = "collaborator"
	RoleViewer       ParticipantRole = "viewer"
)

// ValidParticipantRole reports whether r is inside the case-grant domain.
func ValidParticipantRole(r ParticipantRole) bool {
	switch r {
	case RoleOwner, RoleCollaborator, RoleViewer:
		return true
	}
	return false
}

// Covers reports whether the participant role grants capability c.
// owner covers collaborator, which covers viewer.
func (r ParticipantRole) Covers(c Capability) bool {
	switch r {
	case RoleOwner:
		return c == CapabilityRead || c == CapabilityWrite || c == CapabilityDelete || c == CapabilityManage
	case RoleCollaborator:
		return c == CapabilityRead || c == CapabilityWrite
	case RoleViewer:
		return c == CapabilityRead
	}
	return false
}

// Case is the external case entity, consumed read-only by identifier.
type Case struct {
	ID             string `json:"id"`
	OwnerUserID    string `json:"owner_user_id"`
	OrganizationID string `json:"organization_id,omitempty"`
	TeamID         string `json:"team_id,omitempty"`
}

// Participant is an explicit per-case grant.
type Participant struct {
	CaseID         string          `json:"case_id"`
	UserID         string          `json:"user_id"`
	Role           ParticipantRole `json:"role"`
	AddedAt        time.Time       `json:"added_at"`
	AddedBy        string          `json:"added_by"`
	LastAccessedAt *time.Time      `json:"last_accessed_at,omitempty"`
}

// CaseSummary describes a case visible to a user through an explicit grant.
type CaseSummary struct {
	CaseID      string          `json:"case_id"`
	OwnerUserID string          `json:"owner_user_id"`
	Role        ParticipantRole `json:"role"`
	SharedAt    time.Time       `json:"shared_at"`
}

// AuditAction classifies a sharing audit entry.
type AuditAction string

const (
	AuditShared      AuditAction = "shared"
	AuditUnshared    AuditAction = "unshared"
	AuditRoleChanged AuditAction = "role_changed"
)

// AuditEntry is an immutable record of a sharing mutation. Entries are
// written in the same transaction as the mutation and never updated.
type AuditEntry struct {
	ID           string          `json:"id"`
	CaseID       string          `json:"case_id"`
	TargetUserID string          `json:"target_user_id"`
	ActingUserID string          `json:"acting_user_id"`
	Action       AuditAction     `json:"action"`
	OldRole      ParticipantRole `json:"old_role,omitempty"`
	NewRole      ParticipantRole `json:"new_role,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// GrantPath names the access route that produced an allow decision.
type GrantPath string

const (
	GrantPathOwner        GrantPath = "owner"
	GrantPathParticipant  GrantPath = "participant"
	GrantPathOrganization GrantPath = "organization"
	GrantPathTeam         GrantPath = "team"
	GrantPathNone         GrantPath = ""
)

// Decision is the result of an access check. Reason is a diagnostic for
// logs and metrics only; it must never reach an unauthorized caller.
type Decision struct {
	Allowed       bool      `json:"allowed"`
	GrantPath     GrantPath `json:"grant_path,omitempty"`
	EffectiveRole string    `json:"effective_role,omitempty"`
	Reason        string    `json:"-"`
}
