package authz

import "context"

// DecisionStore is the narrow read surface the decision engine queries.
// Ownership and participant lookups are security-critical and must be
// served from the primary store; membership reads may tolerate a few
// seconds of replica staleness.
type DecisionStore interface {
	GetCase(ctx context.Context, caseID string) (Case, error)
	GetParticipant(ctx context.Context, caseID, userID string) (Participant, error)
	GetOrgMembership(ctx context.Context, userID, organizationID string) (OrgMembership, error)
	GetTeamMembership(ctx context.Context, userID, teamID string) (TeamMembership, error)
	TouchParticipantAccess(ctx context.Context, caseID, userID string) error
}

// RoleStore manages the role registry and the role-permission map.
type RoleStore interface {
	GetRole(ctx context.Context, roleID string) (Role, error)
	ListRoles(ctx context.Context, organizationID string) ([]Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, roleID string) error
	SetRolePermissions(ctx context.Context, roleID string, permissionKeys []string) error
	RolePermissions(ctx context.Context, roleID string) ([]Permission, error)

	EnsurePermissions(ctx context.Context, perms []Permission) error
	EnsureRoles(ctx context.Context, roles []Role) error
	EnsureRolePermissions(ctx context.Context, bindings map[string][]string) error
}

// MembershipStore manages organizations, teams and their memberships.
type MembershipStore interface {
	CreateOrganization(ctx context.Context, org Organization) (Organization, error)
	GetOrganization(ctx context.Context, id string) (Organization, error)
	SoftDeleteOrganization(ctx context.Context, id string) error

	CreateTeam(ctx context.Context, team Team) (Team, error)
	GetTeam(ctx context.Context, id string) (Team, error)
	SoftDeleteTeam(ctx context.Context, id string) error

	// AddOrgMember fails with ErrCapacityExceeded when the organization is
	// at max_members; the count and insert happen in one transaction.
	AddOrgMember(ctx context.Context, m OrgMembership) (OrgMembership, error)
	UpdateOrgMemberRole(ctx context.Context, userID, organizationID, roleID string) (OrgMembership, error)
	RemoveOrgMember(ctx context.Context, userID, organizationID string) error
	ListOrgMembers(ctx context.Context, organizationID string) ([]OrgMembership, error)

	AddTeamMember(ctx context.Context, m TeamMembership) (TeamMembership, error)
	RemoveTeamMember(ctx context.Context, userID, teamID string) error
	ListTeamMemberships(ctx context.Context, userID, organizationID string) ([]TeamMembership, error)
}

// ShareOutcome classifies what a share call changed.
type ShareOutcome string

const (
	ShareCreated     ShareOutcome = "shared"
	ShareRoleChanged ShareOutcome = "role_changed"
	ShareNoop        ShareOutcome = "noop"
)

// ShareResult reports the effect of a ShareCase call.
type ShareResult struct {
	Outcome ShareOutcome    `json:"outcome"`
	OldRole ParticipantRole `json:"old_role,omitempty"`
	NewRole ParticipantRole `json:"new_role,omitempty"`
}

// UnshareResult reports the effect of an UnshareCase call.
type UnshareResult struct {
	Removed bool            `json:"removed"`
	OldRole ParticipantRole `json:"old_role,omitempty"`
}

// GrantStore manages explicit per-case participant grants. Every
// state-changing call writes its audit entry in the same transaction;
// a repeated share with an identical role is a no-op with no entry.
type GrantStore interface {
	ShareCase(ctx context.Context, caseID, targetUserID string, role ParticipantRole, actingUserID string) (ShareResult, error)
	UnshareCase(ctx context.Context, caseID, targetUserID, actingUserID string) (UnshareResult, error)
	ListParticipants(ctx context.Context, caseID string) ([]Participant, error)
	ListSharedCases(ctx context.Context, userID string) ([]CaseSummary, error)
	ListAudit(ctx context.Context, caseID string) ([]AuditEntry, error)
}

// Store is the full persistence surface required by the subsystem.
type Store interface {
	DecisionStore
	RoleStore
	MembershipStore
	GrantStore
}

// PermissionResolver resolves a role to its permission set. Implementations
// may cache per role; Invalidate must be called on any binding mutation.
type PermissionResolver interface {
	ResolvePermissions(ctx context.Context, roleID string) (PermissionSet, error)
	Invalidate(roleID string)
}
