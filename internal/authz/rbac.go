package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const defaultMaxMembers = 25

// RBACService manages organizations, teams, memberships and the role
// registry. Validation happens here; persistence and its invariants
// (capacity counts, uniqueness) live in the store.
type RBACService struct {
	store    Store
	resolver PermissionResolver
}

// NewRBACService constructs the service.
func NewRBACService(store Store, resolver PermissionResolver) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if resolver == nil {
		return nil, errors.New("permission resolver is required")
	}
	return &RBACService{store: store, resolver: resolver}, nil
}

// SeedCatalog applies the built-in role/permission bootstrap dataset.
// Idempotent; system rows are never altered once present.
func (s *RBACService) SeedCatalog(ctx context.Context) error {
	if err := s.store.EnsurePermissions(ctx, BuiltinPermissions); err != nil {
		return fmt.Errorf("ensure permissions: %w", err)
	}
	if err := s.store.EnsureRoles(ctx, BuiltinRoles); err != nil {
		return fmt.Errorf("ensure roles: %w", err)
	}
	if err := s.store.EnsureRolePermissions(ctx, BuiltinRolePermissions); err != nil {
		return fmt.Errorf("ensure role permissions: %w", err)
	}
	return nil
}

func (s *RBACService) CreateOrganization(ctx context.Context, org Organization) (Organization, error) {
	org.Name = strings.TrimSpace(org.Name)
	if org.Name == "" {
		return Organization{}, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	org.Slug = strings.TrimSpace(strings.ToLower(org.Slug))
	if !validSlug(org.Slug) {
		return Organization{}, fmt.Errorf("%w: slug must be non-empty, URL-safe lowercase", ErrInvalidInput)
	}
	if org.MaxMembers <= 0 {
		org.MaxMembers = defaultMaxMembers
	}
	if org.PlanTier == "" {
		org.PlanTier = "standard"
	}
	return s.store.CreateOrganization(ctx, org)
}

func (s *RBACService) GetOrganization(ctx context.Context, id string) (Organization, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Organization{}, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.store.GetOrganization(ctx, id)
}

func (s *RBACService) SoftDeleteOrganization(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.store.SoftDeleteOrganization(ctx, id)
}

func (s *RBACService) CreateTeam(ctx context.Context, team Team) (Team, error) {
	team.OrganizationID = strings.TrimSpace(team.OrganizationID)
	if team.OrganizationID == "" {
		return Team{}, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	team.Name = strings.TrimSpace(team.Name)
	if team.Name == "" {
		return Team{}, fmt.Errorf("%w: team name is required", ErrInvalidInput)
	}
	return s.store.CreateTeam(ctx, team)
}

func (s *RBACService) SoftDeleteTeam(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: team_id is required", ErrInvalidInput)
	}
	return s.store.SoftDeleteTeam(ctx, id)
}

// AddOrgMember adds a user to an organization with the given role.
// The store rejects the insert with ErrCapacityExceeded when the
// organization is already at max_members.
func (s *RBACService) AddOrgMember(ctx context.Context, userID, organizationID, roleID string) (OrgMembership, error) {
	userID = strings.TrimSpace(userID)
	organizationID = strings.TrimSpace(organizationID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || organizationID == "" || roleID == "" {
		return OrgMembership{}, fmt.Errorf("%w: user_id, organization_id and role_id are required", ErrInvalidInput)
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return OrgMembership{}, err
	}
	if role.Scope != ScopeOrganization && role.Scope != ScopeSystem {
		return OrgMembership{}, fmt.Errorf("%w: role %s is not organization-scoped", ErrInvalidInput, roleID)
	}
	return s.store.AddOrgMember(ctx, OrgMembership{
		UserID:         userID,
		OrganizationID: organizationID,
		RoleID:         roleID,
	})
}

func (s *RBACService) UpdateOrgMemberRole(ctx context.Context, userID, organizationID, roleID string) (OrgMembership, error) {
	userID = strings.TrimSpace(userID)
	organizationID = strings.TrimSpace(organizationID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || organizationID == "" || roleID == "" {
		return OrgMembership{}, fmt.Errorf("%w: user_id, organization_id and role_id are required", ErrInvalidInput)
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return OrgMembership{}, err
	}
	if role.Scope != ScopeOrganization && role.Scope != ScopeSystem {
		return OrgMembership{}, fmt.Errorf("%w: role %s is not organization-scoped", ErrInvalidInput, roleID)
	}
	return s.store.UpdateOrgMemberRole(ctx, userID, organizationID, roleID)
}

func (s *RBACService) RemoveOrgMember(ctx context.Context, userID, organizationID string) error {
	userID = strings.TrimSpace(userID)
	organizationID = strings.TrimSpace(organizationID)
	if userID == "" || organizationID == "" {
		return fmt.Errorf("%w: user_id and organization_id are required", ErrInvalidInput)
	}
	return s.store.RemoveOrgMember(ctx, userID, organizationID)
}

func (s *RBACService) ListOrgMembers(ctx context.Context, organizationID string) ([]OrgMembership, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.store.ListOrgMembers(ctx, organizationID)
}

func (s *RBACService) AddTeamMember(ctx context.Context, userID, teamID, roleID string) (TeamMembership, error) {
	userID = strings.TrimSpace(userID)
	teamID = strings.TrimSpace(teamID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || teamID == "" {
		return TeamMembership{}, fmt.Errorf("%w: user_id and team_id are required", ErrInvalidInput)
	}
	if roleID != "" {
		role, err := s.store.GetRole(ctx, roleID)
		if err != nil {
			return TeamMembership{}, err
		}
		if role.Scope != ScopeTeam {
			return TeamMembership{}, fmt.Errorf("%w: role %s is not team-scoped", ErrInvalidInput, roleID)
		}
	}
	return s.store.AddTeamMember(ctx, TeamMembership{
		UserID: userID,
		TeamID: teamID,
		RoleID: roleID,
	})
}

func (s *RBACService) RemoveTeamMember(ctx context.Context, userID, teamID string) error {
	userID = strings.TrimSpace(userID)
	teamID = strings.TrimSpace(teamID)
	if userID == "" || teamID == "" {
		return fmt.Errorf("%w: user_id and team_id are required", ErrInvalidInput)
	}
	return s.store.RemoveTeamMember(ctx, userID, teamID)
}

// GetEffectiveOrgRole returns the role a user holds in an organization,
// or ErrNotFound when no membership exists.
func (s *RBACService) GetEffectiveOrgRole(ctx context.Context, userID, organizationID string) (string, error) {
	userID = strings.TrimSpace(userID)
	organizationID = strings.TrimSpace(organizationID)
	if userID == "" || organizationID == "" {
		return "", fmt.Errorf("%w: user_id and organization_id are required", ErrInvalidInput)
	}
	m, err := s.store.GetOrgMembership(ctx, userID, organizationID)
	if err != nil {
		return "", err
	}
	return m.RoleID, nil
}

// GetEffectiveTeamRoles returns (team, role) pairs for every team the user
// belongs to inside the organization.
func (s *RBACService) GetEffectiveTeamRoles(ctx context.Context, userID, organizationID string) ([]TeamRole, error) {
	userID = strings.TrimSpace(userID)
	organizationID = strings.TrimSpace(organizationID)
	if userID == "" || organizationID == "" {
		return nil, fmt.Errorf("%w: user_id and organization_id are required", ErrInvalidInput)
	}
	memberships, err := s.store.ListTeamMemberships(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	roles := make([]TeamRole, 0, len(memberships))
	for _, m := range memberships {
		roles = append(roles, TeamRole{TeamID: m.TeamID, RoleID: m.RoleID})
	}
	return roles, nil
}

// ResolvePermissions resolves a role to its permission set through the
// read-through cache.
func (s *RBACService) ResolvePermissions(ctx context.Context, roleID string) (PermissionSet, error) {
	return s.resolver.ResolvePermissions(ctx, roleID)
}

// CreateCustomRole registers a mutable role scoped to an organization or
// team. System scope is reserved for the seeded catalog.
func (s *RBACService) CreateCustomRole(ctx context.Context, role Role) (Role, error) {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if role.Scope != ScopeOrganization && role.Scope != ScopeTeam {
		return Role{}, fmt.Errorf("%w: custom roles must be organization- or team-scoped", ErrInvalidInput)
	}
	role.OrganizationID = strings.TrimSpace(role.OrganizationID)
	if role.OrganizationID == "" {
		return Role{}, fmt.Errorf("%w: custom roles require an organization", ErrInvalidInput)
	}
	role.System = false
	return s.store.CreateRole(ctx, role)
}

// SetRolePermissions replaces the permission bindings of a custom role.
// Bindings of system roles are immutable.
func (s *RBACService) SetRolePermissions(ctx context.Context, roleID string, permissionKeys []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.System {
		return fmt.Errorf("%w: %s", ErrProtectedRole, roleID)
	}
	if err := s.store.SetRolePermissions(ctx, roleID, dedupeKeys(permissionKeys)); err != nil {
		return err
	}
	s.resolver.Invalidate(roleID)
	return nil
}

// DeleteRole removes a custom role. System roles cannot be deleted.
func (s *RBACService) DeleteRole(ctx context.Context, roleID string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.System {
		return fmt.Errorf("%w: %s", ErrProtectedRole, roleID)
	}
	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	s.resolver.Invalidate(roleID)
	return nil
}

func (s *RBACService) ListRoles(ctx context.Context, organizationID string) ([]Role, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organization_id is required", ErrInvalidInput)
	}
	return s.store.ListRoles(ctx, organizationID)
}

func dedupeKeys(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

func validSlug(slug string) bool {
	if slug == "" || len(slug) > 64 {
		return false
	}
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return slug[0] != '-' && slug[len(slug)-1] != '-'
}
