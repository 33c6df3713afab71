package authz

// CatalogVersion identifies the built-in role/permission bootstrap dataset.
// System-scope rows seeded from this catalog are immutable afterwards.
const CatalogVersion = 1

// Built-in role identifiers. Fixed so that memberships and seed data can
// reference them without a lookup.
const (
	RoleSuperAdmin = "role_super_admin"

	RoleOrgOwner  = "role_org_owner"
	RoleOrgAdmin  = "role_org_admin"
	RoleOrgMember = "role_org_member"
	RoleOrgViewer = "role_org_viewer"

	RoleTeamLead   = "role_team_lead"
	RoleTeamMember = "role_team_member"
)

// Catalog resources.
const (
	ResourceCases         = "cases"
	ResourceTeams         = "teams"
	ResourceOrganizations = "organizations"
	ResourceRoles         = "roles"
	ResourceAudit         = "audit"
)

// BuiltinPermissions is the full permission catalog.
var BuiltinPermissions = []Permission{
	{Resource: ResourceCases, Action: CapabilityRead, Description: "Read case data"},
	{Resource: ResourceCases, Action: CapabilityWrite, Description: "Modify case data"},
	{Resource: ResourceCases, Action: CapabilityDelete, Description: "Delete cases"},
	{Resource: ResourceCases, Action: CapabilityManage, Description: "Full control over cases including sharing"},
	{Resource: ResourceTeams, Action: CapabilityRead, Description: "View teams and their members"},
	{Resource: ResourceTeams, Action: CapabilityWrite, Description: "Modify team membership"},
	{Resource: ResourceTeams, Action: CapabilityManage, Description: "Create and delete teams"},
	{Resource: ResourceOrganizations, Action: CapabilityRead, Description: "View organization details"},
	{Resource: ResourceOrganizations, Action: CapabilityManage, Description: "Administer the organization"},
	{Resource: ResourceRoles, Action: CapabilityRead, Description: "View roles and bindings"},
	{Resource: ResourceRoles, Action: CapabilityManage, Description: "Create and modify custom roles"},
	{Resource: ResourceAudit, Action: CapabilityRead, Description: "Read sharing audit history"},
}

// BuiltinRoles are the system-seeded roles at each scope.
var BuiltinRoles = []Role{
	{ID: RoleSuperAdmin, Name: "Super Admin", Scope: ScopeSystem, System: true, Description: "Platform-wide administrator"},
	{ID: RoleOrgOwner, Name: "Owner", Scope: ScopeOrganization, System: true, Description: "Organization owner"},
	{ID: RoleOrgAdmin, Name: "Admin", Scope: ScopeOrganization, System: true, Description: "Organization administrator"},
	{ID: RoleOrgMember, Name: "Member", Scope: ScopeOrganization, System: true, Description: "Organization member"},
	{ID: RoleOrgViewer, Name: "Viewer", Scope: ScopeOrganization, System: true, Description: "Read-only organization member"},
	{ID: RoleTeamLead, Name: "Lead", Scope: ScopeTeam, System: true, Description: "Team lead"},
	{ID: RoleTeamMember, Name: "Member", Scope: ScopeTeam, System: true, Description: "Team member"},
}

// BuiltinRolePermissions maps each built-in role to its permission keys.
// Super Admin is simply a role bound to every permission; the decision
// engine carries no special case for it.
var BuiltinRolePermissions = map[string][]string{
	RoleSuperAdmin: allPermissionKeys(),
	RoleOrgOwner:   allPermissionKeys(),
	RoleOrgAdmin: {
		"cases.manage",
		"teams.manage", "teams.write", "teams.read",
		"organizations.read",
		"roles.read", "roles.manage",
		"audit.read",
	},
	RoleOrgMember: {
		"cases.read", "cases.write",
		"teams.read",
		"organizations.read",
	},
	RoleOrgViewer: {
		"cases.read",
		"teams.read",
		"organizations.read",
	},
	RoleTeamLead: {
		"cases.read", "cases.write", "cases.delete",
		"teams.read", "teams.write",
	},
	RoleTeamMember: {
		"cases.read", "cases.write",
		"teams.read",
	},
}

func allPermissionKeys() []string {
	keys := make([]string, 0, len(BuiltinPermissions))
	for _, p := range BuiltinPermissions {
		keys = append(keys, p.Key())
	}
	return keys
}

// SystemRoleIDs returns the identifiers of all immutable built-in roles.
func SystemRoleIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(BuiltinRoles))
	for _, r := range BuiltinRoles {
		ids[r.ID] = struct{}{}
	}
	return ids
}
