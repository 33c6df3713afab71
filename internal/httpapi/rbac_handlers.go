package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"caseguard.org/internal/authz"
)

const scopeAdmin = "admin"

type createOrganizationRequest struct {
	Name       string            `json:"name"`
	Slug       string            `json:"slug"`
	PlanTier   string            `json:"plan_tier"`
	MaxMembers int               `json:"max_members"`
	Settings   map[string]string `json:"settings"`
}

type createTeamRequest struct {
	Name string `json:"name"`
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

type updateMemberRoleRequest struct {
	RoleID string `json:"role_id"`
}

type createRoleRequest struct {
	Name        string `json:"name"`
	Scope       string `json:"scope"`
	Description string `json:"description"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureScope(w, r, scopeAdmin) {
		return
	}
	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.rbac.CreateOrganization(r.Context(), authz.Organization{
		Name:       req.Name,
		Slug:       req.Slug,
		PlanTier:   req.PlanTier,
		MaxMembers: req.MaxMembers,
		Settings:   req.Settings,
	})
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.organization.create", map[string]any{
		"organization_id": org.ID,
		"slug":            org.Slug,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/organizations/%s", org.ID))
	writeJSON(w, http.StatusCreated, org)
}

func (a *API) handleOrganizationScoped(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/organizations/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	orgID := parts[0]
	switch {
	case len(parts) == 1:
		a.handleOrganization(w, r, orgID)
	case len(parts) == 2 && parts[1] == "members":
		a.handleOrgMembers(w, r, orgID)
	case len(parts) == 3 && parts[1] == "members":
		a.handleOrgMember(w, r, orgID, parts[2])
	case len(parts) == 2 && parts[1] == "teams":
		a.handleOrgTeams(w, r, orgID)
	case len(parts) == 2 && parts[1] == "roles":
		a.handleOrgRoles(w, r, orgID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleOrganization(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureScope(w, r, scopeAdmin) {
			return
		}
		org, err := a.rbac.GetOrganization(r.Context(), orgID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, org)
	case http.MethodDelete:
		if !a.ensureScope(w, r, scopeAdmin) {
			return
		}
		if err := a.rbac.SoftDeleteOrganization(r.Context(), orgID); err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditEvent(r, "rbac.organization.delete", map[string]any{
			"organization_id": orgID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleOrgMembers(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureScope(w, r, scopeAdmin) {
			return
		}
		members, err := a.rbac.ListOrgMembers(r.Context(), orgID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"organization_id": orgID,
			"members":         members,
		})
	case http.MethodPost:
		if !a.ensureScope(w, r, scopeAdmin) {
			return
		}
		var req addMemberRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		m, err := a.rbac.AddOrgMember(r.Context(), req.UserID, orgID, req.RoleID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditEvent(r, "rbac.organization.member.add", map[string]any{
			"organization_id": orgID,
			"user_id":         m.UserID,
			"role_id":         m.RoleID,
		})
		writeJSON(w, http.StatusCreated, m)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleOrgMember(w http.ResponseWriter, r *http.Request, orgID, userID string) {
	switch r.Method {
	case http.MethodPut:
		if !a.ensureScope(w, r, scopeAdmin) {
			return
		}
		var req updateMemberRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		m, err := a.rbac.UpdateOrgMemberRole(r.Context(), userID, orgID, req.RoleID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditEvent(r, "rbac.organization.member.update_role", map[string]any{
			"organization_id": orgID,
			"user_id":         userID,
			"role_id":         m.RoleID,
		})
		writeJSON(w, http.StatusOK, m)
	case http.MethodDelete:
		if !a.ensureScope(w, r, scopeAdmin) {
			return
		}
		if err := a.rbac.RemoveOrgMember(r.Context(), userID, orgID); err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditEvent(r, "rbac.organization.member.remove", map[string]any{
			"organization_id": orgID,
			"user_id":         userID,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleOrgTeams(w http.ResponseWriter, r *http.Request, orgID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensureScope(w, r, scopeAdmin) {
		return
	}
	var req createTeamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	team, err := a.rbac.CreateTeam(r.Context(), authz.Team{
		OrganizationID: orgID,
		Name:           req.Name,
	})
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	a.auditEvent(r, "rbac.team.create", map[string]any{
		"organization_id": orgID,
		"team_id":         team.ID,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/teams/%s", team.ID))
	writeJSON(w, http.StatusCreated, team)
}

func (a *API) handleOrgRoles(w http.ResponseWriter, r *http.Request, orgID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensureScope(w, r, scopeAdmin) {
			return
		}
		roles, err := a.rbac.ListRoles(r.Context(), orgID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"organization_id": orgID,
			"roles":           roles,
		})
	case http.MethodPost:
		if !a.ensureScope(w, r, scopeAdmin) {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.CreateCustomRole(r.Context(), authz.Role{
			Name:           req.Name,
			Scope:          authz.RoleScope(req.Scope),
			OrganizationID: orgID,
			Description:    req.Description,
		})
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditEvent(r, "rbac.role.create", map[string]any{
			"organization_id": orgID,
			"role_id":         role.ID,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTeamScoped(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/teams/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	teamID := parts[0]
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if !a.ensureScope(w, r, scopeAdmin) {
			return
		}
		if err := a.rbac.SoftDeleteTeam(r.Context(), teamID); err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditEvent(r, "rbac.team.delete", map[string]any{
			"team_id": teamID,
		})
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "members":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if !a.ensureScope(w, r, scopeAdmin) {
			return
		}
		var req addMemberRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		m, err := a.rbac.AddTeamMember(r.Context(), req.UserID, teamID, req.RoleID)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditEvent(r, "rbac.team.member.add", map[string]any{
			"team_id": teamID,
			"user_id": m.UserID,
		})
		writeJSON(w, http.StatusCreated, m)
	case len(parts) == 3 && parts[1] == "members":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if !a.ensureScope(w, r, scopeAdmin) {
			return
		}
		if err := a.rbac.RemoveTeamMember(r.Context(), parts[2], teamID); err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditEvent(r, "rbac.team.member.remove", map[string]any{
			"team_id": teamID,
			"user_id": parts[2],
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	roleID := parts[0]
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if !a.ensureScope(w, r, scopeAdmin) {
			return
		}
		if err := a.rbac.DeleteRole(r.Context(), roleID); err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditEvent(r, "rbac.role.delete", map[string]any{
			"role_id": roleID,
		})
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "permissions":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		if !a.ensureScope(w, r, scopeAdmin) {
			return
		}
		var req updateRolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.rbac.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditEvent(r, "rbac.role.permissions.update", map[string]any{
			"role_id": roleID,
			"count":   len(req.Permissions),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func handleRBACError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrInvalidInput), errors.Is(err, authz.ErrInvalidRole):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrProtectedRole):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, authz.ErrCapacityExceeded):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, authz.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, authz.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "rbac operation failed")
	}
}
