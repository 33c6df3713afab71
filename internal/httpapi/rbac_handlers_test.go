package httpapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"caseguard.org/internal/authz"
)

func TestCreateOrganizationRequiresAdminScope(t *testing.T) {
	api := newTestAPI(t, &stubStore{})

	resp := api.post("/v1/organizations", map[string]any{
		"name": "Acme Legal",
		"slug": "acme-legal",
	}, api.authHeader("user-1", []string{"cases"}))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestCreateOrganizationSuccess(t *testing.T) {
	var captured authz.Organization
	store := &stubStore{
		createOrgFn: func(_ context.Context, org authz.Organization) (authz.Organization, error) {
			captured = org
			org.ID = "org-123"
			org.CreatedAt = time.Now().UTC()
			org.UpdatedAt = org.CreatedAt
			return org, nil
		},
	}
	api := newTestAPI(t, store)

	resp := api.post("/v1/organizations", map[string]any{
		"name":     "  Acme Legal  ",
		"slug":     "acme-legal",
		"settings": map[string]any{"region": "EU"},
	}, api.authHeader("admin-1", []string{"admin"}))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	payload := decode[authz.Organization](t, resp)

	if captured.Name != "Acme Legal" {
		t.Fatalf("expected trimmed name, got %q", captured.Name)
	}
	if captured.MaxMembers == 0 {
		t.Fatalf("expected default member cap applied")
	}
	if payload.ID != "org-123" {
		t.Fatalf("unexpected organization id: %s", payload.ID)
	}
}

func TestCreateOrganizationRejectsBadSlug(t *testing.T) {
	api := newTestAPI(t, &stubStore{})

	resp := api.post("/v1/organizations", map[string]any{
		"name": "Acme Legal",
		"slug": "Acme Legal!",
	}, api.authHeader("admin-1", []string{"admin"}))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAddOrgMemberCapacityConflict(t *testing.T) {
	store := &stubStore{
		getRoleFn: func(_ context.Context, roleID string) (authz.Role, error) {
			return authz.Role{ID: roleID, Name: "Member", Scope: authz.ScopeOrganization, System: true}, nil
		},
		addOrgMemberFn: func(_ context.Context, m authz.OrgMembership) (authz.OrgMembership, error) {
			return authz.OrgMembership{}, authz.ErrCapacityExceeded
		},
	}
	api := newTestAPI(t, store)

	resp := api.post("/v1/organizations/org-1/members", map[string]any{
		"user_id": "user-5",
		"role_id": "role_org_member",
	}, api.authHeader("admin-1", []string{"admin"}))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestDeleteSystemRoleConflict(t *testing.T) {
	store := &stubStore{
		getRoleFn: func(_ context.Context, roleID string) (authz.Role, error) {
			return authz.Role{ID: roleID, Name: "Org Owner", Scope: authz.ScopeOrganization, System: true}, nil
		},
	}
	api := newTestAPI(t, store)

	resp := api.do(http.MethodDelete, "/v1/roles/role_org_owner", nil,
		api.authHeader("admin-1", []string{"admin"}))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for system role, got %d", resp.StatusCode)
	}
}

func TestSetRolePermissionsUnknownRole(t *testing.T) {
	api := newTestAPI(t, &stubStore{})

	resp := api.do(http.MethodPut, "/v1/roles/role-x/permissions", map[string]any{
		"permissions": []string{"cases.read"},
	}, api.authHeader("admin-1", []string{"admin"}))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
