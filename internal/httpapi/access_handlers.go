package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"caseguard.org/internal/audit"
	"caseguard.org/internal/authz"
)

type accessCheckRequest struct {
	UserID     string `json:"user_id"`
	CaseID     string `json:"case_id"`
	Capability string `json:"capability"`
}

type accessCheckResponse struct {
	Allowed       bool   `json:"allowed"`
	GrantPath     string `json:"grant_path,omitempty"`
	EffectiveRole string `json:"effective_role,omitempty"`
}

type shareRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (a *API) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.guard == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access engine unavailable")
		return
	}
	actor, ok := authz.ActorIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req accessCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	subject := strings.TrimSpace(req.UserID)
	if subject == "" {
		subject = actor
	}
	if subject != actor && !authz.HasScope(r.Context(), scopeAdmin) {
		writeError(w, r, http.StatusForbidden, "insufficient scope")
		return
	}

	decision := a.guard.Check(r.Context(), subject, req.CaseID, authz.Capability(req.Capability))
	writeJSON(w, http.StatusOK, accessCheckResponse{
		Allowed:       decision.Allowed,
		GrantPath:     string(decision.GrantPath),
		EffectiveRole: decision.EffectiveRole,
	})
}

func (a *API) handleCaseScoped(w http.ResponseWriter, r *http.Request) {
	if a.sharing == nil {
		writeError(w, r, http.StatusServiceUnavailable, "sharing service unavailable")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/cases/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	caseID := parts[0]
	switch {
	case len(parts) == 2 && parts[1] == "participants":
		a.handleCaseParticipants(w, r, caseID)
	case len(parts) == 3 && parts[1] == "participants":
		a.handleCaseParticipant(w, r, caseID, parts[2])
	case len(parts) == 2 && parts[1] == "audit":
		a.handleCaseAudit(w, r, caseID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleCaseParticipants(w http.ResponseWriter, r *http.Request, caseID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requireCaseAccess(w, r, caseID, authz.CapabilityRead) {
			return
		}
		participants, err := a.sharing.GetCaseParticipants(r.Context(), caseID)
		if err != nil {
			handleSharingError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"case_id":      caseID,
			"participants": participants,
		})

	case http.MethodPost:
		if !a.requireCaseAccess(w, r, caseID, authz.CapabilityManage) {
			return
		}
		var req shareRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		actor, _ := authz.ActorIDFromContext(r.Context())
		result, err := a.sharing.ShareCase(r.Context(), caseID, req.UserID, authz.ParticipantRole(req.Role), actor)
		if err != nil {
			handleSharingError(w, r, err)
			return
		}
		a.auditEvent(r, "sharing.case.shared", map[string]any{
			"case_id":        caseID,
			"target_user_id": req.UserID,
			"outcome":        string(result.Outcome),
			"role":           string(result.NewRole),
		})
		code := http.StatusOK
		if result.Outcome == authz.ShareCreated {
			code = http.StatusCreated
		}
		writeJSON(w, code, result)

	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCaseParticipant(w http.ResponseWriter, r *http.Request, caseID, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.requireCaseAccess(w, r, caseID, authz.CapabilityManage) {
		return
	}
	actor, _ := authz.ActorIDFromContext(r.Context())
	result, err := a.sharing.UnshareCase(r.Context(), caseID, userID, actor)
	if err != nil {
		handleSharingError(w, r, err)
		return
	}
	if result.Removed {
		a.auditEvent(r, "sharing.case.unshared", map[string]any{
			"case_id":        caseID,
			"target_user_id": userID,
			"old_role":       string(result.OldRole),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCaseAudit(w http.ResponseWriter, r *http.Request, caseID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireCaseAccess(w, r, caseID, authz.CapabilityManage) {
		return
	}
	entries, err := a.sharing.GetSharingAudit(r.Context(), caseID)
	if err != nil {
		handleSharingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"case_id": caseID,
		"entries": entries,
	})
}

func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	if a.sharing == nil {
		writeError(w, r, http.StatusServiceUnavailable, "sharing service unavailable")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "shared-cases" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	userID := parts[0]
	actor, ok := authz.ActorIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if actor != userID && !authz.HasScope(r.Context(), scopeAdmin) {
		writeError(w, r, http.StatusForbidden, "insufficient scope")
		return
	}
	cases, err := a.sharing.GetUserSharedCases(r.Context(), userID)
	if err != nil {
		handleSharingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"cases":   cases,
	})
}

// requireCaseAccess runs the decision engine for the acting user. Admin
// tokens bypass the per-case check so operators can manage any grant.
func (a *API) requireCaseAccess(w http.ResponseWriter, r *http.Request, caseID string, capability authz.Capability) bool {
	actor, ok := authz.ActorIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if authz.HasScope(r.Context(), scopeAdmin) {
		return true
	}
	if a.guard == nil {
		writeError(w, r, http.StatusServiceUnavailable, "access engine unavailable")
		return false
	}
	if err := a.guard.Require(r.Context(), actor, caseID, capability); err != nil {
		writeError(w, r, http.StatusForbidden, "access denied")
		return false
	}
	return true
}

func (a *API) auditEvent(r *http.Request, event string, fields map[string]any) {
	_ = audit.LogEvent(r.Context(), event, fields)
}

func handleSharingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrInvalidRole), errors.Is(err, authz.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, authz.ErrConcurrentModification):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, authz.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, authz.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, "access denied")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
