package rbac

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/hearth/pkg/contextkeys"
	"github.com/platinummonkey/hearth/pkg/httputil"
	"github.com/platinummonkey/hearth/pkg/observability"
)

// ErrorStatuses maps rbac errors to HTTP statuses
var ErrorStatuses = []httputil.ErrorStatus{
	{Err: ErrUnauthorized, Status: http.StatusForbidden},
	{Err: ErrInvalidRole, Status: http.StatusBadRequest},
	{Err: ErrEmptyCapabilitySet, Status: http.StatusBadRequest},
	{Err: ErrDuplicateMembership, Status: http.StatusConflict},
	{Err: ErrLastOwner, Status: http.StatusConflict},
	{Err: ErrMembershipNotFound, Status: http.StatusNotFound},
}

// Handlers provides HTTP handlers for membership administration
type Handlers struct {
	memberships *Memberships
}

// NewHandlers creates new membership handlers
func NewHandlers(memberships *Memberships) *Handlers {
	return &Handlers{memberships: memberships}
}

// RegisterRoutes registers the membership routes. Capability checks happen in
// the service so the handlers and any other caller share one decision path.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenants/{tenant_id}/members/me", h.Me).Methods("GET")
	router.HandleFunc("/tenants/{tenant_id}/members", h.List).Methods("GET")
	router.HandleFunc("/tenants/{tenant_id}/members/{principal_id}", h.ChangeRole).Methods("PUT")
	router.HandleFunc("/tenants/{tenant_id}/members/{principal_id}", h.Deactivate).Methods("DELETE")
}

// ChangeRoleRequest is the body of PUT /tenants/{tenant_id}/members/{principal_id}
type ChangeRoleRequest struct {
	Role         Role          `json:"role"`
	Capabilities CapabilitySet `json:"capabilities,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if cause := httputil.WriteServiceError(w, err, ErrorStatuses); cause != nil {
		observability.FromContext(r.Context()).WithError(cause).Error("membership request failed")
	}
}

// Me returns the caller's active membership
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := contextkeys.GetPrincipalID(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	tenant, ok := httputil.ParsePathUUIDOrError(w, r, TenantVar)
	if !ok {
		return
	}

	m, err := h.memberships.Me(r.Context(), actor, tenant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

// List returns every membership of the tenant
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := contextkeys.GetPrincipalID(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	tenant, ok := httputil.ParsePathUUIDOrError(w, r, TenantVar)
	if !ok {
		return
	}

	members, err := h.memberships.List(r.Context(), actor, tenant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

// ChangeRole updates the role and capabilities of a member
func (h *Handlers) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := contextkeys.GetPrincipalID(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	tenant, ok := httputil.ParsePathUUIDOrError(w, r, TenantVar)
	if !ok {
		return
	}
	target, ok := httputil.ParsePathUUIDOrError(w, r, "principal_id")
	if !ok {
		return
	}

	var req ChangeRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	m, err := h.memberships.ChangeRole(r.Context(), actor, tenant, target, req.Role, req.Capabilities)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

// Deactivate soft-deletes a membership
func (h *Handlers) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := contextkeys.GetPrincipalID(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	tenant, ok := httputil.ParsePathUUIDOrError(w, r, TenantVar)
	if !ok {
		return
	}
	target, ok := httputil.ParsePathUUIDOrError(w, r, "principal_id")
	if !ok {
		return
	}

	m, err := h.memberships.Deactivate(r.Context(), actor, tenant, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}
