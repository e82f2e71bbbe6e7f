package orgs

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/hearth/pkg/contextkeys"
	"github.com/platinummonkey/hearth/pkg/httputil"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/platinummonkey/hearth/pkg/rbac"
)

// Handlers provides HTTP handlers for tenants, principals and invitations
type Handlers struct {
	tenants    *Tenants
	principals *Principals
	workflow   *Workflow
	defaultTTL time.Duration
}

// NewHandlers creates new handlers. defaultTTL applies to invitations
// created without an explicit ttl.
func NewHandlers(tenants *Tenants, principals *Principals, workflow *Workflow, defaultTTL time.Duration) *Handlers {
	return &Handlers{
		tenants:    tenants,
		principals: principals,
		workflow:   workflow,
		defaultTTL: defaultTTL,
	}
}

// RegisterRoutes registers the routes that require an authenticated principal
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenants", h.CreateTenant).Methods("POST")
	router.HandleFunc("/tenants", h.ListTenants).Methods("GET")
	router.HandleFunc("/tenants/{tenant_id}", h.GetTenant).Methods("GET")

	router.HandleFunc("/tenants/{tenant_id}/invitations", h.CreateInvitation).Methods("POST")
	router.HandleFunc("/tenants/{tenant_id}/invitations", h.ListInvitations).Methods("GET")
	router.HandleFunc("/tenants/{tenant_id}/invitations/{invitation_id}", h.CancelInvitation).Methods("DELETE")

	router.HandleFunc("/principals/me", h.SaveProfile).Methods("PUT")
	router.HandleFunc("/principals/{principal_id}", h.GetPrincipal).Methods("GET")
}

// RegisterInviteeRoutes registers the token authenticated invitee endpoints.
// Decline works without a principal; accept needs one to bind the membership to.
func (h *Handlers) RegisterInviteeRoutes(router *mux.Router) {
	router.HandleFunc("/invitations/{invitation_id}/accept", h.AcceptInvitation).Methods("POST")
	router.HandleFunc("/invitations/{invitation_id}/decline", h.DeclineInvitation).Methods("POST")
}

// CreateTenantRequest is the body of POST /tenants
type CreateTenantRequest struct {
	Name string `json:"name"`
}

// CreateTenantResponse returns the tenant and the caller's owner membership
type CreateTenantResponse struct {
	Tenant     *Tenant          `json:"tenant"`
	Membership *rbac.Membership `json:"membership"`
}

// CreateInvitationBody is the body of POST /tenants/{tenant_id}/invitations
type CreateInvitationBody struct {
	Role         rbac.Role          `json:"role"`
	Capabilities rbac.CapabilitySet `json:"capabilities,omitempty"`
	Email        string             `json:"email,omitempty"`
	Phone        string             `json:"phone,omitempty"`
	TTL          string             `json:"ttl,omitempty"` // Go duration, e.g. "48h"
}

// CreateInvitationResponse carries the invitee token, which is never shown again
type CreateInvitationResponse struct {
	Invitation *Invitation `json:"invitation"`
	Token      string      `json:"token"`
}

// InvitationTokenRequest is the body of the accept and decline endpoints
type InvitationTokenRequest struct {
	Token string `json:"token"`
}

// SaveProfileRequest is the body of PUT /principals/me
type SaveProfileRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if cause := httputil.WriteServiceError(w, err, ErrorStatuses, rbac.ErrorStatuses); cause != nil {
		observability.FromContext(r.Context()).WithError(cause).Error("request failed")
	}
}

func principalOrError(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := contextkeys.GetPrincipalID(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return id, false
	}
	return id, true
}

// CreateTenant creates a tenant owned by the caller
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	actor, ok := principalOrError(w, r)
	if !ok {
		return
	}

	var req CreateTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	t, m, err := h.tenants.Create(r.Context(), req.Name, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, CreateTenantResponse{Tenant: t, Membership: m})
}

// ListTenants returns the caller's tenants
func (h *Handlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	actor, ok := principalOrError(w, r)
	if !ok {
		return
	}

	tenants, err := h.tenants.Mine(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tenants)
}

// GetTenant returns one of the caller's tenants
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	actor, ok := principalOrError(w, r)
	if !ok {
		return
	}
	tenant, ok := httputil.ParsePathUUIDOrError(w, r, rbac.TenantVar)
	if !ok {
		return
	}

	t, err := h.tenants.Get(r.Context(), actor, tenant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, t)
}

// CreateInvitation invites a contact into the tenant
func (h *Handlers) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	actor, ok := principalOrError(w, r)
	if !ok {
		return
	}
	tenant, ok := httputil.ParsePathUUIDOrError(w, r, rbac.TenantVar)
	if !ok {
		return
	}

	var body CreateInvitationBody
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	ttl := h.defaultTTL
	if body.TTL != "" {
		parsed, err := time.ParseDuration(body.TTL)
		if err != nil {
			httputil.WriteBadRequest(w, "invalid ttl: "+err.Error())
			return
		}
		ttl = parsed
	}

	inv, token, err := h.workflow.Create(r.Context(), CreateInvitationRequest{
		TenantID:     tenant,
		InviterID:    actor,
		Role:         body.Role,
		Capabilities: body.Capabilities,
		Contact:      Contact{Email: body.Email, Phone: body.Phone},
		TTL:          ttl,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, CreateInvitationResponse{Invitation: inv, Token: token})
}

// ListInvitations returns the invitations of the tenant
func (h *Handlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
	actor, ok := principalOrError(w, r)
	if !ok {
		return
	}
	tenant, ok := httputil.ParsePathUUIDOrError(w, r, rbac.TenantVar)
	if !ok {
		return
	}

	invitations, err := h.workflow.List(r.Context(), actor, tenant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, invitations)
}

// CancelInvitation withdraws a pending invitation
func (h *Handlers) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	actor, ok := principalOrError(w, r)
	if !ok {
		return
	}
	tenant, ok := httputil.ParsePathUUIDOrError(w, r, rbac.TenantVar)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "invitation_id")
	if !ok {
		return
	}

	inv, err := h.workflow.Cancel(r.Context(), tenant, id, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

// AcceptInvitation joins the caller to the inviting tenant
func (h *Handlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	actor, ok := principalOrError(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "invitation_id")
	if !ok {
		return
	}

	var req InvitationTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) || !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	m, err := h.workflow.Accept(r.Context(), id, actor, req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

// DeclineInvitation declines an invitation with its token
func (h *Handlers) DeclineInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathUUIDOrError(w, r, "invitation_id")
	if !ok {
		return
	}

	var req InvitationTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) || !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	inv, err := h.workflow.Decline(r.Context(), id, req.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

// SaveProfile creates or updates the caller's principal profile
func (h *Handlers) SaveProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := principalOrError(w, r)
	if !ok {
		return
	}

	var req SaveProfileRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	p, err := h.principals.SaveProfile(r.Context(), actor, req.DisplayName, Contact{Email: req.Email, Phone: req.Phone})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

// GetPrincipal returns a principal visible to the caller
func (h *Handlers) GetPrincipal(w http.ResponseWriter, r *http.Request) {
	actor, ok := principalOrError(w, r)
	if !ok {
		return
	}
	target, ok := httputil.ParsePathUUIDOrError(w, r, "principal_id")
	if !ok {
		return
	}

	p, err := h.principals.View(r.Context(), actor, target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}
