package crm

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/hearth/pkg/audit"
	"github.com/platinummonkey/hearth/pkg/contextkeys"
	"github.com/platinummonkey/hearth/pkg/httputil"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/platinummonkey/hearth/pkg/rbac"
	"github.com/platinummonkey/hearth/pkg/sequence"
)

// Handlers provides HTTP handlers for contacts and jobs
type Handlers struct {
	contacts *Contacts
	jobs     *Jobs
}

// NewHandlers creates new handlers
func NewHandlers(contacts *Contacts, jobs *Jobs) *Handlers {
	return &Handlers{contacts: contacts, jobs: jobs}
}

// RegisterRoutes registers the contact and job routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenants/{tenant_id}/contacts", h.CreateContact).Methods("POST")
	router.HandleFunc("/tenants/{tenant_id}/contacts", h.ListContacts).Methods("GET")
	router.HandleFunc("/tenants/{tenant_id}/contacts/{contact_id}", h.GetContact).Methods("GET")
	router.HandleFunc("/tenants/{tenant_id}/contacts/{contact_id}", h.UpdateContact).Methods("PATCH")
	router.HandleFunc("/tenants/{tenant_id}/contacts/{contact_id}/history", h.ContactHistory).Methods("GET")

	router.HandleFunc("/tenants/{tenant_id}/jobs", h.CreateJob).Methods("POST")
	router.HandleFunc("/tenants/{tenant_id}/jobs", h.ListJobs).Methods("GET")
	router.HandleFunc("/tenants/{tenant_id}/jobs/{job_id}", h.GetJob).Methods("GET")
	router.HandleFunc("/tenants/{tenant_id}/jobs/{job_id}", h.UpdateJob).Methods("PATCH")
	router.HandleFunc("/tenants/{tenant_id}/jobs/{job_id}/history", h.JobHistory).Methods("GET")
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	cause := httputil.WriteServiceError(w, err, ErrorStatuses, rbac.ErrorStatuses, sequence.ErrorStatuses, audit.ErrorStatuses)
	if cause != nil {
		observability.FromContext(r.Context()).WithError(cause).Error("request failed")
	}
}

// scope extracts the caller, the tenant and optionally one entity id
func scope(w http.ResponseWriter, r *http.Request, idVar string) (actor, tenant, id uuid.UUID, ok bool) {
	actor, ok = contextkeys.GetPrincipalID(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if tenant, ok = httputil.ParsePathUUIDOrError(w, r, rbac.TenantVar); !ok {
		return
	}
	if idVar != "" {
		id, ok = httputil.ParsePathUUIDOrError(w, r, idVar)
	}
	return
}

func writeHistory(w http.ResponseWriter, r *http.Request, records []audit.Record) {
	format, err := audit.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	if err := audit.Export(w, records, format); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("history export failed")
	}
}

// CreateContact adds a contact to the tenant
func (h *Handlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	actor, tenant, _, ok := scope(w, r, "")
	if !ok {
		return
	}
	var in ContactInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	c, err := h.contacts.Create(r.Context(), actor, tenant, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, c)
}

// ListContacts returns the tenant's contacts
func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	actor, tenant, _, ok := scope(w, r, "")
	if !ok {
		return
	}

	contacts, err := h.contacts.List(r.Context(), actor, tenant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, contacts)
}

// GetContact returns one contact
func (h *Handlers) GetContact(w http.ResponseWriter, r *http.Request) {
	actor, tenant, id, ok := scope(w, r, "contact_id")
	if !ok {
		return
	}

	c, err := h.contacts.Get(r.Context(), actor, tenant, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

// UpdateContact applies a partial update
func (h *Handlers) UpdateContact(w http.ResponseWriter, r *http.Request) {
	actor, tenant, id, ok := scope(w, r, "contact_id")
	if !ok {
		return
	}
	var patch ContactPatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	c, err := h.contacts.Update(r.Context(), actor, tenant, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

// ContactHistory exports the contact's history; ?format=json|ndjson|csv
func (h *Handlers) ContactHistory(w http.ResponseWriter, r *http.Request) {
	actor, tenant, id, ok := scope(w, r, "contact_id")
	if !ok {
		return
	}

	records, err := h.contacts.History(r.Context(), actor, tenant, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeHistory(w, r, records)
}

// CreateJob opens a job
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	actor, tenant, _, ok := scope(w, r, "")
	if !ok {
		return
	}
	var in JobInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	j, err := h.jobs.Create(r.Context(), actor, tenant, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, j)
}

// ListJobs returns the tenant's jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	actor, tenant, _, ok := scope(w, r, "")
	if !ok {
		return
	}

	jobs, err := h.jobs.List(r.Context(), actor, tenant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, jobs)
}

// GetJob returns one job
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	actor, tenant, id, ok := scope(w, r, "job_id")
	if !ok {
		return
	}

	j, err := h.jobs.Get(r.Context(), actor, tenant, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, j)
}

// UpdateJob applies a partial update
func (h *Handlers) UpdateJob(w http.ResponseWriter, r *http.Request) {
	actor, tenant, id, ok := scope(w, r, "job_id")
	if !ok {
		return
	}
	var patch JobPatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	j, err := h.jobs.Update(r.Context(), actor, tenant, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, j)
}

// JobHistory exports the job's history; ?format=json|ndjson|csv
func (h *Handlers) JobHistory(w http.ResponseWriter, r *http.Request) {
	actor, tenant, id, ok := scope(w, r, "job_id")
	if !ok {
		return
	}

	records, err := h.jobs.History(r.Context(), actor, tenant, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeHistory(w, r, records)
}
