package rbac

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/platinummonkey/hearth/pkg/contextkeys"
	"github.com/platinummonkey/hearth/pkg/httputil"
	"github.com/platinummonkey/hearth/pkg/observability"
)

// TenantVar is the route variable holding the tenant id
const TenantVar = "tenant_id"

// TenantFromRequest parses the {tenant_id} route variable
func TenantFromRequest(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[TenantVar])
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// RequireCapability creates middleware that admits the request only when the
// authenticated principal holds capability in the tenant named by the route
func (g *Guard) RequireCapability(capability Capability) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := contextkeys.GetPrincipalID(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			tenant, ok := TenantFromRequest(r)
			if !ok {
				httputil.WriteBadRequest(w, "invalid tenant id")
				return
			}

			d, err := g.Authorize(r.Context(), principal, tenant, capability)
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("authorization check failed")
				httputil.WriteInternalError(w)
				return
			}
			if !d.Allowed {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
