// Package httputil holds the JSON plumbing shared by the hearth handlers.
//
// Handlers decode with ParseJSONOrError and read tenant, contact or job ids
// with ParsePathUUIDOrError. Both answer 400 themselves and report whether
// the handler may go on.
//
// Service failures go through WriteServiceError together with the
// ErrorStatuses tables of the packages involved in the call:
//
//	if cause := httputil.WriteServiceError(w, err, rbac.ErrorStatuses, crm.ErrorStatuses); cause != nil {
//		observability.FromContext(r.Context()).WithError(cause).Error("request failed")
//	}
//
// Errors no table maps become a bare 500 so storage details never reach
// the client.
package httputil
