// Package rbac provides tenant membership and capability based access control.
//
// # Overview
//
// Every principal reaches tenant-owned data through a Membership that binds
// it to one tenant with a Role and a CapabilitySet. The Guard is the single
// decision point: it resolves the caller's membership and admits an operation
// only when the membership is active and grants the required capability.
//
// # Roles and Capabilities
//
// Roles form a fixed enumeration, broadest first:
//
//	owner > admin > manager > employee > contractor = viewer
//
// The Catalog maps each role to its default capability set. Owners always
// hold the wildcard "*". Defaults can be overridden from a YAML file:
//
//	roles:
//	  contractor: [view_jobs, view_contacts, create_activities]
//
// WatchCatalogFile reloads the file whenever it changes.
//
// # Memberships
//
// Memberships.Upsert resolves empty capability sets from the role defaults
// once, at write time. Later catalog changes never rewrite stored sets.
//
//	m, err := memberships.Upsert(ctx, rbac.UpsertRequest{
//		TenantID:    tenantID,
//		PrincipalID: principalID,
//		Role:        rbac.RoleEmployee,
//	})
//
// ChangeRole and Deactivate require manage_team. An actor can only grant
// capabilities it holds itself, only wildcard holders can grant owner, and the
// last active owner of a tenant can be neither demoted nor deactivated.
//
// # Data Access
//
// Resource services read and write tenant-owned rows through Scoped:
//
//	contact, err := rbac.Scoped(ctx, guard, rbac.Access{
//		Principal:  principalID,
//		Tenant:     tenantID,
//		Capability: rbac.CapViewContacts,
//	}, func(ctx context.Context, m *rbac.Membership) (*Contact, error) {
//		return store.Get(ctx, tenantID, contactID)
//	})
//
// Over HTTP, Guard.RequireCapability does the same for a gorilla/mux route
// carrying a {tenant_id} variable.
//
// # Caching
//
// WithDecisionCache keeps membership lookups in an expirable LRU. Every
// membership write drops the affected entry after its unit of work commits,
// and lookups made inside a unit of work always go to the store.
package rbac
