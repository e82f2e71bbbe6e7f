// Package crm holds the tenant-owned records of a field service business:
// contacts and jobs.
//
// Every read and write goes through rbac.Scoped, so a caller only ever
// touches rows of a tenant it holds an active membership in. Updates run in
// a unit of work together with their audit records:
//
//	contacts.Update(ctx, actor, tenant, id, crm.ContactPatch{
//		RelationshipStatus: &qualified,
//		Reason:             "requested a quote",
//	})
//
// Job numbers are issued per tenant by the sequence service (JOB-000001,
// JOB-000002, ...).
package crm
