// Package audit records the value transitions of tracked entity fields.
//
// Each entity (a contact, a job) owns an insertion-ordered history sequence.
// Records are appended with a single INSERT inside the unit of work of the
// mutation they describe, so a failed mutation leaves no record and a failed
// append aborts the mutation. Unchanged values are never recorded:
//
//	trail := audit.NewTrail(audit.NewPostgresStore(db))
//	wrote, err := trail.Record(ctx, audit.Change{
//		Entity:  audit.EntityRef{TenantID: tenant, Type: audit.EntityContact, ID: contactID},
//		Field:   audit.FieldRelationshipStatus,
//		From:    "prospect",
//		To:      "qualified_lead",
//		ActorID: actor,
//	})
//
// History can be exported as JSON, NDJSON or CSV with Export.
package audit
