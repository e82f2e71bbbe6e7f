// Package sequence mints collision-free, per-tenant identifiers of the form
// PREFIX-NNNNNN (job numbers and the like).
//
// Numbers come from an atomic counter per (tenant, prefix). Three Counter
// implementations exist: PostgreSQL (a single upsert statement), Redis (INCR)
// and an in-memory map for tests and single-process use. Concurrent callers
// always receive distinct, increasing values.
package sequence
