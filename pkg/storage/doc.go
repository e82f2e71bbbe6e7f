// Package storage provides the persistence plumbing shared by every hearth
// service: units of work, post-mutation hooks and schema migrations.
//
// # Units of Work
//
// A UnitOfWork groups the writes of one operation so they commit or roll
// back together. SQLUnitOfWork opens a transaction and binds it to the
// context; stores pick it up through Q:
//
//	err := uow.Do(ctx, func(ctx context.Context) error {
//		if err := contacts.Update(ctx, c); err != nil {
//			return err
//		}
//		return history.Append(ctx, rec)
//	})
//
// Nested Do calls join the outer unit. LocalUnitOfWork gives in-memory stores
// the same contract by serializing units behind a mutex.
//
// # After-Commit Callbacks
//
// AfterCommit defers side effects such as cache invalidation or staged
// in-memory inserts until the outermost unit commits. They are dropped when
// the unit rolls back, and run immediately outside a unit.
//
// # Hooks
//
// HookChain runs named hooks over the before and after copies of an entity,
// inside the unit of work and before the store write:
//
//	hooks := storage.NewHookChain[crm.Contact]().
//		Use("stamp", stampUpdatedAt).
//		Use("audit", recordStatusChange)
//
// A failing hook aborts the mutation.
//
// # Migrations
//
// Migrate applies the numbered migrations returned by Migrations, each in
// its own transaction with its schema_migrations row. Applied versions are
// skipped, so running it at every start is safe.
//
// # Backends
//
// The postgres subpackage opens the PostgreSQL pool and the optional Redis
// client and classifies driver errors (unique and foreign key violations,
// serialization failures, lock timeouts). The storagetest subpackage starts a
// migrated PostgreSQL container for integration tests.
package storage
