package storage

import (
	"context"
	"database/sql"
	"sync"

	"github.com/platinummonkey/hearth/pkg/contextkeys"
)

// UnitOfWork runs fn atomically. Calls nested inside an open unit of work join it.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

type unitState struct {
	mu          sync.Mutex
	afterCommit []func()
}

func (s *unitState) add(fn func()) {
	s.mu.Lock()
	s.afterCommit = append(s.afterCommit, fn)
	s.mu.Unlock()
}

func (s *unitState) run() {
	s.mu.Lock()
	fns := s.afterCommit
	s.afterCommit = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func stateFrom(ctx context.Context) *unitState {
	s, _ := ctx.Value(contextkeys.UnitOfWorkKey).(*unitState)
	return s
}

// InUnit reports whether ctx is inside a unit of work
func InUnit(ctx context.Context) bool {
	return stateFrom(ctx) != nil
}

// AfterCommit schedules fn to run once the outermost unit of work commits.
// Outside a unit of work fn runs immediately. Rolled back units drop fn.
func AfterCommit(ctx context.Context, fn func()) {
	if s := stateFrom(ctx); s != nil {
		s.add(fn)
		return
	}
	fn()
}

// SQLUnitOfWork runs units inside a database transaction
type SQLUnitOfWork struct {
	db *sql.DB
}

// NewSQLUnitOfWork creates a transactional unit of work
func NewSQLUnitOfWork(db *sql.DB) *SQLUnitOfWork {
	return &SQLUnitOfWork{db: db}
}

// Do runs fn in a transaction bound to ctx
func (u *SQLUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if stateFrom(ctx) != nil {
		return fn(ctx)
	}

	state := &unitState{}
	err := RunInTx(context.WithValue(ctx, contextkeys.UnitOfWorkKey, state), u.db, fn)
	if err != nil {
		return err
	}
	state.run()
	return nil
}

// LocalUnitOfWork serializes units with a mutex. It backs the in-memory
// stores, which apply their writes only after every check and hook passed.
type LocalUnitOfWork struct {
	mu sync.Mutex
}

// NewLocalUnitOfWork creates an in-process unit of work
func NewLocalUnitOfWork() *LocalUnitOfWork {
	return &LocalUnitOfWork{}
}

// Do runs fn while holding the unit lock
func (u *LocalUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if stateFrom(ctx) != nil {
		return fn(ctx)
	}

	state := &unitState{}
	err := func() error {
		u.mu.Lock()
		defer u.mu.Unlock()
		return fn(context.WithValue(ctx, contextkeys.UnitOfWorkKey, state))
	}()
	if err != nil {
		return err
	}
	state.run()
	return nil
}
