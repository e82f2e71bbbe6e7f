package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAfterCommit_OutsideUnit(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func() { ran = true })
	assert.True(t, ran)
}

func TestSQLUnitOfWork(t *testing.T) {
	t.Run("callbacks run after commit", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectCommit()

		var events []string
		uow := NewSQLUnitOfWork(db)
		err = uow.Do(context.Background(), func(ctx context.Context) error {
			AfterCommit(ctx, func() { events = append(events, "invalidate") })
			return uow.Do(ctx, func(ctx context.Context) error {
				AfterCommit(ctx, func() { events = append(events, "nested") })
				events = append(events, "work")
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"work", "invalidate", "nested"}, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("callbacks dropped on rollback", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		ran := false
		err = NewSQLUnitOfWork(db).Do(context.Background(), func(ctx context.Context) error {
			AfterCommit(ctx, func() { ran = true })
			return errors.New("boom")
		})
		assert.Error(t, err)
		assert.False(t, ran)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLocalUnitOfWork(t *testing.T) {
	t.Run("serializes units", func(t *testing.T) {
		uow := NewLocalUnitOfWork()
		counter := 0

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = uow.Do(context.Background(), func(ctx context.Context) error {
					v := counter
					counter = v + 1
					return nil
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 50, counter)
	})

	t.Run("nested units do not deadlock", func(t *testing.T) {
		uow := NewLocalUnitOfWork()
		var events []string
		err := uow.Do(context.Background(), func(ctx context.Context) error {
			AfterCommit(ctx, func() { events = append(events, "after") })
			return uow.Do(ctx, func(ctx context.Context) error {
				events = append(events, "inner")
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"inner", "after"}, events)
	})

	t.Run("error drops callbacks", func(t *testing.T) {
		ran := false
		err := NewLocalUnitOfWork().Do(context.Background(), func(ctx context.Context) error {
			AfterCommit(ctx, func() { ran = true })
			return errors.New("boom")
		})
		assert.Error(t, err)
		assert.False(t, ran)
	})
}

func TestLocalUnitOfWork_PanicReleasesLock(t *testing.T) {
	uow := NewLocalUnitOfWork()
	ctx := context.Background()

	committed := false
	assert.Panics(t, func() {
		_ = uow.Do(ctx, func(ctx context.Context) error {
			AfterCommit(ctx, func() { committed = true })
			panic("hook exploded")
		})
	})
	assert.False(t, committed)

	done := make(chan error, 1)
	go func() {
		done <- uow.Do(ctx, func(context.Context) error { return nil })
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("unit lock still held after a panicking unit")
	}
}
