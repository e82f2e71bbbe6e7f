package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		unique     bool
		foreignKey bool
		contention bool
	}{
		{name: "unique violation", err: &pq.Error{Code: CodeUniqueViolation}, unique: true},
		{name: "wrapped unique violation", err: fmt.Errorf("insert: %w", &pq.Error{Code: CodeUniqueViolation}), unique: true},
		{name: "foreign key", err: &pq.Error{Code: CodeForeignKeyViolation}, foreignKey: true},
		{name: "serialization failure", err: &pq.Error{Code: CodeSerializationFailure}, contention: true},
		{name: "deadlock", err: &pq.Error{Code: CodeDeadlockDetected}, contention: true},
		{name: "lock not available", err: &pq.Error{Code: CodeLockNotAvailable}, contention: true},
		{name: "plain error", err: errors.New("boom")},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, IsUniqueViolation(tt.err))
			assert.Equal(t, tt.foreignKey, IsForeignKeyViolation(tt.err))
			assert.Equal(t, tt.contention, IsContention(tt.err))
		})
	}
}
