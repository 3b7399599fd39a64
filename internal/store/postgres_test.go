package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSerializationRetry_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := withSerializationRetry(maxSerializationAttempts, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("store: run transaction: %w", &pgconn.PgError{Code: "40001"})
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithSerializationRetry_GivesUpAfterBoundedAttempts(t *testing.T) {
	calls := 0
	serializationErr := &pgconn.PgError{Code: "40001"}
	err := withSerializationRetry(maxSerializationAttempts, func() error {
		calls++
		return serializationErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, serializationErr)
	assert.Equal(t, maxSerializationAttempts, calls)
}

func TestWithSerializationRetry_OtherErrorsSurfaceImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("connection refused")
	err := withSerializationRetry(maxSerializationAttempts, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestIsSerializationFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization_failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock_detected", &pgconn.PgError{Code: "40P01"}, true},
		{"wrapped_serialization_failure", fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique_violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain_error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isSerializationFailure(tt.err))
		})
	}
}
