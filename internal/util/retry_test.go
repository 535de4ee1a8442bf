package util

import (
	"context"
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(errors.New("database is locked")))
	assert.True(t, IsTransient(&pq.Error{Code: "40001"}))
	assert.True(t, IsTransient(&pq.Error{Code: "40P01"}))
	assert.False(t, IsTransient(&pq.Error{Code: "23505"}))
	assert.True(t, IsTransient(&mysql.MySQLError{Number: 1213}))
	assert.False(t, IsTransient(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsTransient(errors.New("syntax error")))
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return errors.New("syntax error")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "permanent errors must not be retried")
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	t.Parallel()

	calls := 0
	got, err := RetryWithResult(context.Background(), func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("database is locked")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
}
