// Package util provides shared helpers for agentsql.
package util

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// DatabaseRetryOptions returns retry options for transient engine errors.
// Linear backoff (100ms, 200ms, 300ms) suits short lock contention windows.
func DatabaseRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(300 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsTransient),
		retry.Context(ctx),
	}
}

// Retry executes fn with retry logic, retrying only transient errors.
func Retry(ctx context.Context, fn func() error) error {
	return retry.Do(fn, DatabaseRetryOptions(ctx)...)
}

// RetryWithResult executes fn with retry logic and returns its result.
func RetryWithResult[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	return retry.DoWithData(fn, DatabaseRetryOptions(ctx)...)
}

// IsTransient reports whether err is worth retrying: an embedded-engine
// lock, or a serialization failure / deadlock from a client-server engine.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure, deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// ER_LOCK_DEADLOCK, ER_LOCK_WAIT_TIMEOUT
		return myErr.Number == 1213 || myErr.Number == 1205
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
