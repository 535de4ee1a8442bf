package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptopatrick/agentsql/internal/common"
	"github.com/cryptopatrick/agentsql/internal/config"
)

func TestAcquireTimesOutWhenPoolExhausted(t *testing.T) {
	t.Parallel()

	s := config.Default()
	s.PoolSize = 1
	s.MaxIdleConns = 1
	s.AcquireTimeout = 50 * time.Millisecond

	ctx := context.Background()
	b, err := Open(ctx, filepath.Join(t.TempDir(), "pool.db"), WithSettings(s))
	require.NoError(t, err)
	defer b.Close()

	_, release, err := b.acquire(ctx)
	require.NoError(t, err)

	// The only connection is held: the next acquisition must fail with a
	// distinct pool-exhaustion error instead of hanging.
	start := time.Now()
	_, _, err = b.acquire(ctx)
	assert.ErrorIs(t, err, common.ErrPoolExhausted)
	assert.Less(t, time.Since(start), 5*time.Second)

	// After release the pool serves again.
	release()
	_, release2, err := b.acquire(ctx)
	require.NoError(t, err)
	release2()
}

func TestConcurrentOperationsHoldDistinctConnections(t *testing.T) {
	t.Parallel()

	b := testBackend(t)
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(n int) {
			key := string(rune('a' + n))
			if err := b.Put(ctx, key, "v"); err != nil {
				done <- err
				return
			}
			_, _, err := b.Get(ctx, key)
			done <- err
		}(i)
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-done)
	}
}

func TestOperationsFailFastWhenPoolExhausted(t *testing.T) {
	t.Parallel()

	s := config.Default()
	s.PoolSize = 1
	s.MaxIdleConns = 1
	s.AcquireTimeout = 50 * time.Millisecond
	s.StatementTimeout = 3 * time.Second

	ctx := context.Background()
	b, err := Open(ctx, filepath.Join(t.TempDir(), "busy.db"), WithSettings(s))
	require.NoError(t, err)
	defer b.Close()

	_, release, err := b.acquire(ctx)
	require.NoError(t, err)
	defer release()

	// Every primitive waits at most the acquire timeout for a free
	// connection, not the much larger statement timeout, and reports the
	// distinct pool-exhaustion category.
	start := time.Now()
	err = b.Put(ctx, "k", "v")
	assert.ErrorIs(t, err, common.ErrPoolExhausted)
	assert.Less(t, time.Since(start), time.Second)

	_, _, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, common.ErrPoolExhausted)

	_, err = b.GetInode(ctx, RootIno)
	assert.ErrorIs(t, err, common.ErrPoolExhausted)

	_, err = b.BeginToolCall(ctx, "noop", "{}")
	assert.ErrorIs(t, err, common.ErrPoolExhausted)
}
