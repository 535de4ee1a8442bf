// Copyright 2025 AgentSQL Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/cryptopatrick/agentsql/internal/common"
)

// acquire borrows one live connection from the pool for the duration of a
// unit of work. When the pool is exhausted the wait is bounded by the
// configured acquire timeout; hitting it yields a pool-exhaustion error,
// never an indefinite hang. The returned release function must be called
// on every exit path.
func (b *Backend) acquire(ctx context.Context) (*sql.Conn, func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, b.settings.AcquireTimeout)
	defer cancel()

	conn, err := b.sqlDB.Conn(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil, common.Wrap(common.ErrPoolExhausted, "pool.acquire", err)
		}
		return nil, nil, common.Classify("pool.acquire", err)
	}
	release := func() {
		// Returning a connection never fails the operation that used it.
		_ = conn.Close()
	}
	return conn, release, nil
}

// bunConn is acquire for the query-builder operations: same bounded wait
// and the same pool-exhaustion tagging, returning a bun-wrapped
// connection.
func (b *Backend) bunConn(ctx context.Context) (bun.Conn, func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, b.settings.AcquireTimeout)
	defer cancel()

	conn, err := b.db.Conn(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return bun.Conn{}, nil, common.Wrap(common.ErrPoolExhausted, "pool.acquire", err)
		}
		return bun.Conn{}, nil, common.Classify("pool.acquire", err)
	}
	release := func() {
		_ = conn.Close()
	}
	return conn, release, nil
}

// Stats reports the pool's current occupancy.
func (b *Backend) Stats() sql.DBStats {
	return b.sqlDB.Stats()
}
