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
	"fmt"
	"strings"

	"github.com/cryptopatrick/agentsql/internal/common"
	"github.com/cryptopatrick/agentsql/internal/dialect"
	"github.com/cryptopatrick/agentsql/internal/util"
)

// Key-value operations. These go through neutral SQL templates and the
// statement translator rather than the query builder, because the upsert
// form and the engine-side timestamp expression are exactly the parts
// that differ per dialect.

// upsertKV returns the neutral upsert template for this dialect: insert
// if absent, else overwrite value and refresh updated_at. Timestamps are
// derived on the engine so concurrent writers share one clock.
func upsertKV(d dialect.Descriptor) string {
	now := d.NowEpoch
	switch d.Kind {
	case dialect.MySQL:
		return fmt.Sprintf(
			`INSERT INTO kv_store ("key", value, created_at, updated_at) VALUES (?, ?, %s, %s) `+
				"ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = %s",
			now, now, now)
	default: // SQLite and Postgres share the ON CONFLICT form
		return fmt.Sprintf(
			`INSERT INTO kv_store ("key", value, created_at, updated_at) VALUES (?, ?, %s, %s) `+
				`ON CONFLICT ("key") DO UPDATE SET value = EXCLUDED.value, updated_at = %s`,
			now, now, now)
	}
}

// Put inserts or overwrites one key. Succeeds unconditionally given a
// reachable connection.
func (b *Backend) Put(ctx context.Context, key, value string) error {
	stmt := b.desc.Translate(upsertKV(b.desc))
	return util.Retry(ctx, func() error {
		conn, release, err := b.acquire(ctx)
		if err != nil {
			return err
		}
		defer release()

		opCtx, cancel := b.opCtx(ctx)
		defer cancel()
		_, err = conn.ExecContext(opCtx, stmt, key, value)
		return common.Classify("kv.put", err)
	})
}

// Get returns the value for key, with found=false (not an error) for a
// missing key.
func (b *Backend) Get(ctx context.Context, key string) (string, bool, error) {
	conn, release, err := b.acquire(ctx)
	if err != nil {
		return "", false, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	stmt := b.desc.Translate(`SELECT value FROM kv_store WHERE "key" = ?`)
	var value string
	err = conn.QueryRowContext(opCtx, stmt, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, common.Classify("kv.get", err)
	}
	return value, true, nil
}

// GetEntry returns the full row for key, including its timestamps.
func (b *Backend) GetEntry(ctx context.Context, key string) (*KVEntry, error) {
	conn, release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	stmt := b.desc.Translate(`SELECT "key", value, created_at, updated_at FROM kv_store WHERE "key" = ?`)
	var e KVEntry
	err = conn.QueryRowContext(opCtx, stmt, key).
		Scan(&e.Key, &e.Value, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.Wrap(common.ErrNotFound, "kv.get", fmt.Errorf("key %q", key))
	}
	if err != nil {
		return nil, common.Classify("kv.get", err)
	}
	return &e, nil
}

// Exists reports whether key is present.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	conn, release, err := b.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	stmt := b.desc.Translate(`SELECT 1 FROM kv_store WHERE "key" = ? LIMIT 1`)
	var one int
	err = conn.QueryRowContext(opCtx, stmt, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, common.Classify("kv.exists", err)
	}
	return true, nil
}

// Delete removes key and reports whether a row was actually removed.
func (b *Backend) Delete(ctx context.Context, key string) (bool, error) {
	stmt := b.desc.Translate(`DELETE FROM kv_store WHERE "key" = ?`)
	return util.RetryWithResult(ctx, func() (bool, error) {
		conn, release, err := b.acquire(ctx)
		if err != nil {
			return false, err
		}
		defer release()

		opCtx, cancel := b.opCtx(ctx)
		defer cancel()
		res, err := conn.ExecContext(opCtx, stmt, key)
		if err != nil {
			return false, common.Classify("kv.delete", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, common.Classify("kv.delete", err)
		}
		return n > 0, nil
	})
}

// Scan returns every entry whose key starts with prefix, ordered by key.
// Zero matches is an empty result, not an error.
func (b *Backend) Scan(ctx context.Context, prefix string) ([]KVEntry, error) {
	conn, release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	stmt := b.desc.Translate(
		`SELECT "key", value, created_at, updated_at FROM kv_store ` +
			`WHERE "key" LIKE ? ESCAPE '!' ORDER BY "key"`)
	rows, err := conn.QueryContext(opCtx, stmt, escapeLike(prefix)+"%")
	if err != nil {
		return nil, common.Classify("kv.scan", err)
	}
	defer rows.Close()

	var entries []KVEntry
	for rows.Next() {
		var e KVEntry
		if err := rows.Scan(&e.Key, &e.Value, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, common.Classify("kv.scan", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Classify("kv.scan", err)
	}
	return entries, nil
}

// escapeLike neutralizes LIKE metacharacters in a literal prefix so that
// Scan matches exactly the keys starting with it. '!' is the escape
// character in every supported dialect's string literal syntax.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
