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

	"github.com/cryptopatrick/agentsql/internal/common"
)

// Raw escape hatches. These run caller-supplied SQL after translation;
// the translator fixes placeholders and re-quotes double-quoted
// identifiers, but the caller is responsible for keeping the statement
// text portable across dialects, including writing columns that collide
// with a keyword ("key", "offset") in double quotes. This is an explicit
// trust boundary, not an abstraction.

// Query runs a caller-supplied SELECT and returns the rows in the
// neutral value representation.
func (b *Backend) Query(ctx context.Context, template string, args ...any) ([]Row, error) {
	conn, release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	rows, err := conn.QueryContext(opCtx, b.desc.Translate(template), args...)
	if err != nil {
		return nil, common.Classify("raw.query", err)
	}
	defer rows.Close()

	return normalizeRows(rows)
}

// Exec runs a caller-supplied mutating statement and returns the
// affected row count.
func (b *Backend) Exec(ctx context.Context, template string, args ...any) (int64, error) {
	conn, release, err := b.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	opCtx, cancel := b.opCtx(ctx)
	defer cancel()

	res, err := conn.ExecContext(opCtx, b.desc.Translate(template), args...)
	if err != nil {
		return 0, common.Classify("raw.exec", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, common.Classify("raw.exec", err)
	}
	return n, nil
}
