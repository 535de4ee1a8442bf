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

// Package dialect is the static per-engine knowledge table: placeholder
// syntax, identity retrieval, binary column type, conflict-ignoring insert
// form, current-time expression, and batch capability. It performs no
// execution; everything here is a pure lookup or a pure text transform.
package dialect

import (
	"fmt"

	"github.com/cryptopatrick/agentsql/internal/common"
)

// Kind identifies one supported SQL engine.
type Kind int

const (
	// SQLite is the embedded single-file engine (libsql driver).
	SQLite Kind = iota
	// Postgres is the production client-server engine.
	Postgres
	// MySQL is the alternative client-server engine.
	MySQL
)

// String returns the canonical engine name.
func (k Kind) String() string {
	switch k {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	}
	return fmt.Sprintf("dialect(%d)", int(k))
}

// Descriptor is the read-only syntax/capability profile of one engine.
type Descriptor struct {
	Kind Kind
	// Driver is the database/sql driver name to open.
	Driver string
	// Numbered placeholders are $1..$N; otherwise positional ?.
	Numbered bool
	// Returning means a just-inserted identity is retrieved with
	// INSERT ... RETURNING instead of the driver's LastInsertId.
	Returning bool
	// BinaryType is the column type used for raw byte payloads.
	BinaryType string
	// InsertIgnorePrefix and InsertIgnoreSuffix wrap an INSERT so that a
	// uniqueness violation becomes a silent no-op.
	InsertIgnorePrefix string
	InsertIgnoreSuffix string
	// NowEpoch is the SQL expression for the current wall clock as epoch
	// seconds.
	NowEpoch string
	// Batch means a semicolon-separated script can run in one round trip.
	Batch bool

	quote byte
}

var descriptors = map[Kind]Descriptor{
	SQLite: {
		Kind:               SQLite,
		Driver:             "libsql",
		Numbered:           false,
		Returning:          false,
		BinaryType:         "BLOB",
		InsertIgnorePrefix: "INSERT OR IGNORE",
		InsertIgnoreSuffix: "",
		NowEpoch:           "unixepoch()",
		// The libsql driver executes one statement per Exec call.
		Batch: false,
		quote: '"',
	},
	Postgres: {
		Kind:               Postgres,
		Driver:             "postgres",
		Numbered:           true,
		Returning:          true,
		BinaryType:         "BYTEA",
		InsertIgnorePrefix: "INSERT",
		InsertIgnoreSuffix: "ON CONFLICT DO NOTHING",
		NowEpoch:           "EXTRACT(EPOCH FROM now())::bigint",
		Batch:              true,
		quote:              '"',
	},
	MySQL: {
		Kind:               MySQL,
		Driver:             "mysql",
		Numbered:           false,
		Returning:          false,
		BinaryType:         "LONGBLOB",
		InsertIgnorePrefix: "INSERT IGNORE",
		InsertIgnoreSuffix: "",
		NowEpoch:           "UNIX_TIMESTAMP()",
		// multiStatements is off by default in the driver DSN.
		Batch: false,
		quote: '`',
	},
}

// Parse maps an engine name to its Kind. Unknown names are a
// configuration error.
func Parse(name string) (Kind, error) {
	switch name {
	case "sqlite", "sqlite3", "libsql":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	}
	return 0, common.Wrap(common.ErrConfig, "dialect.parse",
		fmt.Errorf("unknown dialect %q", name))
}

// For returns the descriptor for k. Asking for an engine with no
// descriptor is a configuration error, surfaced at startup and never
// deferred to first query.
func For(k Kind) (Descriptor, error) {
	d, ok := descriptors[k]
	if !ok {
		return Descriptor{}, common.Wrap(common.ErrConfig, "dialect.lookup",
			fmt.Errorf("no descriptor for %v", k))
	}
	return d, nil
}

// Quote returns ident in the dialect's quoted form.
func (d Descriptor) Quote(ident string) string {
	q := string(d.quote)
	return q + ident + q
}
