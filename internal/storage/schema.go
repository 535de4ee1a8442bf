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
	"fmt"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/cryptopatrick/agentsql/internal/common"
	"github.com/cryptopatrick/agentsql/internal/dialect"
)

const SchemaVersion = "1"

// File mode constants (POSIX)
const (
	ModeDir     = 0040000 // Directory
	ModeFile    = 0100000 // Regular file
	ModeSymlink = 0120000 // Symbolic link
	ModeMask    = 0170000 // Type mask
)

// Default permissions
const (
	DefaultDirMode     = ModeDir | 0755     // rwxr-xr-x
	DefaultFileMode    = ModeFile | 0644    // rw-r--r--
	DefaultSymlinkMode = ModeSymlink | 0777 // lrwxrwxrwx
)

// Root inode number. Seeded once at install time; never deleted.
const RootIno = 1

// One migration script per dialect, applying the same logical schema.
// Table order is fixed: inode, dentry, data, symlink, kv, tool_calls.
// Every statement is idempotent so the scripts can be re-run against a
// partially-initialized database from a crashed prior run.

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fs_config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- File/directory metadata
CREATE TABLE IF NOT EXISTS fs_inode (
    ino INTEGER PRIMARY KEY AUTOINCREMENT,
    mode INTEGER NOT NULL,
    uid INTEGER NOT NULL DEFAULT 0,
    gid INTEGER NOT NULL DEFAULT 0,
    size INTEGER NOT NULL DEFAULT 0,
    atime INTEGER NOT NULL,
    mtime INTEGER NOT NULL,
    ctime INTEGER NOT NULL,
    nlink INTEGER NOT NULL DEFAULT 1
);

-- Directory entries
CREATE TABLE IF NOT EXISTS fs_dentry (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    parent_ino INTEGER NOT NULL,
    ino INTEGER NOT NULL,
    UNIQUE (parent_ino, name)
);

CREATE INDEX IF NOT EXISTS idx_fs_dentry_parent ON fs_dentry(parent_ino, name);

-- File content, stored as chunks at byte offsets
CREATE TABLE IF NOT EXISTS fs_data (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ino INTEGER NOT NULL,
    "offset" INTEGER NOT NULL,
    size INTEGER NOT NULL,
    data BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fs_data_ino ON fs_data(ino, "offset");

-- Symbolic link targets
CREATE TABLE IF NOT EXISTS fs_symlink (
    ino INTEGER PRIMARY KEY,
    target TEXT NOT NULL
);

-- Key-value namespace
CREATE TABLE IF NOT EXISTS kv_store (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_kv_store_created_at ON kv_store(created_at);

-- Tool invocation audit trail
CREATE TABLE IF NOT EXISTS tool_calls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    parameters TEXT,
    result TEXT,
    error TEXT,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'success', 'error')),
    started_at INTEGER NOT NULL,
    completed_at INTEGER,
    duration_ms INTEGER
);

CREATE INDEX IF NOT EXISTS idx_tool_calls_name ON tool_calls(name);
CREATE INDEX IF NOT EXISTS idx_tool_calls_started_at ON tool_calls(started_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS fs_config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fs_inode (
    ino BIGSERIAL PRIMARY KEY,
    mode BIGINT NOT NULL,
    uid BIGINT NOT NULL DEFAULT 0,
    gid BIGINT NOT NULL DEFAULT 0,
    size BIGINT NOT NULL DEFAULT 0,
    atime BIGINT NOT NULL,
    mtime BIGINT NOT NULL,
    ctime BIGINT NOT NULL,
    nlink BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS fs_dentry (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    parent_ino BIGINT NOT NULL,
    ino BIGINT NOT NULL,
    UNIQUE (parent_ino, name)
);

CREATE INDEX IF NOT EXISTS idx_fs_dentry_parent ON fs_dentry(parent_ino, name);

CREATE TABLE IF NOT EXISTS fs_data (
    id BIGSERIAL PRIMARY KEY,
    ino BIGINT NOT NULL,
    "offset" BIGINT NOT NULL,
    size BIGINT NOT NULL,
    data BYTEA NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fs_data_ino ON fs_data(ino, "offset");

CREATE TABLE IF NOT EXISTS fs_symlink (
    ino BIGINT PRIMARY KEY,
    target TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS kv_store (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    created_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM now())::bigint,
    updated_at BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM now())::bigint
);

CREATE INDEX IF NOT EXISTS idx_kv_store_created_at ON kv_store(created_at);

CREATE TABLE IF NOT EXISTS tool_calls (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    parameters TEXT,
    result TEXT,
    error TEXT,
    status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'success', 'error')),
    started_at BIGINT NOT NULL,
    completed_at BIGINT,
    duration_ms BIGINT
);

CREATE INDEX IF NOT EXISTS idx_tool_calls_name ON tool_calls(name);
CREATE INDEX IF NOT EXISTS idx_tool_calls_started_at ON tool_calls(started_at);
`

// MySQL lacks CREATE INDEX IF NOT EXISTS, so secondary indexes are
// declared inline in the table definitions.
const mysqlSchema = "\n" +
	"CREATE TABLE IF NOT EXISTS fs_config (\n" +
	"    `key` VARCHAR(255) PRIMARY KEY,\n" +
	"    value TEXT NOT NULL\n" +
	");\n" +
	"\n" +
	"CREATE TABLE IF NOT EXISTS fs_inode (\n" +
	"    ino BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,\n" +
	"    mode BIGINT NOT NULL,\n" +
	"    uid BIGINT NOT NULL DEFAULT 0,\n" +
	"    gid BIGINT NOT NULL DEFAULT 0,\n" +
	"    size BIGINT NOT NULL DEFAULT 0,\n" +
	"    atime BIGINT NOT NULL,\n" +
	"    mtime BIGINT NOT NULL,\n" +
	"    ctime BIGINT NOT NULL,\n" +
	"    nlink BIGINT NOT NULL DEFAULT 1\n" +
	");\n" +
	"\n" +
	"CREATE TABLE IF NOT EXISTS fs_dentry (\n" +
	"    id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,\n" +
	"    name VARCHAR(255) NOT NULL,\n" +
	"    parent_ino BIGINT NOT NULL,\n" +
	"    ino BIGINT NOT NULL,\n" +
	"    UNIQUE KEY uniq_fs_dentry (parent_ino, name),\n" +
	"    KEY idx_fs_dentry_parent (parent_ino, name)\n" +
	");\n" +
	"\n" +
	"CREATE TABLE IF NOT EXISTS fs_data (\n" +
	"    id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,\n" +
	"    ino BIGINT NOT NULL,\n" +
	"    `offset` BIGINT NOT NULL,\n" +
	"    size BIGINT NOT NULL,\n" +
	"    data LONGBLOB NOT NULL,\n" +
	"    KEY idx_fs_data_ino (ino, `offset`)\n" +
	");\n" +
	"\n" +
	"CREATE TABLE IF NOT EXISTS fs_symlink (\n" +
	"    ino BIGINT PRIMARY KEY,\n" +
	"    target TEXT NOT NULL\n" +
	");\n" +
	"\n" +
	"CREATE TABLE IF NOT EXISTS kv_store (\n" +
	"    `key` VARCHAR(255) PRIMARY KEY,\n" +
	"    value TEXT NOT NULL,\n" +
	"    created_at BIGINT NOT NULL,\n" +
	"    updated_at BIGINT NOT NULL,\n" +
	"    KEY idx_kv_store_created_at (created_at)\n" +
	");\n" +
	"\n" +
	"CREATE TABLE IF NOT EXISTS tool_calls (\n" +
	"    id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,\n" +
	"    name VARCHAR(255) NOT NULL,\n" +
	"    parameters TEXT,\n" +
	"    result TEXT,\n" +
	"    error TEXT,\n" +
	"    status VARCHAR(16) NOT NULL DEFAULT 'pending',\n" +
	"    started_at BIGINT NOT NULL,\n" +
	"    completed_at BIGINT,\n" +
	"    duration_ms BIGINT,\n" +
	"    KEY idx_tool_calls_name (name),\n" +
	"    KEY idx_tool_calls_started_at (started_at)\n" +
	");\n"

// schemaFor returns the migration script for the attached dialect.
func schemaFor(k dialect.Kind) string {
	switch k {
	case dialect.SQLite:
		return sqliteSchema
	case dialect.Postgres:
		return postgresSchema
	case dialect.MySQL:
		return mysqlSchema
	}
	return ""
}

// Resynchronize the identity generator after the manual root-row insert.
// Only Postgres needs this: a sequence does not advance on explicit key
// inserts, so the next generated ino would collide with the root.
const postgresSyncInoSeq = `SELECT setval(pg_get_serial_sequence('fs_inode', 'ino'), GREATEST((SELECT COALESCE(MAX(ino), 1) FROM fs_inode), 1))`

// Install makes the database ready: creates missing tables, seeds the
// root inode and the config rows. Idempotent: calling it on an already
// initialized database is a no-op, and concurrent first runs are safe
// because every seed uses the dialect's conflict-ignoring insert. For a
// file-backed embedded database the first run is additionally serialized
// with a lock file, since DDL in SQLite takes the whole database lock.
func (b *Backend) Install(ctx context.Context) error {
	if b.desc.Kind == dialect.SQLite && b.path != "" {
		lock := flock.New(b.path + ".lock")
		if err := lock.Lock(); err != nil {
			// Conflict-ignoring seeds keep an unguarded install correct;
			// concurrent first runs just contend on the database lock.
			b.log.WithError(err).Warn("install lock unavailable, continuing without it")
		} else {
			defer lock.Unlock()
		}
	}

	conn, release, err := b.acquire(ctx)
	if err != nil {
		return common.Classify("schema.install", err)
	}
	defer release()

	if !b.tablesExist(ctx, conn) {
		b.log.WithField("dialect", b.desc.Kind.String()).Info("installing schema")
		script := schemaFor(b.desc.Kind)
		if b.desc.Batch {
			if _, err := conn.ExecContext(ctx, script); err != nil {
				return common.Classify("schema.install", err)
			}
		} else {
			for _, stmt := range splitStatements(script) {
				if _, err := conn.ExecContext(ctx, stmt); err != nil {
					return common.Classify("schema.install",
						fmt.Errorf("statement %q: %w", firstLine(stmt), err))
				}
			}
		}
	}

	// Seeds run on every install; conflict-ignoring inserts make them
	// no-ops on an initialized database and heal partial first runs.
	if err := b.seed(ctx, conn); err != nil {
		return err
	}

	if b.desc.Kind == dialect.Postgres {
		if _, err := conn.ExecContext(ctx, postgresSyncInoSeq); err != nil {
			return common.Classify("schema.install", err)
		}
	}
	return nil
}

// tablesExist checks for the last table the migration creates. Trusting a
// version flag would misreport a partially-initialized database from a
// crashed prior run; checking the final table cannot, because creation
// order is fixed.
func (b *Backend) tablesExist(ctx context.Context, conn execer) bool {
	_, err := conn.ExecContext(ctx, "SELECT 1 FROM tool_calls WHERE 1 = 0")
	return err == nil
}

func (b *Backend) seed(ctx context.Context, conn execer) error {
	d := b.desc
	now := d.NowEpoch

	rootSQL := d.Translate(fmt.Sprintf(
		"%s INTO fs_inode (ino, mode, uid, gid, size, atime, mtime, ctime, nlink) "+
			"VALUES (%d, ?, 0, 0, 0, %s, %s, %s, 2) %s",
		d.InsertIgnorePrefix, RootIno, now, now, now, d.InsertIgnoreSuffix))
	if _, err := conn.ExecContext(ctx, rootSQL, DefaultDirMode); err != nil {
		return common.Classify("schema.seed", err)
	}

	configSQL := d.Translate(fmt.Sprintf(
		`%s INTO fs_config ("key", value) VALUES (?, ?) %s`,
		d.InsertIgnorePrefix, d.InsertIgnoreSuffix))
	for _, kv := range [][2]string{
		{"schema_version", SchemaVersion},
		{"database_id", uuid.NewString()},
	} {
		if _, err := conn.ExecContext(ctx, configSQL, kv[0], kv[1]); err != nil {
			return common.Classify("schema.seed", err)
		}
	}
	return nil
}

// execer is the slice of sql.Conn the installer needs; it keeps the seed
// helpers testable without a live pool.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// splitStatements splits a SQL script into individual statements for
// engines that execute one statement per round trip. Comment lines and
// blank lines are dropped.
func splitStatements(script string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			statements = append(statements, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		statements = append(statements, s)
	}
	return statements
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
