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

// Package common holds the error taxonomy shared by every layer of the
// storage engine. Callers branch on these sentinels with errors.Is; the
// underlying engine error text is kept in the wrap but is never the sole
// signal.
package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

var (
	// ErrNotFound reports a missing row (inode, dentry, symlink, tool call).
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a uniqueness violation (duplicate dentry name,
	// duplicate key). Callers frequently branch on "already exists".
	ErrConflict = errors.New("already exists")
	// ErrConfig reports an unusable configuration: unknown dialect,
	// malformed connection descriptor. Always surfaced before any
	// connection is attempted.
	ErrConfig = errors.New("configuration error")
	// ErrConnectivity reports an unreachable or rejecting engine. Never
	// retried automatically by this layer.
	ErrConnectivity = errors.New("connection error")
	// ErrPoolExhausted reports a timeout waiting for a pooled connection.
	// Tagged only on the acquisition path, never on statement timeouts,
	// and distinct from ErrConnectivity so callers can apply backoff.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrConversion reports a value that does not fit the neutral value
	// model (integer overflow, unexpected column type).
	ErrConversion = errors.New("value conversion error")
)

// Wrap tags err with a category sentinel and the failing operation name.
// The result satisfies errors.Is for both the sentinel and the original
// error.
func Wrap(sentinel error, op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, sentinel, err)
}

// Classify re-tags a driver-reported error into the taxonomy above,
// keeping the original error in the chain. nil stays nil; errors already
// carrying a sentinel pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		ErrNotFound, ErrConflict, ErrConfig,
		ErrConnectivity, ErrPoolExhausted, ErrConversion,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505": // unique_violation
			return Wrap(ErrConflict, op, err)
		case pqErr.Code.Class() == "08": // connection exceptions
			return Wrap(ErrConnectivity, op, err)
		case pqErr.Code.Class() == "28": // invalid authorization
			return Wrap(ErrConnectivity, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062, 1586: // ER_DUP_ENTRY
			return Wrap(ErrConflict, op, err)
		case 1044, 1045, 1049, 2003: // access denied, unknown db, can't connect
			return Wrap(ErrConnectivity, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	// libsql reports errors as flat strings; match on the stable message
	// prefixes SQLite has used for decades.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"),
		strings.Contains(msg, "PRIMARY KEY constraint failed"):
		return Wrap(ErrConflict, op, err)
	case strings.Contains(msg, "unable to open database"),
		strings.Contains(msg, "connection refused"):
		return Wrap(ErrConnectivity, op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// IsConflict reports whether err is a uniqueness violation.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
