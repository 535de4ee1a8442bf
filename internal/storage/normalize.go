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
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cryptopatrick/agentsql/internal/common"
)

// The neutral value representation: every engine's rows come back as
// named values of exactly four kinds. Values wider than int64 are a
// conversion error, never a silent truncation.

// ValueKind discriminates a neutral Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInt
	KindText
	KindBinary
)

// Value is one engine-independent column value.
type Value struct {
	Kind  ValueKind
	Int   int64
	Text  string
	Bytes []byte
}

// String renders the value for display.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindBinary:
		return fmt.Sprintf("<%d bytes>", len(v.Bytes))
	default:
		return v.Text
	}
}

// Row is an ordered sequence of named neutral values.
type Row struct {
	Columns []string
	Values  []Value
}

// normalizeRows drains rows into the neutral representation, using the
// driver's column type metadata to distinguish text from binary.
func normalizeRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, common.Classify("normalize", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, common.Classify("normalize", err)
	}
	dbTypes := make([]string, len(types))
	for i, t := range types {
		dbTypes[i] = t.DatabaseTypeName()
	}

	var out []Row
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, common.Classify("normalize", err)
		}

		values := make([]Value, len(cols))
		for i, r := range raw {
			v, err := neutralValue(r, dbTypes[i])
			if err != nil {
				return nil, common.Wrap(common.ErrConversion,
					fmt.Sprintf("normalize column %s", cols[i]), err)
			}
			values[i] = v
		}
		out = append(out, Row{Columns: cols, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, common.Classify("normalize", err)
	}
	return out, nil
}

// neutralValue converts one driver-native value. Binary column types come
// back as bytes whatever the engine calls them (BLOB, BYTEA, LONGBLOB);
// byte slices in text-typed columns are text.
func neutralValue(raw any, dbType string) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Value{Kind: KindNull}, nil
	case int64:
		return Value{Kind: KindInt, Int: x}, nil
	case int32:
		return Value{Kind: KindInt, Int: int64(x)}, nil
	case int:
		return Value{Kind: KindInt, Int: int64(x)}, nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, fmt.Errorf("unsigned value %d overflows int64", x)
		}
		return Value{Kind: KindInt, Int: int64(x)}, nil
	case bool:
		if x {
			return Value{Kind: KindInt, Int: 1}, nil
		}
		return Value{Kind: KindInt, Int: 0}, nil
	case string:
		return Value{Kind: KindText, Text: x}, nil
	case []byte:
		if isBinaryType(dbType) {
			// Copy: drivers may reuse the buffer on the next row.
			return Value{Kind: KindBinary, Bytes: append([]byte(nil), x...)}, nil
		}
		return Value{Kind: KindText, Text: string(x)}, nil
	case float64:
		return Value{Kind: KindText, Text: strconv.FormatFloat(x, 'g', -1, 64)}, nil
	case time.Time:
		return Value{Kind: KindText, Text: x.UTC().Format(time.RFC3339)}, nil
	default:
		return Value{}, fmt.Errorf("unexpected column type %T (%s)", raw, dbType)
	}
}

func isBinaryType(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BYTEA", "BINARY", "VARBINARY":
		return true
	}
	return false
}
