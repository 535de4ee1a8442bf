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

package dialect

import (
	"strconv"
	"strings"
)

// Translate rewrites a dialect-neutral statement template into the
// concrete syntax of this dialect: neutral ? placeholders become $1..$N
// for engines with numbered placeholders, and double-quoted identifiers
// are re-quoted with the dialect's quote character (backticks on MySQL).
// Parameter order is preserved.
//
// Double quotes are the template notation for identifiers, so columns
// colliding with a keyword ("key", "offset", "user") must be written
// quoted; bare words are never rewritten, which keeps multi-word keyword
// forms (ON DUPLICATE KEY UPDATE, ORDER BY) intact. Single-quoted string
// literals pass through verbatim.
//
// This is a deterministic text transform with no execution; a malformed
// template (unterminated literal) is a programming error and the
// remainder is passed through verbatim. Identifiers containing a quote
// character are not representable.
func (d Descriptor) Translate(template string) string {
	var out strings.Builder
	out.Grow(len(template) + 8)

	n := 0 // placeholders seen
	i := 0
	for i < len(template) {
		c := template[i]
		switch {
		case c == '"':
			// Identifier region: swap the delimiters, keep the name.
			end := skipQuoted(template, i)
			name := template[i+1 : end-1]
			if end == len(template) && template[end-1] != '"' {
				// Unterminated: pass through untouched.
				out.WriteString(template[i:end])
			} else {
				out.WriteByte(d.quote)
				out.WriteString(name)
				out.WriteByte(d.quote)
			}
			i = end
		case c == '\'' || c == '`':
			// String literal (or pre-quoted MySQL identifier): verbatim.
			end := skipQuoted(template, i)
			out.WriteString(template[i:end])
			i = end
		case c == '?':
			n++
			if d.Numbered {
				out.WriteByte('$')
				out.WriteString(strconv.Itoa(n))
			} else {
				out.WriteByte('?')
			}
			i++
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// skipQuoted returns the index just past the quoted region starting at i.
// Doubled quote characters inside the region are treated as escapes.
func skipQuoted(s string, i int) int {
	q := s[i]
	j := i + 1
	for j < len(s) {
		if s[j] == q {
			if j+1 < len(s) && s[j+1] == q {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(s) // unterminated: pass the rest through
}
