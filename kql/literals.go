// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package kql

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the text form the store's datetime literal parser accepts.
const DateLayout = "2006-01-02 15:04:05.0000000"

// DateLiteral renders t as a KQL datetime literal in UTC.
func DateLiteral(t time.Time) string {
	return "datetime(" + t.UTC().Format(DateLayout) + ")"
}

// Timespan renders d as a millisecond timespan literal, e.g. "60000ms".
func Timespan(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}

// QuoteString renders s as a double-quoted KQL string literal.
func QuoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	writeEscaped(&b, s, '"')
	b.WriteByte('"')
	return b.String()
}

// QuoteIdent renders an entity name in bracket form, ['name'], which is
// valid for any table name including ones with spaces or keywords.
func QuoteIdent(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	b.WriteString("['")
	writeEscaped(&b, name, '\'')
	b.WriteString("']")
	return b.String()
}

func writeEscaped(b *strings.Builder, s string, quote byte) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case quote:
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
}
