/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package dlog

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// nameParams carries the substitution values for expandNamePattern: a
// caller-assigned id, a rotation counter, and the time for {now}; {pid}
// is taken from the running process (spec §6's {id}, {ctr}, {now:...},
// {pid} placeholders).
type nameParams struct {
	ID  string
	Ctr uint64
	Now time.Time
}

// expandNamePattern resolves {id}, {ctr}, {now:<layout>}, and {pid} inside
// pattern. {now:...} takes a strftime-like subset of directives (the exact
// accepted set beyond %F/%T/%Y/%m/%d/%H/%M/%S is an open question per
// spec §9, so only the common date/time fields are supported); an
// unrecognized directive is copied through literally rather than erroring,
// matching the spec's "tolerate what's unclear" posture for this corner.
func expandNamePattern(pattern string, p nameParams) string {
	var b strings.Builder
	i := 0
	for i < len(pattern) {
		if pattern[i] != '{' {
			b.WriteByte(pattern[i])
			i++
			continue
		}
		end := strings.IndexByte(pattern[i:], '}')
		if end < 0 {
			b.WriteString(pattern[i:])
			break
		}
		token := pattern[i+1 : i+end]
		i += end + 1
		switch {
		case token == "id":
			b.WriteString(p.ID)
		case token == "ctr":
			b.WriteString(strconv.FormatUint(p.Ctr, 10))
		case token == "pid":
			b.WriteString(strconv.Itoa(os.Getpid()))
		case strings.HasPrefix(token, "now:"):
			b.WriteString(strftimeSubset(p.Now, token[len("now:"):]))
		case token == "now":
			b.WriteString(strftimeSubset(p.Now, "%F_%T"))
		default:
			b.WriteByte('{')
			b.WriteString(token)
			b.WriteByte('}')
		}
	}
	return b.String()
}

// strftimeSubset implements the handful of strftime directives the
// catalog's formatter is known to rely on (%F, %T, %Y, %m, %d, %H, %M,
// %S); unknown directives pass through verbatim.
func strftimeSubset(t time.Time, layout string) string {
	var b strings.Builder
	for i := 0; i < len(layout); i++ {
		if layout[i] != '%' || i+1 >= len(layout) {
			b.WriteByte(layout[i])
			continue
		}
		i++
		switch layout[i] {
		case 'F':
			b.WriteString(t.Format("2006-01-02"))
		case 'T':
			b.WriteString(t.Format("15:04:05"))
		case 'Y':
			b.WriteString(t.Format("2006"))
		case 'm':
			b.WriteString(t.Format("01"))
		case 'd':
			b.WriteString(t.Format("02"))
		case 'H':
			b.WriteString(t.Format("15"))
		case 'M':
			b.WriteString(t.Format("04"))
		case 'S':
			b.WriteString(t.Format("05"))
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(layout[i])
		}
	}
	return b.String()
}
