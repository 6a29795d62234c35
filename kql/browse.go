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
	"strings"
	"time"
)

// PathDelimiter separates tag path segments.
const PathDelimiter = "/"

// BrowseLevel identifies which of the three listing shapes a browse uses.
type BrowseLevel int

const (
	// BrowseRoot lists (system, provider) pairs.
	BrowseRoot BrowseLevel = iota
	// BrowseProvider lists first path segments under one provider.
	BrowseProvider
	// BrowsePath lists the segments directly below a path prefix.
	BrowsePath
)

func (l BrowseLevel) String() string {
	switch l {
	case BrowseRoot:
		return "root"
	case BrowseProvider:
		return "provider"
	case BrowsePath:
		return "path"
	default:
		return "unknown"
	}
}

// BrowseRequest is a position in the tag tree. Empty fields are unset.
type BrowseRequest struct {
	System   string
	Provider string
	Prefix   string
}

// Level derives the listing shape from the fields that are set.
func (r BrowseRequest) Level() BrowseLevel {
	switch {
	case r.System == "":
		return BrowseRoot
	case strings.Trim(r.Prefix, PathDelimiter) == "":
		return BrowseProvider
	default:
		return BrowsePath
	}
}

// Builder renders queries against one events table.
type Builder struct {
	table    string
	lookback time.Duration
}

// NewBuilder returns a builder for table. Browse queries only consider rows
// newer than lookback; zero disables that bound.
func NewBuilder(table string, lookback time.Duration) *Builder {
	return &Builder{table: table, lookback: lookback}
}

// Table returns the events table the builder targets.
func (b *Builder) Table() string {
	return b.table
}

// Browse renders the listing query for one level of the tag tree. Rows carry
// systemName, tagProvider, tagPath, hasChildren and countSubNodes, sorted
// ascending.
func (b *Builder) Browse(req BrowseRequest) Query {
	p := newParamSet()
	body := []string{QuoteIdent(b.table)}
	if b.lookback > 0 {
		body = append(body, "| where timestamp > ago("+Timespan(b.lookback)+")")
	}

	switch req.Level() {
	case BrowseRoot:
		body = append(body,
			"| summarize countSubNodes = dcount(tagPath) by systemName, tagProvider",
			`| extend tagPath = ""`,
		)
	case BrowseProvider:
		body = append(body,
			"| where systemName =~ "+p.str(req.System)+" and tagProvider =~ "+p.str(req.Provider),
			`| extend segments = split(tagPath, "/")`,
			"| extend current = tostring(segments[0]), child = tostring(segments[1])",
			"| where isnotempty(current)",
			"| summarize countSubNodes = dcountif(child, isnotempty(child)) by systemName, tagProvider, tagPath = current",
		)
	case BrowsePath:
		driver := "| where systemName =~ " + p.str(req.System) + " and tagProvider =~ " + p.str(req.Provider)
		prefix := p.str(normalizePrefix(req.Prefix))
		body = append(body,
			driver,
			"| where tagPath startswith "+prefix,
			"| extend residue = substring(tagPath, strlen("+prefix+"))",
			`| extend segments = split(residue, "/")`,
			"| extend current = tostring(segments[0]), child = tostring(segments[1])",
			"| where isnotempty(current)",
			"| extend node = substring(tagPath, 0, strlen("+prefix+") + strlen(current))",
			"| summarize countSubNodes = dcountif(child, isnotempty(child)) by systemName, tagProvider, tagPath = node",
		)
	}

	body = append(body,
		"| extend hasChildren = countSubNodes > 0",
		"| sort by systemName asc, tagProvider asc, tagPath asc",
		"| project systemName, tagProvider, tagPath, hasChildren, countSubNodes",
	)
	return p.query(body)
}

// normalizePrefix guarantees exactly one trailing delimiter so that a
// partial final segment ("Ramp" vs "Ramp2") never matches.
func normalizePrefix(prefix string) string {
	return strings.TrimRight(prefix, PathDelimiter) + PathDelimiter
}
