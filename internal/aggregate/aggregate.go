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

// Package aggregate maps the host platform's aggregation modes onto
// KQL aggregation functions.
//
//	MinMax        - two entries per window, the min and the max
//	Average       - time-weighted average of the window
//	LastValue     - most recent value at the end of the window
//	SimpleAverage - (V1+V2+...+Vn)/n
//	Maximum       - maximum value of the window
//	Minimum       - minimum value of the window
//	DurationOn    - seconds the value has been boolean true
//	DurationOff   - seconds the value has been boolean false
//	CountOn       - transitions to boolean true
//	CountOff      - transitions to boolean false
//	Count         - number of good, non-interpolated values
//	Range         - max minus min
//	Variance      - variance of good values, not time weighted
//	StdDev        - standard deviation of good values, not time weighted
//	PctGood       - percentage of time the value was good
//	PctBad        - percentage of time the value was bad
package aggregate

import "strings"

// Kind names one aggregation mode offered by the host.
type Kind string

const (
	MinMax        Kind = "MinMax"
	LastValue     Kind = "LastValue"
	Total         Kind = "Total"
	DCount        Kind = "DCount"
	SimpleAverage Kind = "SimpleAverage"
	Average       Kind = "Average"
	Count         Kind = "Count"
	StdDev        Kind = "StdDev"
	Minimum       Kind = "Minimum"
	Maximum       Kind = "Maximum"
	Variance      Kind = "Variance"
	CountOn       Kind = "CountOn"
	CountOff      Kind = "CountOff"
	DurationOn    Kind = "DurationOn"
	DurationOff   Kind = "DurationOff"
	Range         Kind = "Range"
	PctGood       Kind = "PctGood"
	PctBad        Kind = "PctBad"
)

// DefaultFunction is used for any kind without a row in the table.
const DefaultFunction = "avg"

// kinds is the catalog exposed to the host, in menu order.
var kinds = []Kind{
	MinMax, LastValue, Total, DCount, SimpleAverage, Average, Count, StdDev,
	Minimum, Maximum, Variance, CountOn, CountOff, DurationOn, DurationOff,
	Range, PctGood, PctBad,
}

// functions maps a kind to its KQL aggregation function. Kinds missing here
// resolve to DefaultFunction.
var functions = map[Kind]string{
	MinMax:        "min",
	LastValue:     "take_any",
	Total:         "sum",
	DCount:        "dcount",
	SimpleAverage: "avg",
	Average:       "avg",
	Count:         "count",
	StdDev:        "stdev",
	Minimum:       "min",
	Maximum:       "max",
	Variance:      "variance",
	// TODO: CountOn/CountOff/DurationOn/DurationOff need state-transition
	// functions (row_window_session or scan) rather than a single aggregate.
}

// Resolve returns the KQL aggregation function for k.
func Resolve(k Kind) string {
	if fn, ok := functions[k]; ok {
		return fn
	}
	return DefaultFunction
}

// Mapped reports whether k has an explicit table row.
func Mapped(k Kind) bool {
	_, ok := functions[k]
	return ok
}

// Kinds returns every aggregation mode the provider advertises.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Lookup finds a kind by name, ignoring case. The boolean is false for names
// outside the catalog; such names still resolve to DefaultFunction.
func Lookup(name string) (Kind, bool) {
	for _, k := range kinds {
		if strings.EqualFold(string(k), name) {
			return k, true
		}
	}
	return Kind(name), false
}
