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

package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveNeverEmpty(t *testing.T) {
	for _, k := range Kinds() {
		t.Run(string(k), func(t *testing.T) {
			fn := Resolve(k)
			assert.NotEmpty(t, fn)
			if !Mapped(k) {
				assert.Equal(t, DefaultFunction, fn)
			}
		})
	}
}

func TestResolveMapped(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{SimpleAverage, "avg"},
		{Total, "sum"},
		{Count, "count"},
		{StdDev, "stdev"},
		{Minimum, "min"},
		{Maximum, "max"},
		{Variance, "variance"},
		{DCount, "dcount"},
		{LastValue, "take_any"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Resolve(tt.kind), tt.kind)
	}
}

func TestResolveUnmappedFallsBack(t *testing.T) {
	assert.Equal(t, "avg", Resolve(Range))
	assert.Equal(t, "avg", Resolve(PctBad))
	assert.Equal(t, "avg", Resolve(Kind("NotARealAggregate")))
	assert.Equal(t, "avg", Resolve(Kind("")))
}

func TestKindsIsACopy(t *testing.T) {
	a := Kinds()
	a[0] = "mutated"
	assert.Equal(t, MinMax, Kinds()[0])
	assert.Len(t, Kinds(), 18)
}

func TestLookup(t *testing.T) {
	k, ok := Lookup("stddev")
	assert.True(t, ok)
	assert.Equal(t, StdDev, k)

	k, ok = Lookup("Median")
	assert.False(t, ok)
	assert.Equal(t, Kind("Median"), k)
	assert.Equal(t, DefaultFunction, Resolve(k))
}
