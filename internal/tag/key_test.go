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

package tag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyCaseInsensitive(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
	}{
		{"identical", NewKey("gw", "default", "Ramp/Ramp1"), NewKey("gw", "default", "Ramp/Ramp1")},
		{"system case", NewKey("GW", "default", "Ramp/Ramp1"), NewKey("gw", "default", "Ramp/Ramp1")},
		{"provider case", NewKey("gw", "Default", "Ramp/Ramp1"), NewKey("gw", "DEFAULT", "Ramp/Ramp1")},
		{"path case", NewKey("gw", "default", "RAMP/ramp1"), NewKey("gw", "default", "ramp/RAMP1")},
		{"all fields", NewKey("Ignition-Gw", "Default", "Line/Motor"), NewKey("ignition-gw", "default", "LINE/MOTOR")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.a.Equal(tt.b))
			assert.True(t, tt.b.Equal(tt.a))
			assert.Equal(t, tt.a.Hash(), tt.b.Hash())
			assert.Equal(t, tt.a.Fold(), tt.b.Fold())
		})
	}
}

func TestKeyDistinct(t *testing.T) {
	a := NewKey("gw", "default", "Ramp/Ramp1")
	assert.False(t, a.Equal(NewKey("gw", "default", "Ramp/Ramp2")))
	assert.False(t, a.Equal(NewKey("gw2", "default", "Ramp/Ramp1")))
	assert.NotEqual(t, a.Hash(), NewKey("gw", "default", "Ramp/Ramp2").Hash())

	// Field boundaries must not collide.
	assert.NotEqual(t, NewKey("ab", "c", "d").Hash(), NewKey("a", "bc", "d").Hash())
}

func TestKeyString(t *testing.T) {
	k := NewKey("gw", "default", "Ramp/Ramp1")
	assert.Equal(t, "[gw;default]Ramp/Ramp1", k.String())
	assert.Equal(t, "gw:default", k.Driver())
}

func TestParseDriver(t *testing.T) {
	sys, prov := ParseDriver("Ignition-Azure-Kusto-Test:default")
	assert.Equal(t, "Ignition-Azure-Kusto-Test", sys)
	assert.Equal(t, "default", prov)

	sys, prov = ParseDriver("lonely")
	assert.Equal(t, "lonely", sys)
	assert.Equal(t, "", prov)
}

func TestKeyBlank(t *testing.T) {
	assert.True(t, NewKey("gw", "default", "").Blank())
	assert.True(t, NewKey("gw", "default", "   ").Blank())
	assert.False(t, NewKey("gw", "default", "a").Blank())
}

func TestQualityString(t *testing.T) {
	assert.Equal(t, "Good", QualityGood.String())
	assert.Equal(t, "Config_Error", QualityConfigError.String())
	assert.Equal(t, "Quality(7)", Quality(7).String())
	assert.True(t, QualityGood.IsGood())
	assert.False(t, QualityUncertain.IsGood())
}

func TestParseKey(t *testing.T) {
	k := NewKey("gw", "default", "Ramp/Ramp1")
	got, err := ParseKey(k.String())
	assert.NoError(t, err)
	assert.Equal(t, k, got)

	got, err = ParseKey("[gw]Ramp")
	assert.NoError(t, err)
	assert.Equal(t, NewKey("gw", "", "Ramp"), got)

	_, err = ParseKey("gw;default]x")
	assert.Error(t, err)
	_, err = ParseKey("[gw;default")
	assert.Error(t, err)
}
