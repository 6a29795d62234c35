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

package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/adxhistorian/internal/aggregate"
	"github.com/cardinalhq/adxhistorian/internal/tag"
)

func TestDecodeRecordsYAML(t *testing.T) {
	doc := `
samples:
  - system: gw
    provider: default
    path: Ramp/Ramp1
    value: 42
    timestamp: 2024-03-01T12:00:00Z
  - system: gw
    provider: default
    path: Ramp/Ramp2
    value: {state: on, speed: 1.5}
    quality: 24
`
	records, err := decodeRecords([]byte(doc))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 42, records[0].Value)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), records[0].Timestamp.UTC())
	assert.Nil(t, records[0].Quality)

	require.NotNil(t, records[1].Quality)
	assert.Equal(t, tag.QualityCommFailure, *records[1].Quality)
	assert.Equal(t, map[string]any{"state": "on", "speed": 1.5}, records[1].Value)
}

func TestDecodeRecordsJSONList(t *testing.T) {
	records, err := decodeRecords([]byte(`[{"system":"gw","provider":"default","path":"a","value":true}]`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, true, records[0].Value)
}

func TestDecodeRecordsRejectsEmpty(t *testing.T) {
	for _, doc := range []string{"", "samples: []", "[]", "just a string"} {
		_, err := decodeRecords([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func TestColumnDefs(t *testing.T) {
	defs, err := columnDefs("ADX", []string{
		"[gw;default]Ramp/Ramp1@maximum",
		"histprov:ADX:/drv:gw:default:/tag:Sine/Sine0",
		"[gw;default]odd@name",
	})
	require.NoError(t, err)
	require.Len(t, defs, 3)

	assert.Equal(t, "Ramp1", defs[0].Name)
	assert.Equal(t, aggregate.Maximum, defs[0].Aggregate)
	assert.Equal(t, "histprov:ADX:/drv:gw:default:/tag:Ramp/Ramp1", defs[0].Path.String())

	assert.Equal(t, "Sine0", defs[1].Name)
	assert.Empty(t, defs[1].Aggregate)

	k, ok := defs[2].Path.Key()
	require.True(t, ok)
	assert.Equal(t, "odd@name", k.Path)

	_, err = columnDefs("ADX", []string{"[broken"})
	assert.Error(t, err)
}

func TestReadFlagsParams(t *testing.T) {
	p, err := readFlags{
		start:     "2024-03-01T12:00:00Z",
		end:       "2024-03-01T13:00:00Z",
		blockSize: "5m",
		aggregate: "total",
	}.params()
	require.NoError(t, err)
	assert.Equal(t, int64(300_000), p.BlockSizeMillis)
	assert.Equal(t, aggregate.Total, p.Aggregate)
	assert.NotEmpty(t, p.ID)

	_, err = readFlags{start: "2024-03-01T12:00:00Z", end: "2024-03-01T13:00:00Z", blockSize: "often"}.params()
	assert.Error(t, err)
}
