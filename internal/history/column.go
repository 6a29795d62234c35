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

package history

import (
	"encoding/json"
	"math"
	"time"

	"github.com/cardinalhq/adxhistorian/internal/aggregate"
	"github.com/cardinalhq/adxhistorian/internal/tag"
)

// DataType is the value type a column reports to the host.
type DataType string

const (
	DataTypeFloat   DataType = "Float"
	DataTypeInteger DataType = "Integer"
	DataTypeBoolean DataType = "Boolean"
	DataTypeString  DataType = "String"
	DataTypeObject  DataType = "Object"
)

// Point is one value appended to a column.
type Point struct {
	Value     any         `json:"value"`
	Quality   tag.Quality `json:"quality"`
	Timestamp time.Time   `json:"timestamp"`
}

// MarshalJSON writes non-finite floats as the strings the store uses for
// them, since JSON numbers cannot carry them.
func (p Point) MarshalJSON() ([]byte, error) {
	type plain Point
	out := plain(p)
	if f, ok := p.Value.(float64); ok {
		switch {
		case math.IsNaN(f):
			out.Value = "NaN"
		case math.IsInf(f, 1):
			out.Value = "Infinity"
		case math.IsInf(f, -1):
			out.Value = "-Infinity"
		}
	}
	return json.Marshal(out)
}

// ColumnDefinition is one requested output series.
type ColumnDefinition struct {
	Name      string
	Path      QualifiedPath
	Aggregate aggregate.Kind
}

// Column is an output series handed back to the host.
type Column interface {
	Name() string
	DataType() DataType
	Quality() tag.Quality
	Points() []Point
}

// ProcessedColumn collects the points read for one valid definition.
type ProcessedColumn struct {
	name     string
	key      tag.Key
	raw      bool
	fn       string
	dataType DataType
	typed    bool
	points   []Point
}

var (
	_ Column = (*ProcessedColumn)(nil)
	_ Column = (*ErrorColumn)(nil)
)

func newProcessedColumn(name string, key tag.Key, raw bool, fn string) *ProcessedColumn {
	return &ProcessedColumn{
		name:     name,
		key:      key,
		raw:      raw,
		fn:       fn,
		dataType: DataTypeFloat,
	}
}

func (c *ProcessedColumn) Name() string {
	return c.name
}

// Key returns the tag the column reads.
func (c *ProcessedColumn) Key() tag.Key {
	return c.key
}

// Raw reports whether the column holds unaggregated samples.
func (c *ProcessedColumn) Raw() bool {
	return c.raw
}

// Function returns the store aggregate function used for blocked reads.
func (c *ProcessedColumn) Function() string {
	return c.fn
}

func (c *ProcessedColumn) DataType() DataType {
	return c.dataType
}

// Quality is GOOD for a processed column; per-point quality lives on the
// points.
func (c *ProcessedColumn) Quality() tag.Quality {
	return tag.QualityGood
}

func (c *ProcessedColumn) Points() []Point {
	return c.points
}

// Append adds p after the existing points. The first non-nil value fixes
// the data type reported for raw columns.
func (c *ProcessedColumn) Append(p Point) {
	if c.raw && !c.typed && p.Value != nil {
		c.dataType = dataTypeOf(p.Value)
		c.typed = true
	}
	c.points = append(c.points, p)
}

func dataTypeOf(v any) DataType {
	switch v.(type) {
	case float32, float64:
		return DataTypeFloat
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return DataTypeInteger
	case bool:
		return DataTypeBoolean
	case string:
		return DataTypeString
	default:
		return DataTypeObject
	}
}

// ErrorColumn stands in for a definition that cannot be queried. It never
// holds points.
type ErrorColumn struct {
	name    string
	quality tag.Quality
}

func newErrorColumn(name string, q tag.Quality) *ErrorColumn {
	return &ErrorColumn{name: name, quality: q}
}

func (c *ErrorColumn) Name() string { return c.name }

// DataType is Integer so that charts accept the empty series.
func (c *ErrorColumn) DataType() DataType { return DataTypeInteger }

func (c *ErrorColumn) Quality() tag.Quality { return c.quality }

func (c *ErrorColumn) Points() []Point { return nil }
