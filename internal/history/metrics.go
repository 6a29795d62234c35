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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	readCount    metric.Int64Counter
	readDuration metric.Float64Histogram
	rowsBound    metric.Int64Counter
	rowsDropped  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/adxhistorian/internal/history")

	var err error
	readCount, err = meter.Int64Counter(
		"adxhistorian.history.read.count",
		metric.WithDescription("Number of historical reads executed"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create read.count counter: %w", err))
	}

	readDuration, err = meter.Float64Histogram(
		"adxhistorian.history.read.duration",
		metric.WithDescription("Time to execute a historical read and bind its rows"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create read.duration histogram: %w", err))
	}

	rowsBound, err = meter.Int64Counter(
		"adxhistorian.history.rows.bound",
		metric.WithDescription("Rows appended to output columns"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.bound counter: %w", err))
	}

	rowsDropped, err = meter.Int64Counter(
		"adxhistorian.history.rows.dropped",
		metric.WithDescription("Rows that matched no requested column"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.dropped counter: %w", err))
	}
}
