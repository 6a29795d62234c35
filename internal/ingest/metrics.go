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

package ingest

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	batchCount     metric.Int64Counter
	batchErrors    metric.Int64Counter
	recordCount    metric.Int64Counter
	tableCreations metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/adxhistorian/internal/ingest")

	var err error
	batchCount, err = meter.Int64Counter(
		"adxhistorian.ingest.batches",
		metric.WithDescription("Number of sample batches stored"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create batches counter: %w", err))
	}

	batchErrors, err = meter.Int64Counter(
		"adxhistorian.ingest.errors",
		metric.WithDescription("Number of sample batches that failed to store"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create errors counter: %w", err))
	}

	recordCount, err = meter.Int64Counter(
		"adxhistorian.ingest.records",
		metric.WithDescription("Number of samples stored"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create records counter: %w", err))
	}

	tableCreations, err = meter.Int64Counter(
		"adxhistorian.ingest.table.creations",
		metric.WithDescription("Number of times the events table was created"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create table.creations counter: %w", err))
	}
}
