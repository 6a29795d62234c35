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

package kusto

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	ingestCount     metric.Int64Counter
	ingestBytes     metric.Int64Counter
	uploadCount     metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/adxhistorian/internal/kusto")

	var err error
	requestCount, err = meter.Int64Counter(
		"adxhistorian.kusto.request.count",
		metric.WithDescription("Number of query and control command requests sent to the cluster"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create request.count counter: %w", err))
	}

	requestDuration, err = meter.Float64Histogram(
		"adxhistorian.kusto.request.duration",
		metric.WithDescription("Time until the cluster starts answering a request"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create request.duration histogram: %w", err))
	}

	ingestCount, err = meter.Int64Counter(
		"adxhistorian.kusto.ingest.count",
		metric.WithDescription("Number of ingestion submissions"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create ingest.count counter: %w", err))
	}

	ingestBytes, err = meter.Int64Counter(
		"adxhistorian.kusto.ingest.bytes",
		metric.WithDescription("Compressed bytes submitted for ingestion"),
		metric.WithUnit("By"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create ingest.bytes counter: %w", err))
	}

	uploadCount, err = meter.Int64Counter(
		"adxhistorian.kusto.blob.upload.count",
		metric.WithDescription("Number of blobs uploaded to ingestion temp storage"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create blob.upload.count counter: %w", err))
	}
}
