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
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// FormatCSV is the only data format this package submits.
const FormatCSV = "csv"

// Payload is one gzip-compressed batch ready for submission.
type Payload struct {
	Data    []byte
	RawSize int
	Format  string
}

// Ingestor submits payloads to a table.
type Ingestor interface {
	Ingest(ctx context.Context, db, table string, p Payload) error
}

var (
	_ Ingestor = (*Client)(nil)
	_ Ingestor = (*QueuedIngestor)(nil)
)

// Ingest sends p to the engine's streaming ingestion endpoint. The call
// returns once the rows are committed, so a missing table surfaces here as
// an entity-not-found error.
func (c *Client) Ingest(ctx context.Context, db, table string, p Payload) error {
	ctx, span := c.tracer.Start(ctx, "kusto.streamingIngest",
		trace.WithAttributes(
			attribute.String("db", db),
			attribute.String("table", table),
			attribute.Int("bytes", len(p.Data)),
		),
	)
	defer span.End()

	format := p.Format
	if format == "" {
		format = FormatCSV
	}
	path := "/v1/rest/ingest/" + url.PathEscape(db) + "/" + url.PathEscape(table)
	req, err := c.newRequest(ctx, path, "streamFormat="+url.QueryEscape(streamFormat(format)))
	if err != nil {
		return err
	}
	req.Raw().Header.Set("Content-Encoding", "gzip")
	if err := req.SetBody(streaming.NopCloser(bytes.NewReader(p.Data)), "application/octet-stream"); err != nil {
		return fmt.Errorf("kusto: setting ingest body: %w", err)
	}

	start := time.Now()
	resp, err := c.pipeline.Do(req)
	if err == nil {
		err = checkResponse(resp)
		if err == nil {
			_ = resp.Body.Close()
		}
	} else {
		err = fmt.Errorf("kusto: sending ingest request: %w", err)
	}
	recordRequest(ctx, "streaming_ingest", start, err)
	recordIngest(ctx, "streaming", len(p.Data), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "streaming ingest failed")
		return err
	}
	return nil
}

// streamFormat maps a format name to the spelling the streaming endpoint
// expects.
func streamFormat(format string) string {
	switch format {
	case FormatCSV:
		return "Csv"
	case "json":
		return "Json"
	case "multijson":
		return "MultiJson"
	default:
		return format
	}
}

func recordIngest(ctx context.Context, mode string, size int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("error", err != nil),
	)
	ingestCount.Add(ctx, 1, attrs)
	if err == nil {
		ingestBytes.Add(ctx, int64(size), attrs)
	}
}
