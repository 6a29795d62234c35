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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/adxhistorian/internal/kusto"
	"github.com/cardinalhq/adxhistorian/internal/tag"
	"github.com/cardinalhq/adxhistorian/kql"
)

// ErrTableCreate is returned when a batch was rejected because the events
// table was missing and creating it, or the single retry afterwards, failed.
var ErrTableCreate = errors.New("ingest: events table unavailable after create")

// Commander runs control commands.
type Commander interface {
	Mgmt(ctx context.Context, db, command string) (*kusto.Result, error)
}

// Batcher turns sample batches into single ingestion submissions.
type Batcher struct {
	db       string
	table    string
	ingestor kusto.Ingestor
	mgmt     Commander
}

// NewBatcher returns a batcher writing to db.table.
func NewBatcher(db, table string, ingestor kusto.Ingestor, mgmt Commander) *Batcher {
	return &Batcher{
		db:       db,
		table:    table,
		ingestor: ingestor,
		mgmt:     mgmt,
	}
}

// Table returns the destination table name.
func (b *Batcher) Table() string {
	return b.table
}

// Store submits all samples as one gzip-compressed CSV payload. An empty
// batch is not submitted. When the table is reported missing it is created
// and the submission is retried exactly once.
func (b *Batcher) Store(ctx context.Context, samples []tag.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	payload, err := Encode(samples)
	if err != nil {
		return fmt.Errorf("ingest: encoding batch: %w", err)
	}

	err = b.ingestor.Ingest(ctx, b.db, b.table, payload)
	if err != nil && kusto.IsEntityNotFound(err) {
		slog.Warn("Events table missing, creating it",
			slog.String("db", b.db),
			slog.String("table", b.table))
		if cerr := b.createTable(ctx); cerr != nil {
			err = fmt.Errorf("%w: %w", ErrTableCreate, cerr)
		} else if rerr := b.ingestor.Ingest(ctx, b.db, b.table, payload); rerr != nil {
			err = fmt.Errorf("%w: %w", ErrTableCreate, rerr)
		} else {
			err = nil
		}
	}

	attrs := metric.WithAttributes(attribute.String("table", b.table))
	if err != nil {
		batchErrors.Add(ctx, 1, attrs)
		return fmt.Errorf("ingest: submitting %d samples: %w", len(samples), err)
	}
	batchCount.Add(ctx, 1, attrs)
	recordCount.Add(ctx, int64(len(samples)), attrs)
	slog.Debug("Stored batch",
		slog.String("table", b.table),
		slog.Int("samples", len(samples)),
		slog.Int("bytes", len(payload.Data)))
	return nil
}

// EnsureTable creates the events table when it does not exist yet.
func (b *Batcher) EnsureTable(ctx context.Context) error {
	res, err := b.mgmt.Mgmt(ctx, b.db, ".show table "+kql.QuoteIdent(b.table))
	if err == nil {
		return res.Close()
	}
	if !kusto.IsEntityNotFound(err) {
		return fmt.Errorf("ingest: checking table %s: %w", b.table, err)
	}
	return b.createTable(ctx)
}

func (b *Batcher) createTable(ctx context.Context) error {
	res, err := b.mgmt.Mgmt(ctx, b.db, ".create table "+kql.QuoteIdent(b.table)+" ("+TableSchema+")")
	if err != nil {
		return fmt.Errorf("creating table %s: %w", b.table, err)
	}
	tableCreations.Add(ctx, 1)
	slog.Info("Created events table", slog.String("db", b.db), slog.String("table", b.table))
	return res.Close()
}
