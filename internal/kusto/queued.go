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
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/adxhistorian/internal/idgen"
)

const (
	// DefaultResourceTTL bounds how long ingestion resources and the
	// identity token are reused before being fetched again.
	DefaultResourceTTL = time.Hour

	resourceErrorTTL = 10 * time.Second
	resourcesKey     = "resources"
	dmDatabase       = "NetDefaultDB"

	queueResource     = "SecuredReadyForAggregationQueue"
	containerResource = "TempStorage"
)

// Storage places payloads where the data management service can find them.
// Both URLs carry their own SAS token.
type Storage interface {
	UploadBlob(ctx context.Context, containerURL, name string, data []byte) (blobURL string, err error)
	EnqueueMessage(ctx context.Context, queueURL, message string) error
}

type ingestResources struct {
	queues     []string
	containers []string
	authCtx    string
	err        error
}

// QueuedIngestor submits payloads through the data management endpoint:
// the payload is uploaded to a temp container and a notification is put on
// an aggregation queue. Ingest returns once the message is enqueued; rows
// become visible later.
type QueuedIngestor struct {
	dm      *Client
	storage Storage
	cache   *ttlcache.Cache[string, ingestResources]
	next    atomic.Uint64
}

// NewQueuedIngestor returns an ingestor that discovers resources through
// dm, which must point at the data management endpoint.
func NewQueuedIngestor(dm *Client, storage Storage, ttl time.Duration) *QueuedIngestor {
	if ttl <= 0 {
		ttl = DefaultResourceTTL
	}
	return &QueuedIngestor{
		dm:      dm,
		storage: storage,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, ingestResources](ttl),
			ttlcache.WithDisableTouchOnHit[string, ingestResources](),
		),
	}
}

// ingestionMessage is the notification the data management service reads
// from the aggregation queue.
type ingestionMessage struct {
	ID                   string            `json:"Id"`
	BlobPath             string            `json:"BlobPath"`
	RawDataSize          int               `json:"RawDataSize"`
	DatabaseName         string            `json:"DatabaseName"`
	TableName            string            `json:"TableName"`
	RetainBlobOnSuccess  bool              `json:"RetainBlobOnSuccess"`
	FlushImmediately     bool              `json:"FlushImmediately"`
	ReportLevel          int               `json:"ReportLevel"`
	ReportMethod         int               `json:"ReportMethod"`
	AdditionalProperties map[string]string `json:"AdditionalProperties"`
}

// Ingest uploads p and enqueues its notification.
func (q *QueuedIngestor) Ingest(ctx context.Context, db, table string, p Payload) error {
	ctx, span := q.dm.tracer.Start(ctx, "kusto.queuedIngest",
		trace.WithAttributes(
			attribute.String("db", db),
			attribute.String("table", table),
			attribute.Int("bytes", len(p.Data)),
		),
	)
	defer span.End()

	err := q.ingest(ctx, db, table, p)
	recordIngest(ctx, "queued", len(p.Data), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queued ingest failed")
	}
	return err
}

func (q *QueuedIngestor) ingest(ctx context.Context, db, table string, p Payload) error {
	res, err := q.resources(ctx)
	if err != nil {
		return err
	}
	n := q.next.Add(1)
	container := res.containers[n%uint64(len(res.containers))]
	queue := res.queues[n%uint64(len(res.queues))]

	format := p.Format
	if format == "" {
		format = FormatCSV
	}
	name := idgen.BlobName(db, table, format)
	blobURL, err := q.storage.UploadBlob(ctx, container, name, p.Data)
	if err != nil {
		return fmt.Errorf("kusto: uploading %s: %w", name, err)
	}
	uploadCount.Add(ctx, 1)

	msg, err := json.Marshal(ingestionMessage{
		ID:                  uuid.NewString(),
		BlobPath:            blobURL,
		RawDataSize:         p.RawSize,
		DatabaseName:        db,
		TableName:           table,
		RetainBlobOnSuccess: true,
		AdditionalProperties: map[string]string{
			"authorizationContext": res.authCtx,
			"format":               format,
		},
	})
	if err != nil {
		return fmt.Errorf("kusto: encoding ingestion message: %w", err)
	}
	if err := q.storage.EnqueueMessage(ctx, queue, base64.StdEncoding.EncodeToString(msg)); err != nil {
		return fmt.Errorf("kusto: enqueueing ingestion message: %w", err)
	}
	slog.Debug("Queued ingestion",
		slog.String("db", db),
		slog.String("table", table),
		slog.String("blob", name),
		slog.Int("rawSize", p.RawSize))
	return nil
}

func (q *QueuedIngestor) resources(ctx context.Context) (ingestResources, error) {
	loader := ttlcache.LoaderFunc[string, ingestResources](
		func(cache *ttlcache.Cache[string, ingestResources], key string) *ttlcache.Item[string, ingestResources] {
			res := q.loadResources(ctx)
			ttl := ttlcache.DefaultTTL
			if res.err != nil {
				ttl = resourceErrorTTL
			}
			return cache.Set(key, res, ttl)
		},
	)
	item := q.cache.Get(resourcesKey, ttlcache.WithLoader(loader))
	if item == nil {
		return ingestResources{}, errors.New("kusto: failed to load ingestion resources")
	}
	return item.Value(), item.Value().err
}

func (q *QueuedIngestor) loadResources(ctx context.Context) ingestResources {
	var res ingestResources

	rows, err := q.dm.Mgmt(ctx, dmDatabase, ".get ingestion resources")
	if err != nil {
		res.err = fmt.Errorf("kusto: getting ingestion resources: %w", err)
		return res
	}
	for rows.Next() {
		root := rows.String("StorageRoot")
		switch rows.String("ResourceTypeName") {
		case queueResource:
			res.queues = append(res.queues, root)
		case containerResource:
			res.containers = append(res.containers, root)
		}
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		res.err = fmt.Errorf("kusto: reading ingestion resources: %w", err)
		return res
	}
	if len(res.queues) == 0 || len(res.containers) == 0 {
		res.err = fmt.Errorf("kusto: ingestion resources incomplete: %d queues, %d containers", len(res.queues), len(res.containers))
		return res
	}

	tok, err := q.dm.Mgmt(ctx, dmDatabase, ".get kusto identity token")
	if err != nil {
		res.err = fmt.Errorf("kusto: getting identity token: %w", err)
		return res
	}
	if tok.Next() {
		res.authCtx = tok.String("AuthorizationContext")
	}
	err = tok.Err()
	_ = tok.Close()
	if err != nil {
		res.err = fmt.Errorf("kusto: reading identity token: %w", err)
		return res
	}
	if strings.TrimSpace(res.authCtx) == "" {
		res.err = errors.New("kusto: identity token is empty")
	}
	return res
}
