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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/adxhistorian/kql"
)

const (
	moduleName    = "adxhistorian"
	moduleVersion = "v1"

	queryPath = "/v1/rest/query"
	mgmtPath  = "/v1/rest/mgmt"
)

// Client talks to one cluster endpoint over the v1 REST protocol. It is safe
// for concurrent use.
type Client struct {
	endpoint string
	pipeline runtime.Pipeline
	tracer   trace.Tracer
	appName  string
}

type clientOptions struct {
	transport policy.Transporter
	appName   string
}

// Option configures a Client.
type Option func(*clientOptions)

// WithTransport replaces the HTTP transport, mostly for tests.
func WithTransport(t policy.Transporter) Option {
	return func(o *clientOptions) {
		o.transport = t
	}
}

// WithAppName sets the application name reported to the service.
func WithAppName(name string) Option {
	return func(o *clientOptions) {
		o.appName = name
	}
}

// New returns a client for endpoint. When cred is nil requests are sent
// without authorization, which only a local emulator accepts.
func New(endpoint string, cred azcore.TokenCredential, opts ...Option) (*Client, error) {
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("kusto: endpoint is required")
	}
	o := clientOptions{appName: moduleName}
	for _, opt := range opts {
		opt(&o)
	}

	var perRetry []policy.Policy
	if cred != nil {
		perRetry = append(perRetry, runtime.NewBearerTokenPolicy(cred, []string{endpoint + "/.default"}, nil))
	}
	clientOpts := &policy.ClientOptions{
		// Callers decide what is worth repeating; the pipeline never retries.
		Retry: policy.RetryOptions{MaxRetries: -1},
	}
	if o.transport != nil {
		clientOpts.Transport = o.transport
	}

	return &Client{
		endpoint: endpoint,
		pipeline: runtime.NewPipeline(moduleName, moduleVersion, runtime.PipelineOptions{PerRetry: perRetry}, clientOpts),
		tracer:   otel.Tracer("github.com/cardinalhq/adxhistorian/internal/kusto"),
		appName:  o.appName,
	}, nil
}

// Endpoint returns the base URL the client sends requests to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

type requestBody struct {
	DB         string `json:"db"`
	CSL        string `json:"csl"`
	Properties string `json:"properties,omitempty"`
}

type requestProperties struct {
	Options    map[string]any    `json:"Options"`
	Parameters map[string]string `json:"Parameters,omitempty"`
}

// Query runs q against db and returns a cursor over the primary result.
func (c *Client) Query(ctx context.Context, db string, q kql.Query) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "kusto.query",
		trace.WithAttributes(attribute.String("db", db)),
	)
	defer span.End()

	start := time.Now()
	res, err := c.execute(ctx, queryPath, db, q.Text, q.Params)
	recordRequest(ctx, "query", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}
	return res, nil
}

// Mgmt runs a control command such as ".show table" against db.
func (c *Client) Mgmt(ctx context.Context, db, command string) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "kusto.mgmt",
		trace.WithAttributes(attribute.String("db", db)),
	)
	defer span.End()

	start := time.Now()
	res, err := c.execute(ctx, mgmtPath, db, command, nil)
	recordRequest(ctx, "mgmt", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mgmt failed")
		return nil, err
	}
	return res, nil
}

func (c *Client) execute(ctx context.Context, path, db, csl string, params map[string]string) (*Result, error) {
	props, err := json.Marshal(requestProperties{
		Options:    map[string]any{"servertimeout": "00:04:00"},
		Parameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("kusto: encoding request properties: %w", err)
	}
	body, err := json.Marshal(requestBody{DB: db, CSL: csl, Properties: string(props)})
	if err != nil {
		return nil, fmt.Errorf("kusto: encoding request: %w", err)
	}

	req, err := c.newRequest(ctx, path, "")
	if err != nil {
		return nil, err
	}
	req.Raw().Header.Set("Accept", "application/json")
	if err := req.SetBody(streaming.NopCloser(bytes.NewReader(body)), "application/json; charset=utf-8"); err != nil {
		return nil, fmt.Errorf("kusto: setting request body: %w", err)
	}
	runtime.SkipBodyDownload(req)

	resp, err := c.pipeline.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kusto: sending request: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return NewResult(resp.Body)
}

func (c *Client) newRequest(ctx context.Context, path, query string) (*policy.Request, error) {
	u := c.endpoint + path
	if query != "" {
		u += "?" + query
	}
	req, err := runtime.NewRequest(ctx, http.MethodPost, u)
	if err != nil {
		return nil, fmt.Errorf("kusto: building request: %w", err)
	}
	h := req.Raw().Header
	h.Set("x-ms-client-request-id", c.appName+";"+uuid.NewString())
	h.Set("x-ms-app", c.appName)
	h.Set("x-ms-client-version", moduleName+"."+moduleVersion)
	return req, nil
}

// checkResponse consumes and closes the body of a failed response.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return parseError(resp.StatusCode, body)
}

func recordRequest(ctx context.Context, kind string, start time.Time, err error) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("error", err != nil),
	)
	requestCount.Add(ctx, 1, attrs)
	requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}
