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
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/adxhistorian/kql"
)

func TestEndpointDerivation(t *testing.T) {
	tests := []struct {
		name    string
		cluster string
		engine  string
		ingest  string
	}{
		{"bare name", "mycluster", "https://mycluster.kusto.windows.net", "https://ingest-mycluster.kusto.windows.net"},
		{"regional name", "mycluster.westus", "https://mycluster.westus.kusto.windows.net", "https://ingest-mycluster.westus.kusto.windows.net"},
		{"full url", "https://mycluster.westus.kusto.windows.net/", "https://mycluster.westus.kusto.windows.net", "https://ingest-mycluster.westus.kusto.windows.net"},
		{"already ingest", "https://ingest-mycluster.kusto.windows.net", "https://ingest-mycluster.kusto.windows.net", "https://ingest-mycluster.kusto.windows.net"},
		{"local emulator", "http://localhost:8080", "http://localhost:8080", "http://ingest-localhost:8080"},
		{"empty", "  ", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.engine, EngineURL(tt.cluster))
			assert.Equal(t, tt.ingest, IngestURL(tt.cluster))
		})
	}
}

func TestParseError(t *testing.T) {
	body := `{"error":{"code":"BadRequest_EntityNotFound","message":"Request is invalid","@type":"Kusto.Data.Exceptions.EntityNotFoundException","@message":"Entity 'Events' of kind 'Table' was not found.","@permanent":true}}`
	e := parseError(http.StatusBadRequest, []byte(body))

	assert.Equal(t, "BadRequest_EntityNotFound", e.Code)
	assert.Equal(t, "Entity 'Events' of kind 'Table' was not found.", e.Message)
	assert.True(t, e.Permanent)
	assert.True(t, IsEntityNotFound(e))
	assert.True(t, IsEntityNotFound(fmt.Errorf("wrapped: %w", e)))

	plain := parseError(http.StatusForbidden, []byte("nope"))
	assert.Equal(t, "nope", plain.Message)
	assert.False(t, IsEntityNotFound(plain))
	assert.False(t, IsEntityNotFound(errors.New("Entity not found")))
	assert.Equal(t, "kusto 403: nope", plain.Error())
}

func TestIsEntityNotFoundStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"code on any status", &Error{StatusCode: http.StatusBadRequest, Code: "BadRequest_EntityNotFound"}, true},
		{"type on any status", &Error{StatusCode: http.StatusBadRequest, Type: "Kusto.Data.Exceptions.EntityNotFoundException"}, true},
		{"bare 404", parseError(http.StatusNotFound, nil), true},
		{"404 with another code", &Error{StatusCode: http.StatusNotFound, Code: "NotFound_Endpoint", Message: "no such route"}, false},
		{"404 with another type", &Error{StatusCode: http.StatusNotFound, Type: "Kusto.Common.Svc.Exceptions.DatabaseNotFound"}, false},
		{"other status", &Error{StatusCode: http.StatusInternalServerError}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEntityNotFound(tt.err))
		})
	}
}

func readResult(t *testing.T, body string) *Result {
	t.Helper()
	r, err := NewResult(io.NopCloser(strings.NewReader(body)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestResultCursor(t *testing.T) {
	body := `{"Tables":[{"TableName":"Table_0","Columns":[
		{"ColumnName":"tagPath","DataType":"String","ColumnType":"string"},
		{"ColumnName":"value","DataType":"Object","ColumnType":"dynamic"},
		{"ColumnName":"value_double","DataType":"Double","ColumnType":"real"},
		{"ColumnName":"value_integer","DataType":"Int32","ColumnType":"int"},
		{"ColumnName":"timestamp","DataType":"DateTime","ColumnType":"datetime"},
		{"ColumnName":"hasChildren","DataType":"Boolean","ColumnType":"bool"}],
		"Rows":[
		["Ramp/Ramp1","{\"a\":1}",1.5,null,"2024-03-01T12:00:00.1234567Z",true],
		["Ramp/Ramp2","\"text\"","NaN",7,"2024-03-01T12:00:01Z",false]
		]},{"TableName":"Table_1","Columns":[],"Rows":[]}]}`
	r := readResult(t, body)

	assert.Equal(t, "Table_0", r.TableName())
	assert.Len(t, r.Columns(), 6)
	assert.True(t, r.Has("TAGPATH"))
	assert.False(t, r.Has("quality"))

	require.True(t, r.Next())
	assert.Equal(t, "Ramp/Ramp1", r.String("tagPath"))
	f, ok := r.Float("value_double")
	assert.True(t, ok)
	assert.Equal(t, 1.5, f)
	_, ok = r.Int("value_integer")
	assert.False(t, ok)
	ts, ok := r.Time("timestamp")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 123456700, time.UTC), ts)
	assert.Equal(t, map[string]any{"a": json.Number("1")}, r.Dynamic("value"))
	b, ok := r.Bool("hasChildren")
	assert.True(t, ok)
	assert.True(t, b)
	assert.Equal(t, "", r.String("missing"))

	require.True(t, r.Next())
	f, ok = r.Float("value_double")
	assert.True(t, ok)
	assert.True(t, math.IsNaN(f))
	i, ok := r.Int("value_integer")
	assert.True(t, ok)
	assert.Equal(t, int64(7), i)
	assert.Equal(t, "text", r.Dynamic("value"))

	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
	assert.Equal(t, 2, r.Rows())
}

func TestResultEmptyAndExceptions(t *testing.T) {
	r := readResult(t, `{"Tables":[]}`)
	assert.False(t, r.Next())
	assert.NoError(t, r.Err())

	r = readResult(t, `{"Tables":[{"TableName":"T","Columns":[{"ColumnName":"x","ColumnType":"long"}],"Rows":[[1],{"Exceptions":["Query execution has exceeded the allowed limits"]}]}]}`)
	require.True(t, r.Next())
	assert.False(t, r.Next())
	var ke *Error
	require.ErrorAs(t, r.Err(), &ke)
	assert.Equal(t, "PartialQueryFailure", ke.Code)
	assert.Contains(t, ke.Message, "exceeded")

	_, err := NewResult(io.NopCloser(strings.NewReader(`{"Other":1}`)))
	assert.Error(t, err)
}

type capturedRequest struct {
	Path    string
	Query   string
	Header  http.Header
	Body    []byte
	Decoded requestBody
}

type fakeCluster struct {
	mu       sync.Mutex
	requests []capturedRequest
	handler  func(w http.ResponseWriter, r capturedRequest)
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c := capturedRequest{Path: r.URL.Path, Query: r.URL.RawQuery, Header: r.Header.Clone(), Body: body}
	_ = json.Unmarshal(body, &c.Decoded)
	f.mu.Lock()
	f.requests = append(f.requests, c)
	f.mu.Unlock()
	f.handler(w, c)
}

func newFakeCluster(t *testing.T, handler func(w http.ResponseWriter, r capturedRequest)) (*fakeCluster, *Client) {
	t.Helper()
	fc := &fakeCluster{handler: handler}
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, nil, WithTransport(srv.Client()))
	require.NoError(t, err)
	return fc, c
}

func TestClientQuerySendsParameters(t *testing.T) {
	fc, c := newFakeCluster(t, func(w http.ResponseWriter, _ capturedRequest) {
		_, _ = io.WriteString(w, `{"Tables":[{"TableName":"Table_0","Columns":[{"ColumnName":"n","ColumnType":"long"}],"Rows":[[42]]}]}`)
	})

	q := kql.Query{Text: "declare query_parameters(p0:string);\nT | where a == p0", Params: map[string]string{"p0": `"x"`}}
	res, err := c.Query(t.Context(), "db1", q)
	require.NoError(t, err)
	defer func() { _ = res.Close() }()

	require.True(t, res.Next())
	n, ok := res.Int("n")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	require.Len(t, fc.requests, 1)
	req := fc.requests[0]
	assert.Equal(t, "/v1/rest/query", req.Path)
	assert.Equal(t, "db1", req.Decoded.DB)
	assert.Equal(t, q.Text, req.Decoded.CSL)
	assert.True(t, strings.HasPrefix(req.Header.Get("x-ms-client-request-id"), "adxhistorian;"))

	var props requestProperties
	require.NoError(t, json.Unmarshal([]byte(req.Decoded.Properties), &props))
	assert.Equal(t, map[string]string{"p0": `"x"`}, props.Parameters)
}

func TestClientMgmtError(t *testing.T) {
	_, c := newFakeCluster(t, func(w http.ResponseWriter, _ capturedRequest) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":"BadRequest_EntityNotFound","message":"Table 'Events' was not found"}}`)
	})

	_, err := c.Mgmt(t.Context(), "db1", ".show table ['Events']")
	require.Error(t, err)
	assert.True(t, IsEntityNotFound(err))
}

func TestStreamingIngest(t *testing.T) {
	fc, c := newFakeCluster(t, func(w http.ResponseWriter, _ capturedRequest) {
		w.WriteHeader(http.StatusOK)
	})

	var buf strings.Builder
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte("a,b,c\n"))
	require.NoError(t, zw.Close())

	err := c.Ingest(t.Context(), "db1", "My Events", Payload{Data: []byte(buf.String()), RawSize: 6, Format: FormatCSV})
	require.NoError(t, err)

	require.Len(t, fc.requests, 1)
	req := fc.requests[0]
	assert.Equal(t, "/v1/rest/ingest/db1/My Events", req.Path)
	assert.Equal(t, "streamFormat=Csv", req.Query)
	assert.Equal(t, "gzip", req.Header.Get("Content-Encoding"))
	assert.Equal(t, buf.String(), string(req.Body))
}

type fakeStorage struct {
	uploads  map[string][]byte
	messages []string
}

func (f *fakeStorage) UploadBlob(_ context.Context, containerURL, name string, data []byte) (string, error) {
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	base, sas, _ := strings.Cut(containerURL, "?")
	u := base + "/" + name + "?" + sas
	f.uploads[u] = data
	return u, nil
}

func (f *fakeStorage) EnqueueMessage(_ context.Context, _ string, message string) error {
	f.messages = append(f.messages, message)
	return nil
}

func dmHandler(w http.ResponseWriter, r capturedRequest) {
	switch r.Decoded.CSL {
	case ".get ingestion resources":
		_, _ = io.WriteString(w, `{"Tables":[{"TableName":"Table_0","Columns":[
			{"ColumnName":"ResourceTypeName","ColumnType":"string"},
			{"ColumnName":"StorageRoot","ColumnType":"string"}],
			"Rows":[
			["SecuredReadyForAggregationQueue","https://acct.queue.core.windows.net/readyforaggregation?sv=1"],
			["TempStorage","https://acct.blob.core.windows.net/temp?sv=2"],
			["FailedIngestionsQueue","https://acct.queue.core.windows.net/failed?sv=3"]]}]}`)
	case ".get kusto identity token":
		_, _ = io.WriteString(w, `{"Tables":[{"TableName":"Table_0","Columns":[{"ColumnName":"AuthorizationContext","ColumnType":"string"}],"Rows":[["token-abc"]]}]}`)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func TestQueuedIngest(t *testing.T) {
	fc, dm := newFakeCluster(t, dmHandler)
	store := &fakeStorage{}
	qi := NewQueuedIngestor(dm, store, time.Minute)

	for range 2 {
		require.NoError(t, qi.Ingest(t.Context(), "db1", "Events", Payload{Data: []byte("gz"), RawSize: 100, Format: FormatCSV}))
	}

	// resources are fetched once and then served from the cache
	assert.Len(t, fc.requests, 2)
	require.Len(t, store.messages, 2)
	require.Len(t, store.uploads, 2)

	raw, err := base64.StdEncoding.DecodeString(store.messages[0])
	require.NoError(t, err)
	var msg ingestionMessage
	require.NoError(t, json.Unmarshal(raw, &msg))

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "db1", msg.DatabaseName)
	assert.Equal(t, "Events", msg.TableName)
	assert.Equal(t, 100, msg.RawDataSize)
	assert.True(t, strings.HasPrefix(msg.BlobPath, "https://acct.blob.core.windows.net/temp/db1__Events__"), msg.BlobPath)
	assert.True(t, strings.HasSuffix(msg.BlobPath, ".csv.gz?sv=2"), msg.BlobPath)
	assert.Equal(t, "token-abc", msg.AdditionalProperties["authorizationContext"])
	assert.Equal(t, "csv", msg.AdditionalProperties["format"])
	assert.Equal(t, []byte("gz"), store.uploads[msg.BlobPath])
}

func TestQueuedIngestResourceFailure(t *testing.T) {
	_, dm := newFakeCluster(t, func(w http.ResponseWriter, _ capturedRequest) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	store := &fakeStorage{}
	qi := NewQueuedIngestor(dm, store, time.Minute)

	err := qi.Ingest(t.Context(), "db1", "Events", Payload{Data: []byte("gz")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingestion resources")
	assert.Empty(t, store.messages)
}
