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

package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cardinalhq/adxhistorian/internal/aggregate"
	"github.com/cardinalhq/adxhistorian/internal/history"
	"github.com/cardinalhq/adxhistorian/internal/idgen"
	"github.com/cardinalhq/adxhistorian/internal/ingest"
	"github.com/cardinalhq/adxhistorian/internal/tag"
)

type browseRequest struct {
	Path       string `json:"path"`
	NameFilter string `json:"nameFilter"`
	MaxResults int    `json:"maxResults"`
}

type columnRequest struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Aggregate string `json:"aggregate"`
}

type readRequest struct {
	QueryID   string          `json:"queryId"`
	S         string          `json:"s"`
	E         string          `json:"e"`
	BlockSize string          `json:"blockSize"`
	Aggregate string          `json:"aggregate"`
	Columns   []columnRequest `json:"columns"`
}

type columnResponse struct {
	Name     string           `json:"name"`
	DataType history.DataType `json:"dataType"`
	Quality  tag.Quality      `json:"quality"`
	Points   []history.Point  `json:"points"`
}

type readResponse struct {
	QueryID   string           `json:"queryId"`
	Watermark int64            `json:"watermark"`
	Columns   []columnResponse `json:"columns"`
}

type densityRequest struct {
	QueryID string   `json:"queryId"`
	S       string   `json:"s"`
	E       string   `json:"e"`
	Paths   []string `json:"paths"`
}

type storeRequest struct {
	Samples []ingest.Record `json:"samples"`
}

type storeResponse struct {
	Stored int `json:"stored"`
}

type aggregateInfo struct {
	Name     aggregate.Kind `json:"name"`
	Function string         `json:"function"`
}

// decodeBody reads a JSON POST body into v, writing the error response
// itself when it returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, ErrMethodNotAllowed, "only POST method is allowed")
		return false
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		writeAPIError(w, http.StatusUnsupportedMediaType, InvalidJSON, "unsupported content type")
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeAPIError(w, http.StatusBadRequest, InvalidJSON, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", slog.Any("error", err))
	}
}

func (s *Service) handleBrowse(w http.ResponseWriter, r *http.Request) {
	var req browseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	at, err := history.ParsePath(req.Path)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, ValidationFailed, err.Error())
		return
	}
	var filter *history.BrowseFilter
	if req.NameFilter != "" || req.MaxResults > 0 {
		filter = &history.BrowseFilter{NameFilter: req.NameFilter, MaxResults: req.MaxResults}
	}
	writeJSON(w, s.provider.Browse(r.Context(), at, filter))
}

func (s *Service) handleRead(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if !decodeBody(w, r, &req) {
		return
	}
	params, defs, err := s.readParams(req)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, ValidationFailed, err.Error())
		return
	}

	out, err := history.Run(r.Context(), s.provider.CreateQuery(defs, params))
	if err != nil {
		status, code := statusAndCodeForRuntimeError(err)
		slog.Error("History read failed", slog.String("queryId", params.ID), slog.Any("error", err))
		writeAPIError(w, status, code, "read error: "+err.Error())
		return
	}

	resp := readResponse{QueryID: params.ID, Watermark: out.Watermark, Columns: make([]columnResponse, len(out.Columns))}
	for i, c := range out.Columns {
		resp.Columns[i] = columnResponse{Name: c.Name(), DataType: c.DataType(), Quality: c.Quality(), Points: jsonPoints(c.Points())}
	}
	writeJSON(w, resp)
}

func jsonPoints(points []history.Point) []history.Point {
	if points == nil {
		return []history.Point{}
	}
	return points
}

func (s *Service) readParams(req readRequest) (history.QueryParams, []history.ColumnDefinition, error) {
	if len(req.Columns) == 0 {
		return history.QueryParams{}, nil, fmt.Errorf("columns are required")
	}
	start, end, err := history.ParseRange(req.S, req.E)
	if err != nil {
		return history.QueryParams{}, nil, err
	}
	block, err := history.ParseBlockSize(req.BlockSize)
	if err != nil {
		return history.QueryParams{}, nil, err
	}
	params := history.QueryParams{
		BlockSizeMillis: block,
		Start:           start,
		End:             end,
		Aggregate:       s.defaultAggregate,
		ID:              req.QueryID,
	}
	if req.Aggregate != "" {
		params.Aggregate, _ = aggregate.Lookup(req.Aggregate)
	}
	if params.ID == "" {
		params.ID = idgen.NextQueryID()
	}

	defs := make([]history.ColumnDefinition, len(req.Columns))
	for i, c := range req.Columns {
		p, err := history.ParsePath(c.Path)
		if err != nil {
			return history.QueryParams{}, nil, fmt.Errorf("column %d: %w", i, err)
		}
		name := c.Name
		if name == "" {
			name = p.LastPathElement()
		}
		defs[i] = history.ColumnDefinition{Name: name, Path: p}
		if c.Aggregate != "" {
			defs[i].Aggregate, _ = aggregate.Lookup(c.Aggregate)
		}
	}
	return params, defs, nil
}

func (s *Service) handleDensity(w http.ResponseWriter, r *http.Request) {
	var req densityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	start, end, err := history.ParseRange(req.S, req.E)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, ValidationFailed, err.Error())
		return
	}
	paths := make([]history.QualifiedPath, 0, len(req.Paths))
	for _, ps := range req.Paths {
		p, err := history.ParsePath(ps)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, ValidationFailed, err.Error())
			return
		}
		paths = append(paths, p)
	}
	if req.QueryID == "" {
		req.QueryID = idgen.NextQueryID()
	}
	writeJSON(w, s.provider.QueryDensity(r.Context(), paths, start, end, req.QueryID))
}

func (s *Service) handleStore(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	sink := s.provider.Sink()
	if sink == nil || !sink.AcceptsData(ingest.FlavorSQLTag) {
		writeAPIError(w, http.StatusServiceUnavailable, ErrServiceUnavailable, "no sink is accepting tag history")
		return
	}
	set, err := ingest.Records(req.Samples, s.now())
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, ValidationFailed, err.Error())
		return
	}
	if err := sink.StoreData(r.Context(), set); err != nil {
		status, code := statusAndCodeForRuntimeError(err)
		slog.Error("Storing history failed", slog.Int("samples", len(set.Samples)), slog.Any("error", err))
		writeAPIError(w, status, code, "store error: "+err.Error())
		return
	}
	writeJSON(w, storeResponse{Stored: len(set.Samples)})
}

func (s *Service) handleAggregates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, ErrMethodNotAllowed, "only GET method is allowed")
		return
	}
	kinds := s.provider.AvailableAggregates()
	out := make([]aggregateInfo, len(kinds))
	for i, k := range kinds {
		out[i] = aggregateInfo{Name: k, Function: aggregate.Resolve(k)}
	}
	writeJSON(w, map[string]any{"aggregates": out})
}
