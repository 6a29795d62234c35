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

package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusStarting, "starting"},
		{StatusHealthy, "healthy"},
		{StatusUnhealthy, "unhealthy"},
		{Status(999), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestNewServerDefaultsPort(t *testing.T) {
	assert.Equal(t, DefaultPort, NewServer(0).port)
	assert.Equal(t, 9090, NewServer(9090).port)
}

func get(t *testing.T, h http.Handler, path string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestProbesFollowStatus(t *testing.T) {
	s := NewServer(0)
	h := s.Handler()

	code, resp := get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "starting", resp.Status)

	code, _ = get(t, h, "/livez")
	assert.Equal(t, http.StatusOK, code)

	s.SetStatus(StatusHealthy)
	code, resp = get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Healthy)

	s.SetStatus(StatusUnhealthy)
	code, _ = get(t, h, "/livez")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyzRunsProbes(t *testing.T) {
	s := NewServer(0)
	s.SetStatus(StatusHealthy)
	s.AddReadinessProbe("provider", func(context.Context) error { return nil })

	code, resp := get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"provider": "ok"}, resp.Checks)

	s.AddReadinessProbe("sink", func(context.Context) error { return errors.New("not accepting") })
	code, resp = get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, resp.Healthy)
	assert.Equal(t, "not accepting", resp.Checks["sink"])
	assert.Equal(t, "ok", resp.Checks["provider"])
}

func TestReadyzNeedsHealthyStatus(t *testing.T) {
	s := NewServer(0)
	s.AddReadinessProbe("provider", func(context.Context) error { return nil })

	ready, _ := s.Ready(context.Background())
	assert.False(t, ready)
}

func TestStopWithoutStart(t *testing.T) {
	assert.NoError(t, NewServer(0).Stop())
}
