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
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/cardinalhq/adxhistorian/internal/history"
	"github.com/cardinalhq/adxhistorian/internal/ingest"
	"github.com/cardinalhq/adxhistorian/internal/kusto"
)

type APIErrorCode string

const (
	InvalidJSON           APIErrorCode = "INVALID_JSON"
	ValidationFailed      APIErrorCode = "VALIDATION_FAILED"
	ErrMethodNotAllowed   APIErrorCode = "METHOD_NOT_ALLOWED"
	ErrInternalError      APIErrorCode = "INTERNAL_ERROR"
	ErrClientClosed       APIErrorCode = "CLIENT_CLOSED"
	ErrDeadlineExceeded   APIErrorCode = "DEADLINE_EXCEEDED"
	ErrServiceUnavailable APIErrorCode = "SERVICE_UNAVAILABLE"
	ErrForbidden          APIErrorCode = "FORBIDDEN"
	ErrUnauthorized       APIErrorCode = "UNAUTHORIZED"
	ErrNotFound           APIErrorCode = "NOT_FOUND"
	ErrRateLimited        APIErrorCode = "RATE_LIMITED"
	ErrStoreFailed        APIErrorCode = "STORE_FAILED"
)

type APIError struct {
	Status  int          `json:"status"`
	Code    APIErrorCode `json:"code"`
	Message string       `json:"message"`
}

func writeAPIError(w http.ResponseWriter, status int, code APIErrorCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIError{
		Status:  status,
		Code:    code,
		Message: msg,
	})
}

// Non-standard but used by many proxies for client disconnects.
const statusClientClosedRequest = 499

func statusAndCodeForRuntimeError(err error) (int, APIErrorCode) {
	if err == nil {
		return http.StatusOK, ""
	}
	if errors.Is(err, context.Canceled) {
		return statusClientClosedRequest, ErrClientClosed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, ErrDeadlineExceeded
	}
	if errors.Is(err, ingest.ErrNotAccepting) {
		return http.StatusServiceUnavailable, ErrServiceUnavailable
	}
	if errors.Is(err, ingest.ErrTableCreate) {
		return http.StatusBadGateway, ErrStoreFailed
	}
	if errors.Is(err, history.ErrInvalidState) {
		return http.StatusInternalServerError, ErrInternalError
	}

	var ke *kusto.Error
	if errors.As(err, &ke) {
		switch ke.StatusCode {
		case http.StatusUnauthorized:
			return http.StatusUnauthorized, ErrUnauthorized
		case http.StatusForbidden:
			return http.StatusForbidden, ErrForbidden
		case http.StatusNotFound:
			return http.StatusNotFound, ErrNotFound
		case http.StatusTooManyRequests:
			return http.StatusTooManyRequests, ErrRateLimited
		case http.StatusServiceUnavailable:
			return http.StatusServiceUnavailable, ErrServiceUnavailable
		}
		return http.StatusBadGateway, ErrInternalError
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return http.StatusGatewayTimeout, ErrDeadlineExceeded
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "too many requests") || strings.Contains(msg, "throttl"):
		return http.StatusTooManyRequests, ErrRateLimited
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "unauthenticated"):
		return http.StatusUnauthorized, ErrUnauthorized
	}
	return http.StatusInternalServerError, ErrInternalError
}
