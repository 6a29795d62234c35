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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a failure reported by the cluster, either as a non-2xx response
// or as an exception embedded in a result stream.
type Error struct {
	StatusCode int
	Code       string
	Type       string
	Message    string
	Permanent  bool
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("kusto")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " %d", e.StatusCode)
	}
	if e.Code != "" {
		b.WriteString(" " + e.Code)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Type      string `json:"@type"`
		Detail    string `json:"@message"`
		Permanent bool   `json:"@permanent"`
	} `json:"error"`
}

// parseError turns an error response body into an *Error. Bodies that are
// not the service's JSON envelope are kept verbatim as the message.
func parseError(status int, body []byte) *Error {
	e := &Error{StatusCode: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && (eb.Error.Code != "" || eb.Error.Message != "") {
		e.Code = eb.Error.Code
		e.Type = eb.Error.Type
		e.Message = eb.Error.Message
		if eb.Error.Detail != "" {
			e.Message = eb.Error.Detail
		}
		e.Permanent = eb.Error.Permanent
		return e
	}
	e.Message = strings.TrimSpace(string(body))
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// IsEntityNotFound reports whether err says the referenced database or
// table does not exist. A bare 404 only counts when the body carried no
// error code, so a wrong endpoint path is not mistaken for a missing table.
func IsEntityNotFound(err error) bool {
	var ke *Error
	if !errors.As(err, &ke) {
		return false
	}
	if strings.Contains(ke.Code, "EntityNotFound") || strings.Contains(ke.Type, "EntityNotFound") {
		return true
	}
	return ke.StatusCode == http.StatusNotFound && ke.Code == "" && ke.Type == ""
}
