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

package kql

import (
	"strconv"
	"strings"
)

// Query is KQL text together with the values of the parameters it declares.
// Params is keyed by parameter name; values are KQL literals and travel in
// the request properties, never inside Text.
type Query struct {
	Text   string
	Params map[string]string
}

// paramSet hands out parameter names in first-use order so that identical
// inputs always produce identical text. Equal values share one parameter.
type paramSet struct {
	names  []string
	byVal  map[string]string
	values map[string]string
}

func newParamSet() *paramSet {
	return &paramSet{
		byVal:  map[string]string{},
		values: map[string]string{},
	}
}

// str binds a string value and returns the parameter name to reference.
func (p *paramSet) str(v string) string {
	if name, ok := p.byVal[v]; ok {
		return name
	}
	name := "p" + strconv.Itoa(len(p.names))
	p.names = append(p.names, name)
	p.byVal[v] = name
	p.values[name] = QuoteString(v)
	return name
}

// header returns the declare statement, or "" when nothing was bound.
func (p *paramSet) header() string {
	if len(p.names) == 0 {
		return ""
	}
	decls := make([]string, len(p.names))
	for i, n := range p.names {
		decls[i] = n + ":string"
	}
	return "declare query_parameters(" + strings.Join(decls, ", ") + ");\n"
}

func (p *paramSet) query(body []string) Query {
	params := make(map[string]string, len(p.values))
	for k, v := range p.values {
		params[k] = v
	}
	return Query{
		Text:   p.header() + strings.Join(body, "\n"),
		Params: params,
	}
}
