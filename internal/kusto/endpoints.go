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
	"net/url"
	"strings"
)

const (
	clusterSuffix = ".kusto.windows.net"
	ingestPrefix  = "ingest-"
)

// EngineURL returns the query endpoint for a configured cluster. A bare
// cluster name expands to the public cloud host; anything with a scheme is
// used as given.
func EngineURL(cluster string) string {
	cluster = strings.TrimRight(strings.TrimSpace(cluster), "/")
	if cluster == "" {
		return ""
	}
	if !strings.Contains(cluster, "://") {
		return "https://" + cluster + clusterSuffix
	}
	return cluster
}

// IngestURL returns the data management endpoint that accepts queued
// ingestion for a configured cluster.
func IngestURL(cluster string) string {
	engine := EngineURL(cluster)
	if engine == "" {
		return ""
	}
	u, err := url.Parse(engine)
	if err != nil || u.Host == "" {
		scheme, rest, _ := strings.Cut(engine, "://")
		if strings.HasPrefix(rest, ingestPrefix) {
			return engine
		}
		return scheme + "://" + ingestPrefix + rest
	}
	if !strings.HasPrefix(u.Host, ingestPrefix) {
		u.Host = ingestPrefix + u.Host
	}
	return u.String()
}
