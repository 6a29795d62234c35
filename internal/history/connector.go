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

package history

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/cardinalhq/adxhistorian/internal/kusto"
	"github.com/cardinalhq/adxhistorian/kql"
)

// Querier runs a query and returns its result cursor.
type Querier interface {
	Query(ctx context.Context, db string, q kql.Query) (*kusto.Result, error)
}

// Connector opens a session for one executor or provider. A session that
// also implements io.Closer is closed when released.
type Connector interface {
	Connect(ctx context.Context) (Querier, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Querier, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Querier, error) {
	return f(ctx)
}

// KustoConnector opens a new cluster client per session.
type KustoConnector struct {
	Endpoint   string
	Credential azcore.TokenCredential
	Options    []kusto.Option
}

func (c KustoConnector) Connect(_ context.Context) (Querier, error) {
	client, err := kusto.New(c.Endpoint, c.Credential, c.Options...)
	if err != nil {
		return nil, err
	}
	return client, nil
}
