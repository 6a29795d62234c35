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

package azureclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Manager owns the credential used against the cluster and the storage
// clients used for queued ingestion.
type Manager struct {
	cred azcore.TokenCredential

	sync.RWMutex
	containers map[string]*containerClient
	queues     map[string]*queueClient
	tracer     trace.Tracer
}

type managerConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// ManagerOption is a functional option for configuring the Manager.
type ManagerOption func(*managerConfig)

// WithClientSecret authenticates as an application registration. Without
// it the default credential chain (environment, workload identity, managed
// identity, CLI) is used.
func WithClientSecret(tenantID, clientID, secret string) ManagerOption {
	return func(c *managerConfig) {
		c.TenantID = tenantID
		c.ClientID = clientID
		c.ClientSecret = secret
	}
}

// NewManager initializes Azure credential management.
func NewManager(_ context.Context, opts ...ManagerOption) (*Manager, error) {
	mc := managerConfig{}
	for _, opt := range opts {
		opt(&mc)
	}

	var cred azcore.TokenCredential
	var err error
	if mc.ClientID != "" && mc.ClientSecret != "" {
		cred, err = azidentity.NewClientSecretCredential(mc.TenantID, mc.ClientID, mc.ClientSecret, nil)
		if err != nil {
			return nil, fmt.Errorf("creating client secret credential: %w", err)
		}
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("loading Azure credentials: %w", err)
		}
	}

	return &Manager{
		cred:       cred,
		containers: make(map[string]*containerClient),
		queues:     make(map[string]*queueClient),
		tracer:     otel.Tracer("github.com/cardinalhq/adxhistorian/internal/azureclient"),
	}, nil
}

// Credential returns the token credential for the cluster endpoints.
func (m *Manager) Credential() azcore.TokenCredential {
	return m.cred
}
