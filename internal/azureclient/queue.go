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

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"go.opentelemetry.io/otel/codes"
)

type queueClient struct {
	client *azqueue.QueueClient
}

func (m *Manager) queue(queueURL string) (*queueClient, error) {
	m.RLock()
	client, ok := m.queues[queueURL]
	m.RUnlock()
	if ok {
		return client, nil
	}

	m.Lock()
	defer m.Unlock()
	if client, ok = m.queues[queueURL]; ok {
		return client, nil
	}
	qc, err := azqueue.NewQueueClientWithNoCredential(queueURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue client: %w", err)
	}
	client = &queueClient{client: qc}
	m.queues[queueURL] = client
	return client, nil
}

// EnqueueMessage puts message on the SAS-authorized queue.
func (m *Manager) EnqueueMessage(ctx context.Context, queueURL, message string) error {
	ctx, span := m.tracer.Start(ctx, "azureclient.enqueueMessage")
	defer span.End()

	qc, err := m.queue(queueURL)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if _, err := qc.client.EnqueueMessage(ctx, message, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue failed")
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	return nil
}
