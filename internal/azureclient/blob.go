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

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type containerClient struct {
	client *container.Client
}

// container returns a cached client for a SAS-authorized container URL.
func (m *Manager) container(containerURL string) (*containerClient, error) {
	m.RLock()
	client, ok := m.containers[containerURL]
	m.RUnlock()
	if ok {
		return client, nil
	}

	m.Lock()
	defer m.Unlock()
	if client, ok = m.containers[containerURL]; ok {
		return client, nil
	}
	cc, err := container.NewClientWithNoCredential(containerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create container client: %w", err)
	}
	client = &containerClient{client: cc}
	m.containers[containerURL] = client
	return client, nil
}

// UploadBlob writes data as a block blob named name inside the container
// and returns the blob URL, SAS included.
func (m *Manager) UploadBlob(ctx context.Context, containerURL, name string, data []byte) (string, error) {
	ctx, span := m.tracer.Start(ctx, "azureclient.uploadBlob",
		trace.WithAttributes(
			attribute.String("blob", name),
			attribute.Int("bytes", len(data)),
		),
	)
	defer span.End()

	cc, err := m.container(containerURL)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	bb := cc.client.NewBlockBlobClient(name)
	_, err = bb.UploadBuffer(ctx, data, &blockblob.UploadBufferOptions{
		Metadata: map[string]*string{
			"writer": to.Ptr("adxhistorian"),
		},
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType:     to.Ptr("text/csv"),
			BlobContentEncoding: to.Ptr("gzip"),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return "", fmt.Errorf("failed to upload blob %s: %w", name, err)
	}
	return bb.URL(), nil
}
