package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

type azureStorage struct {
	client    *azblob.Client
	container string
}

// NewAzureStorage stores previews as blobs in container.
func NewAzureStorage(accountName, accountKey, container string) (PreviewStore, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net/", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &azureStorage{client: client, container: container}, nil
}

// EnsureContainer creates the preview container if it does not exist yet.
func EnsureContainer(ctx context.Context, store PreviewStore) error {
	s, ok := store.(*azureStorage)
	if !ok {
		return nil
	}
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("create container: %w", err)
	}
	return nil
}

func (s *azureStorage) Put(ctx context.Context, name string, data []byte) (string, error) {
	blobName := sanitizeName(name)
	if blobName == "" {
		return "", fmt.Errorf("invalid preview name %q", name)
	}

	contentType := "image/png"
	_, err := s.client.UploadBuffer(ctx, s.container, blobName, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	return PreviewLocation(blobName), nil
}

func (s *azureStorage) Get(ctx context.Context, name string) ([]byte, error) {
	downloadResponse, err := s.client.DownloadStream(ctx, s.container, sanitizeName(name), nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrPreviewNotFound
		}
		return nil, fmt.Errorf("download failed: %w", err)
	}

	retryReader := downloadResponse.Body
	defer retryReader.Close()

	return io.ReadAll(retryReader)
}
