package storage

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	pipeerrors "github.com/riverlane-stream/live-pipeline/internal/errors"
)

// AzureBlobStore is a Store backed by an Azure Blob Storage container.
type AzureBlobStore struct {
	client    *azblob.Client
	container string
}

// AzureBlobConfig holds the connection details for an AzureBlobStore.
type AzureBlobConfig struct {
	AccountURL string // e.g. https://<account>.blob.core.windows.net
	Container  string
	// AccountKey, when non-empty, selects shared-key auth; otherwise the
	// default Azure credential chain (managed identity, env vars, CLI) is
	// used via azidentity.
	AccountKey  string
	AccountName string
}

// NewAzureBlobStore builds an AzureBlobStore from cfg.
func NewAzureBlobStore(cfg AzureBlobConfig) (*AzureBlobStore, error) {
	if cfg.AccountKey != "" {
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, pipeerrors.NewStorageError("newSharedKeyCredential", err)
		}
		client, err := azblob.NewClientWithSharedKeyCredential(cfg.AccountURL, cred, nil)
		if err != nil {
			return nil, pipeerrors.NewStorageError("newClient", err)
		}
		return &AzureBlobStore{client: client, container: cfg.Container}, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, pipeerrors.NewStorageError("newDefaultAzureCredential", err)
	}
	client, err := azblob.NewClient(cfg.AccountURL, cred, nil)
	if err != nil {
		return nil, pipeerrors.NewStorageError("newClient", err)
	}
	return &AzureBlobStore{client: client, container: cfg.Container}, nil
}

func (s *AzureBlobStore) PutFile(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return pipeerrors.NewStorageError("putFile:open:"+key, err)
	}
	defer f.Close()

	_, err = s.client.UploadFile(ctx, s.container, key, f, nil)
	if err != nil {
		return pipeerrors.NewStorageError("putFile:"+key, err)
	}
	return nil
}

func (s *AzureBlobStore) PutBytes(ctx context.Context, key string, data []byte) error {
	_, err := s.client.UploadBuffer(ctx, s.container, key, data, nil)
	if err != nil {
		return pipeerrors.NewStorageError("putBytes:"+key, err)
	}
	return nil
}

func (s *AzureBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		return nil, pipeerrors.NewStorageError("get:"+key, err)
	}
	return resp.Body, nil
}

func (s *AzureBlobStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return pipeerrors.NewStorageError("delete:"+key, err)
	}
	return nil
}

func (s *AzureBlobStore) Head(ctx context.Context, key string) (ObjectInfo, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(key)
	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		return ObjectInfo{}, pipeerrors.NewStorageError("head:"+key, err)
	}
	info := ObjectInfo{Key: key}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		info.LastModified = *props.LastModified
	}
	if props.ETag != nil {
		info.ETag = string(*props.ETag)
	}
	return info, nil
}

func (s *AzureBlobStore) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(key)
	permissions := sas.BlobPermissions{Read: true}
	url, err := blobClient.GetSASURL(permissions, time.Now().Add(expiry), nil)
	if err != nil {
		return "", pipeerrors.NewStorageError("signedURL:"+key, err)
	}
	return url, nil
}

var _ Store = (*AzureBlobStore)(nil)
