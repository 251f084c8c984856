// Package azurestore implements a BlockStore over an Azure Blob
// Storage container, fronted by an in-memory LRU read cache so a
// restore that revisits the same handles (shared subtrees across
// snapshots) does not re-fetch them over the network.
package azurestore

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"
	lru "github.com/hashicorp/golang-lru"

	"github.com/ledgerwatch/chop/chop/blockstore"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
)

// AzureStore addresses blocks as blobs in a single container, one
// block per blob, named by the hex-encoded key.
type AzureStore struct {
	name      string
	container azblob.ContainerURL
	cache     *lru.Cache
}

// Open builds an AzureStore against container containerName in storage
// account accountName, authenticated with a shared-key credential from
// accountKey, with an LRU read cache holding up to cacheEntries
// recently-fetched blocks.
func Open(accountName, accountKey, containerName string, cacheEntries int) (*AzureStore, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azurestore: credential: %w", err)
	}
	pipeline := azblob.NewPipeline(cred, azblob.PipelineOptions{})
	u, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s", accountName, containerName))
	if err != nil {
		return nil, fmt.Errorf("azurestore: container url: %w", err)
	}
	cache, err := lru.New(cacheEntries)
	if err != nil {
		return nil, fmt.Errorf("azurestore: lru cache: %w", err)
	}
	return &AzureStore{
		name:      "azure:" + containerName,
		container: azblob.NewContainerURL(*u, pipeline),
		cache:     cache,
	}, nil
}

func blobName(key blockstore.Key) string { return fmt.Sprintf("%x", []byte(key)) }

func (s *AzureStore) Name() string { return s.name }

func (s *AzureStore) Exists(ctx context.Context, keys []blockstore.Key) ([]bool, error) {
	out := make([]bool, len(keys))
	for i, k := range keys {
		if _, ok := s.cache.Get(string(k)); ok {
			out[i] = true
			continue
		}
		blob := s.container.NewBlockBlobURL(blobName(k))
		_, err := blob.GetProperties(ctx, azblob.BlobAccessConditions{})
		out[i] = err == nil
	}
	return out, nil
}

func (s *AzureStore) Read(ctx context.Context, key blockstore.Key) ([]byte, error) {
	if v, ok := s.cache.Get(string(key)); ok {
		return v.([]byte), nil
	}
	blob := s.container.NewBlockBlobURL(blobName(key))
	resp, err := blob.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false)
	if err != nil {
		if isNotFound(err) {
			return nil, cherrors.ErrBlockUnavailable
		}
		return nil, fmt.Errorf("azurestore: download %x: %w", key, err)
	}
	body := resp.Body(azblob.RetryReaderOptions{})
	defer body.Close()
	data, err := ioutil.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("azurestore: read body %x: %w", key, err)
	}
	s.cache.Add(string(key), data)
	return data, nil
}

func (s *AzureStore) Write(ctx context.Context, key blockstore.Key, data []byte) error {
	blob := s.container.NewBlockBlobURL(blobName(key))
	_, err := blob.Upload(ctx, bytes.NewReader(data), azblob.BlobHTTPHeaders{}, azblob.Metadata{}, azblob.BlobAccessConditions{})
	if err != nil {
		return fmt.Errorf("azurestore: upload %x: %w", key, err)
	}
	s.cache.Add(string(key), append([]byte(nil), data...))
	return nil
}

func (s *AzureStore) Delete(ctx context.Context, key blockstore.Key) error {
	blob := s.container.NewBlockBlobURL(blobName(key))
	_, err := blob.Delete(ctx, azblob.DeleteSnapshotsOptionNone, azblob.BlobAccessConditions{})
	s.cache.Remove(string(key))
	if isNotFound(err) {
		return cherrors.ErrBlockUnavailable
	}
	if err != nil {
		return fmt.Errorf("azurestore: delete %x: %w", key, err)
	}
	return nil
}

// FirstBlock is not implemented: Azure container listing requires
// paging through a separate API that does not fit the synchronous
// Iterator contract without a background goroutine, which isn't
// justified for a backend primarily used as a write/restore target
// rather than a browsed store.
func (s *AzureStore) FirstBlock(ctx context.Context) (blockstore.Iterator, error) {
	return nil, cherrors.ErrNotImpl
}

func (s *AzureStore) Sync(ctx context.Context) error { return nil }
func (s *AzureStore) Close() error                   { return nil }

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if serr, ok := err.(azblob.StorageError); ok {
		return serr.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}
