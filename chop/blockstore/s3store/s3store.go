// Package s3store implements a BlockStore over an S3-compatible
// bucket, fronted by an in-memory LRU read cache like azurestore.
package s3store

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	lru "github.com/hashicorp/golang-lru"

	"github.com/ledgerwatch/chop/chop/blockstore"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
)

// S3Store addresses blocks as objects in a single bucket, one block
// per object, keyed by the hex-encoded block key.
type S3Store struct {
	name   string
	bucket string
	prefix string
	client *s3.S3
	cache  *lru.Cache
}

// Open builds an S3Store against bucket in region, prefixing every
// object key with prefix (e.g. an archive identifier), with an LRU
// read cache holding up to cacheEntries recently-fetched blocks.
func Open(region, bucket, prefix string, cacheEntries int) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("s3store: session: %w", err)
	}
	cache, err := lru.New(cacheEntries)
	if err != nil {
		return nil, fmt.Errorf("s3store: lru cache: %w", err)
	}
	return &S3Store{
		name:   "s3:" + bucket,
		bucket: bucket,
		prefix: prefix,
		client: s3.New(sess),
		cache:  cache,
	}, nil
}

func (s *S3Store) objectKey(key blockstore.Key) string {
	return fmt.Sprintf("%s%x", s.prefix, []byte(key))
}

func (s *S3Store) Name() string { return s.name }

func (s *S3Store) Exists(ctx context.Context, keys []blockstore.Key) ([]bool, error) {
	out := make([]bool, len(keys))
	for i, k := range keys {
		if _, ok := s.cache.Get(string(k)); ok {
			out[i] = true
			continue
		}
		_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(k)),
		})
		out[i] = err == nil
	}
	return out, nil
}

func (s *S3Store) Read(ctx context.Context, key blockstore.Key) ([]byte, error) {
	if v, ok := s.cache.Get(string(key)); ok {
		return v.([]byte), nil
	}
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, cherrors.ErrBlockUnavailable
		}
		return nil, fmt.Errorf("s3store: get %x: %w", key, err)
	}
	defer out.Body.Close()
	data, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3store: read body %x: %w", key, err)
	}
	s.cache.Add(string(key), data)
	return data, nil
}

func (s *S3Store) Write(ctx context.Context, key blockstore.Key, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3store: put %x: %w", key, err)
	}
	s.cache.Add(string(key), append([]byte(nil), data...))
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key blockstore.Key) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	s.cache.Remove(string(key))
	if err != nil {
		return fmt.Errorf("s3store: delete %x: %w", key, err)
	}
	return nil
}

// FirstBlock lists every object under prefix via paginated
// ListObjectsV2 calls, gathered eagerly into the returned iterator —
// acceptable for a bucket scoped to one archive's prefix, unlike
// azurestore's unbounded container listing.
func (s *S3Store) FirstBlock(ctx context.Context) (blockstore.Iterator, error) {
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			raw, err := hex.DecodeString((*obj.Key)[len(s.prefix):])
			if err != nil {
				continue
			}
			keys = append(keys, string(raw))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: list: %w", err)
	}
	if len(keys) == 0 {
		return nil, cherrors.ErrStoreEnd
	}
	return &iterator{keys: keys}, nil
}

func (s *S3Store) Sync(ctx context.Context) error { return nil }
func (s *S3Store) Close() error                   { return nil }

func isNotFound(err error) bool {
	if aerr, ok := err.(interface{ Code() string }); ok {
		return aerr.Code() == s3.ErrCodeNoSuchKey
	}
	return false
}

type iterator struct {
	keys []string
	pos  int
}

func (it *iterator) Next(ctx context.Context) error {
	it.pos++
	if it.pos >= len(it.keys) {
		return cherrors.ErrStoreEnd
	}
	return nil
}

func (it *iterator) Key() blockstore.Key {
	if it.IsNil() {
		return nil
	}
	return blockstore.Key(it.keys[it.pos])
}

func (it *iterator) IsNil() bool { return it.pos >= len(it.keys) }
