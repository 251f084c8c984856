package blockindexer

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"

	"github.com/ledgerwatch/chop/chop/blockstore"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
)

// HashAlgorithm selects the digest used by a HashIndexer. SHA-256 is
// the default; SHA-1 and BLAKE2b are offered for interoperability.
type HashAlgorithm int

const (
	SHA256 HashAlgorithm = iota
	SHA1
	BLAKE2b256
)

func (a HashAlgorithm) new() (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case SHA1:
		return sha1.New(), nil
	case BLAKE2b256:
		return blake2b.New256(nil)
	default:
		return nil, fmt.Errorf("blockindexer: unknown hash algorithm %d", a)
	}
}

// HashIndexer is the plain content-hash indexer: key = H(block),
// stored bytes = block itself. Not encrypted.
type HashIndexer struct {
	Algorithm HashAlgorithm
}

func (HashIndexer) Class() Class { return ClassHash }

func (i HashIndexer) Index(ctx context.Context, store blockstore.BlockStore, block []byte) (IndexHandle, error) {
	h, err := i.Algorithm.new()
	if err != nil {
		return IndexHandle{}, err
	}
	h.Write(block)
	key := h.Sum(nil)

	if err := store.Write(ctx, blockstore.Key(key), block); err != nil {
		return IndexHandle{}, fmt.Errorf("blockindexer: write block: %w", err)
	}
	return IndexHandle{Class: ClassHash, Key: BlockKey(key), BlockSize: int64(len(block))}, nil
}

// HashFetcher is the dual of HashIndexer.
type HashFetcher struct {
	Algorithm HashAlgorithm
}

func (HashFetcher) Class() Class { return ClassHash }

func (f HashFetcher) Fetch(ctx context.Context, store blockstore.BlockStore, handle IndexHandle) ([]byte, error) {
	data, err := store.Read(ctx, blockstore.Key(handle.Key))
	if err != nil {
		return nil, err
	}
	h, err := f.Algorithm.new()
	if err != nil {
		return nil, err
	}
	h.Write(data)
	if !BlockKey(h.Sum(nil)).Equal(handle.Key) {
		return nil, fmt.Errorf("blockindexer: hash mismatch for key %x: %w", handle.Key, cherrors.ErrIntegrityError)
	}
	return data, nil
}
