package blockindexer

import (
	"context"

	"github.com/ledgerwatch/chop/chop/blockstore"
)

// BlockIndexer derives a deterministic IndexHandle for a raw block and
// writes its stored bytes to store under the derived key. Content
// addressed: for a hash indexer configured with hash H,
// key(B) = H(B); identical blocks always yield identical keys.
type BlockIndexer interface {
	Class() Class
	Index(ctx context.Context, store blockstore.BlockStore, block []byte) (IndexHandle, error)
}

// BlockFetcher is the dual of a BlockIndexer: given a handle, it
// resolves the original block back out of a store, verifying
// integrity. Fails with errors.ErrBlockUnavailable if the key is not
// present, or errors.ErrIntegrityError on a hash mismatch.
type BlockFetcher interface {
	Class() Class
	Fetch(ctx context.Context, store blockstore.BlockStore, handle IndexHandle) ([]byte, error)
}
