// Package blockstore defines the block-store abstraction: a mapping
// from opaque keys to byte blobs, with proxy variants for
// deduplication, filtering, logging, and statistics, over a virtual
// table of exists/read/write/delete/first-block/sync/close
// operations that pluggable backends implement.
package blockstore

import (
	"context"

	cherrors "github.com/ledgerwatch/chop/chop/errors"
)

// Key is an opaque byte string naming a block. Re-declared here (rather
// than importing blockindexer) to keep this package free of a
// dependency on the indexer layer it is itself a dependency of.
type Key []byte

func (k Key) String() string { return string(k) }

// BlockStore is the virtual table every backend and proxy implements.
// All operations return errors from the chop/errors taxonomy; StoreEnd
// and BlockUnavailable are data-flow/absence signals, not faults.
type BlockStore interface {
	// Name identifies the store for logging and stats.
	Name() string

	// Exists reports, for each key, whether it is currently stored.
	// Returns errors.ErrNotImpl if the backend cannot support existence
	// checks independent of Read.
	Exists(ctx context.Context, keys []Key) ([]bool, error)

	// Read returns the bytes stored under key, or
	// errors.ErrBlockUnavailable if key is unknown, or
	// errors.ErrStoreError for an I/O fault.
	Read(ctx context.Context, key Key) ([]byte, error)

	// Write stores data under key. Writing the same key twice is
	// idempotent; the bytes visible under a key equal the last
	// successful write. Durable only after a following Sync.
	Write(ctx context.Context, key Key, data []byte) error

	// Delete removes key. Returns errors.ErrBlockUnavailable if absent,
	// or errors.ErrNotImpl if the backend does not support deletion.
	Delete(ctx context.Context, key Key) error

	// FirstBlock returns an iterator over every currently-stored key.
	// Returns errors.ErrStoreEnd immediately if the store is empty.
	FirstBlock(ctx context.Context) (Iterator, error)

	// Sync flushes buffers; any prior Write is durable once Sync
	// returns, for backends that claim durability.
	Sync(ctx context.Context) error

	// Close idempotently releases resources.
	Close() error
}

// Iterator walks every key in a store exactly once, in
// backend-defined order. Concurrent mutation during iteration is
// undefined. An iterator is invalidated by any mutation on its store.
type Iterator interface {
	// Next advances the cursor. Returns errors.ErrStoreEnd once
	// exhausted, at which point IsNil reports true.
	Next(ctx context.Context) error
	// Key returns the key at the current cursor position; valid only
	// when IsNil is false.
	Key() Key
	// IsNil reports whether the cursor holds a valid key.
	IsNil() bool
}

// ProxySemantics governs what Close does to a proxy's backend store:
// leave it alone, close it, or close then destroy it.
type ProxySemantics int

const (
	// LeaveAsIs never touches the backend.
	LeaveAsIs ProxySemantics = iota
	// EventuallyClose closes the backend when the proxy closes.
	EventuallyClose
	// EventuallyDestroy deletes every block the backend can enumerate
	// (best effort), then closes it, when the proxy closes.
	EventuallyDestroy
)

var (
	ErrNotImpl          = cherrors.ErrNotImpl
	ErrBlockUnavailable = cherrors.ErrBlockUnavailable
	ErrStoreError       = cherrors.ErrStoreError
	ErrStoreEnd         = cherrors.ErrStoreEnd
)
