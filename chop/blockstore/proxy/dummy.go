// Package proxy implements the four block-store proxy kinds: Dummy
// (pass-through with call logging), Smart (existence-check dedup),
// Filtered (compress/encrypt on the way to a backend), and Stat (usage
// counters). Each wraps exactly one backend BlockStore and forwards
// every call it does not itself need to intercept.
package proxy

import (
	"context"

	"github.com/ledgerwatch/chop/chop/blockstore"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
	"github.com/ledgerwatch/chop/internal/log"
)

// Dummy logs every call it receives and forwards to Backend when one
// is set; with a nil Backend it swallows writes and returns
// errors.ErrNotImpl on anything that would need to read back data it
// never kept, the shape used for testing visibility into what a
// pipeline would have done without committing to a real store.
type Dummy struct {
	Backend   blockstore.BlockStore
	Semantics blockstore.ProxySemantics
}

func NewDummy(backend blockstore.BlockStore, semantics blockstore.ProxySemantics) *Dummy {
	return &Dummy{Backend: backend, Semantics: semantics}
}

func (d *Dummy) Name() string {
	if d.Backend == nil {
		return "dummy(none)"
	}
	return "dummy(" + d.Backend.Name() + ")"
}

func (d *Dummy) Exists(ctx context.Context, keys []blockstore.Key) ([]bool, error) {
	log.Debug("dummy proxy: exists", "keys", len(keys))
	if d.Backend == nil {
		return nil, cherrors.ErrNotImpl
	}
	return d.Backend.Exists(ctx, keys)
}

func (d *Dummy) Read(ctx context.Context, key blockstore.Key) ([]byte, error) {
	log.Debug("dummy proxy: read", "key", key.String())
	if d.Backend == nil {
		return nil, cherrors.ErrNotImpl
	}
	return d.Backend.Read(ctx, key)
}

func (d *Dummy) Write(ctx context.Context, key blockstore.Key, data []byte) error {
	log.Debug("dummy proxy: write", "key", key.String(), "size", len(data))
	if d.Backend == nil {
		return nil
	}
	return d.Backend.Write(ctx, key, data)
}

func (d *Dummy) Delete(ctx context.Context, key blockstore.Key) error {
	log.Debug("dummy proxy: delete", "key", key.String())
	if d.Backend == nil {
		return cherrors.ErrNotImpl
	}
	return d.Backend.Delete(ctx, key)
}

func (d *Dummy) FirstBlock(ctx context.Context) (blockstore.Iterator, error) {
	log.Debug("dummy proxy: first block")
	if d.Backend == nil {
		return nil, cherrors.ErrNotImpl
	}
	return d.Backend.FirstBlock(ctx)
}

func (d *Dummy) Sync(ctx context.Context) error {
	log.Debug("dummy proxy: sync")
	if d.Backend == nil {
		return nil
	}
	return d.Backend.Sync(ctx)
}

// Close applies Semantics to the backend: LeaveAsIs does nothing,
// EventuallyClose closes it, EventuallyDestroy first attempts a
// best-effort wipe by deleting every key it can enumerate, then closes
// it.
func (d *Dummy) Close() error {
	log.Debug("dummy proxy: close")
	if d.Backend == nil {
		return nil
	}
	switch d.Semantics {
	case blockstore.EventuallyClose:
		return d.Backend.Close()
	case blockstore.EventuallyDestroy:
		destroy(d.Backend)
		return d.Backend.Close()
	default:
		return nil
	}
}

// destroy best-effort deletes every block a backend holds, for the
// EventuallyDestroy semantic. Backends that do not support Delete or
// iteration are left untouched; destruction is advisory, not a
// guarantee.
func destroy(store blockstore.BlockStore) {
	ctx := context.Background()
	it, err := store.FirstBlock(ctx)
	if err != nil {
		return
	}
	for !it.IsNil() {
		_ = store.Delete(ctx, it.Key())
		if it.Next(ctx) != nil {
			break
		}
	}
}
