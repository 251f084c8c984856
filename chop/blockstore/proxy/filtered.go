package proxy

import (
	"context"

	"github.com/ledgerwatch/chop/chop/blockstore"
	"github.com/ledgerwatch/chop/chop/filter"
)

// Filtered applies a Filter's Forward transform to every block on the
// way into its backend, and Backward on the way out, so compression or
// an additional encryption layer can be inserted without either the
// block indexer or the caller knowing about it.
type Filtered struct {
	Backend   blockstore.BlockStore
	Filter    filter.Filter
	Semantics blockstore.ProxySemantics
}

func NewFiltered(backend blockstore.BlockStore, f filter.Filter, semantics blockstore.ProxySemantics) *Filtered {
	return &Filtered{Backend: backend, Filter: f, Semantics: semantics}
}

func (f *Filtered) Name() string { return "filtered(" + f.Filter.Name() + "," + f.Backend.Name() + ")" }

func (f *Filtered) Exists(ctx context.Context, keys []blockstore.Key) ([]bool, error) {
	return f.Backend.Exists(ctx, keys)
}

func (f *Filtered) Read(ctx context.Context, key blockstore.Key) ([]byte, error) {
	data, err := f.Backend.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	return f.Filter.Backward(data)
}

func (f *Filtered) Write(ctx context.Context, key blockstore.Key, data []byte) error {
	transformed, err := f.Filter.Forward(data)
	if err != nil {
		return err
	}
	return f.Backend.Write(ctx, key, transformed)
}

func (f *Filtered) Delete(ctx context.Context, key blockstore.Key) error {
	return f.Backend.Delete(ctx, key)
}

func (f *Filtered) FirstBlock(ctx context.Context) (blockstore.Iterator, error) {
	return f.Backend.FirstBlock(ctx)
}

func (f *Filtered) Sync(ctx context.Context) error { return f.Backend.Sync(ctx) }

// Close applies Semantics to the backend: LeaveAsIs does nothing,
// EventuallyClose closes it, EventuallyDestroy deletes every block it
// can enumerate, then closes it.
func (f *Filtered) Close() error {
	switch f.Semantics {
	case blockstore.EventuallyClose:
		return f.Backend.Close()
	case blockstore.EventuallyDestroy:
		destroy(f.Backend)
		return f.Backend.Close()
	default:
		return nil
	}
}
