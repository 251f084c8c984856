package proxy

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/ledgerwatch/chop/chop/blockstore"
	"github.com/ledgerwatch/chop/internal/log"
)

// Smart deduplicates writes against its backend, skipping a write
// entirely when the key is already present there — even on a freshly
// constructed Smart wrapping an already-populated backend (e.g. a
// second run of the archiver CLI against the same file), since nothing
// about that case is visible to a local cache alone. Content-addressed
// keys make this safe: two writes of the same key always carry the
// same bytes, so a cache hit never hides a legitimate update.
//
// Exists always delegates to the backend — it must answer correctly
// for any key, including ones this proxy has never itself written or
// confirmed, so there is nothing safe to cache a negative answer
// against. Write likewise calls Backend.Exists before every write and
// skips the write only when the backend reports the key present. A
// roaring bitmap over a 32-bit key fingerprint records the keys this
// proxy has seen present (via a prior Write or Exists call) and drops
// them on Delete; since two distinct keys can collide on their first
// four bytes, a fingerprint is never taken as proof of presence, so a
// collision cannot cause a write to be dropped.
type Smart struct {
	Backend   blockstore.BlockStore
	Semantics blockstore.ProxySemantics

	mu          sync.RWMutex
	maybeExists *roaring.Bitmap
}

func NewSmart(backend blockstore.BlockStore, semantics blockstore.ProxySemantics) *Smart {
	return &Smart{Backend: backend, Semantics: semantics, maybeExists: roaring.New()}
}

func fingerprint(key blockstore.Key) uint32 {
	if len(key) >= 4 {
		return binary.BigEndian.Uint32(key[:4])
	}
	var buf [4]byte
	copy(buf[:], key)
	return binary.BigEndian.Uint32(buf[:])
}

func (s *Smart) Name() string { return "smart(" + s.Backend.Name() + ")" }

func (s *Smart) Exists(ctx context.Context, keys []blockstore.Key) ([]bool, error) {
	out, err := s.Backend.Exists(ctx, keys)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	for i, present := range out {
		if present {
			s.maybeExists.Add(fingerprint(keys[i]))
		}
	}
	s.mu.Unlock()
	return out, nil
}

func (s *Smart) Read(ctx context.Context, key blockstore.Key) ([]byte, error) {
	return s.Backend.Read(ctx, key)
}

// Write skips the backend entirely when the key is already present
// there, the deduplication this proxy exists for. The existence check
// is made against the backend on every call, so a fresh Smart instance
// — as constructed on every CLI invocation — dedups the same way a
// long-lived one does.
func (s *Smart) Write(ctx context.Context, key blockstore.Key, data []byte) error {
	present, err := s.Backend.Exists(ctx, []blockstore.Key{key})
	if err != nil {
		return err
	}
	if present[0] {
		s.mu.Lock()
		s.maybeExists.Add(fingerprint(key))
		s.mu.Unlock()
		log.Debug("smart proxy: skipping duplicate write", "key", key.String())
		return nil
	}

	if err := s.Backend.Write(ctx, key, data); err != nil {
		return err
	}
	s.mu.Lock()
	s.maybeExists.Add(fingerprint(key))
	s.mu.Unlock()
	return nil
}

func (s *Smart) Delete(ctx context.Context, key blockstore.Key) error {
	if err := s.Backend.Delete(ctx, key); err != nil {
		return err
	}
	s.mu.Lock()
	s.maybeExists.Remove(fingerprint(key))
	s.mu.Unlock()
	return nil
}

func (s *Smart) FirstBlock(ctx context.Context) (blockstore.Iterator, error) {
	return s.Backend.FirstBlock(ctx)
}

func (s *Smart) Sync(ctx context.Context) error { return s.Backend.Sync(ctx) }

// Close applies Semantics to the backend: LeaveAsIs does nothing,
// EventuallyClose closes it, EventuallyDestroy deletes every block it
// can enumerate, then closes it.
func (s *Smart) Close() error {
	switch s.Semantics {
	case blockstore.EventuallyClose:
		return s.Backend.Close()
	case blockstore.EventuallyDestroy:
		destroy(s.Backend)
		return s.Backend.Close()
	default:
		return nil
	}
}
