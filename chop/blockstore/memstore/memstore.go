// Package memstore implements an in-memory BlockStore backed by
// VictoriaMetrics/fastcache, useful for tests and as the fast tier a
// read-through cache sits on top of.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/ledgerwatch/chop/chop/blockstore"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
)

// MemStore is a fastcache-backed BlockStore. fastcache itself has no
// notion of enumerable keys, so MemStore keeps a small side index (a
// key set protected by its own mutex, sorted afresh by each
// FirstBlock call) that answers Exists, gates Read, and supports
// iteration and Delete.
type MemStore struct {
	name  string
	cache *fastcache.Cache

	mu   sync.RWMutex
	keys map[string]struct{}
}

// New creates a MemStore named name with an in-memory cache sized
// maxBytes.
func New(name string, maxBytes int) *MemStore {
	return &MemStore{
		name:  name,
		cache: fastcache.New(maxBytes),
		keys:  make(map[string]struct{}),
	}
}

func (m *MemStore) Name() string { return m.name }

func (m *MemStore) Exists(ctx context.Context, keys []blockstore.Key) ([]bool, error) {
	out := make([]bool, len(keys))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, k := range keys {
		_, out[i] = m.keys[string(k)]
	}
	return out, nil
}

func (m *MemStore) Read(ctx context.Context, key blockstore.Key) ([]byte, error) {
	m.mu.RLock()
	_, ok := m.keys[string(key)]
	m.mu.RUnlock()
	if !ok {
		return nil, cherrors.ErrBlockUnavailable
	}
	data, ok := m.cache.HasGet(nil, key)
	if !ok {
		return nil, cherrors.ErrBlockUnavailable
	}
	return data, nil
}

func (m *MemStore) Write(ctx context.Context, key blockstore.Key, data []byte) error {
	m.cache.Set(key, data)
	m.mu.Lock()
	m.keys[string(key)] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Delete(ctx context.Context, key blockstore.Key) error {
	m.mu.Lock()
	_, ok := m.keys[string(key)]
	delete(m.keys, string(key))
	m.mu.Unlock()
	if !ok {
		return cherrors.ErrBlockUnavailable
	}
	m.cache.Del(key)
	return nil
}

func (m *MemStore) FirstBlock(ctx context.Context) (blockstore.Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.keys))
	for k := range m.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return nil, cherrors.ErrStoreEnd
	}
	return &iterator{keys: keys}, nil
}

func (m *MemStore) Sync(ctx context.Context) error { return nil }

func (m *MemStore) Close() error {
	m.cache.Reset()
	return nil
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
