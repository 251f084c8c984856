package proxy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/chop/chop/blockstore"
	"github.com/ledgerwatch/chop/chop/blockstore/memstore"
	"github.com/ledgerwatch/chop/chop/blockstore/proxy"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
	"github.com/ledgerwatch/chop/chop/filter"
)

// countingStore wraps a BlockStore and counts Write calls that reach
// it, so a dedup proxy's skipped writes can be observed directly.
type countingStore struct {
	blockstore.BlockStore
	writes int
}

func (c *countingStore) Write(ctx context.Context, key blockstore.Key, data []byte) error {
	c.writes++
	return c.BlockStore.Write(ctx, key, data)
}

// failingStore rejects every Write, so a caller can verify that a
// failed write leaves usage counters untouched.
type failingStore struct {
	blockstore.BlockStore
}

func (f *failingStore) Write(ctx context.Context, key blockstore.Key, data []byte) error {
	return cherrors.ErrStoreError
}

func TestDummyForwardsEverything(t *testing.T) {
	backend := memstore.New("back", 1<<20)
	d := proxy.NewDummy(backend, blockstore.LeaveAsIs)

	ctx := context.Background()
	require.NoError(t, d.Write(ctx, blockstore.Key("k"), []byte("v")))
	data, err := d.Read(ctx, blockstore.Key("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), data)

	exists, err := d.Exists(ctx, []blockstore.Key{blockstore.Key("k"), blockstore.Key("missing")})
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, exists)
}

func TestDummyLeaveAsIsDoesNotCloseBackend(t *testing.T) {
	backend := memstore.New("back", 1<<20)
	d := proxy.NewDummy(backend, blockstore.LeaveAsIs)
	require.NoError(t, d.Close())
	// Backend remains usable since LeaveAsIs never closes it.
	require.NoError(t, backend.Write(context.Background(), blockstore.Key("k"), []byte("v")))
}

func TestDummyEventuallyDestroyWipesBackend(t *testing.T) {
	backend := memstore.New("back", 1<<20)
	ctx := context.Background()
	require.NoError(t, backend.Write(ctx, blockstore.Key("a"), []byte("1")))
	require.NoError(t, backend.Write(ctx, blockstore.Key("b"), []byte("2")))

	d := proxy.NewDummy(backend, blockstore.EventuallyDestroy)
	require.NoError(t, d.Close())

	_, err := backend.FirstBlock(ctx)
	require.ErrorIs(t, err, blockstore.ErrStoreEnd)
}

func TestDummyWithNoBackendSwallowsWritesAndRejectsReads(t *testing.T) {
	d := proxy.NewDummy(nil, blockstore.LeaveAsIs)
	ctx := context.Background()

	require.NoError(t, d.Write(ctx, blockstore.Key("k"), []byte("v")), "a backendless dummy swallows writes silently")

	_, err := d.Read(ctx, blockstore.Key("k"))
	require.ErrorIs(t, err, cherrors.ErrNotImpl)

	_, err = d.Exists(ctx, []blockstore.Key{blockstore.Key("k")})
	require.ErrorIs(t, err, cherrors.ErrNotImpl)

	require.NoError(t, d.Close())
}

func TestSmartSkipsDuplicateWrites(t *testing.T) {
	counting := &countingStore{BlockStore: memstore.New("back", 1<<20)}
	s := proxy.NewSmart(counting, blockstore.LeaveAsIs)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, blockstore.Key("abcd"), []byte("v1")))
	require.NoError(t, s.Write(ctx, blockstore.Key("abcd"), []byte("v1")))
	require.Equal(t, 1, counting.writes, "second write of the same key must be deduplicated")

	require.NoError(t, s.Write(ctx, blockstore.Key("efgh"), []byte("v2")))
	require.Equal(t, 2, counting.writes)
}

func TestSmartExistsPopulatesCacheFromBackend(t *testing.T) {
	backend := memstore.New("back", 1<<20)
	ctx := context.Background()
	require.NoError(t, backend.Write(ctx, blockstore.Key("seed"), []byte("v")))

	s := proxy.NewSmart(backend, blockstore.LeaveAsIs)
	exists, err := s.Exists(ctx, []blockstore.Key{blockstore.Key("seed"), blockstore.Key("absent")})
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, exists)

	// A write of "seed" should be skipped since the backend already
	// holds it.
	counting := &countingStore{BlockStore: backend}
	s2 := proxy.NewSmart(counting, blockstore.LeaveAsIs)
	_, err = s2.Exists(ctx, []blockstore.Key{blockstore.Key("seed")})
	require.NoError(t, err)
	require.NoError(t, s2.Write(ctx, blockstore.Key("seed"), []byte("v")))
	require.Equal(t, 0, counting.writes)
}

func TestSmartLeaveAsIsDoesNotCloseBackend(t *testing.T) {
	backend := memstore.New("back", 1<<20)
	s := proxy.NewSmart(backend, blockstore.LeaveAsIs)
	require.NoError(t, s.Close())
	require.NoError(t, backend.Write(context.Background(), blockstore.Key("k"), []byte("v")))
}

func TestSmartEventuallyDestroyWipesBackend(t *testing.T) {
	backend := memstore.New("back", 1<<20)
	ctx := context.Background()
	require.NoError(t, backend.Write(ctx, blockstore.Key("a"), []byte("1")))

	s := proxy.NewSmart(backend, blockstore.EventuallyDestroy)
	require.NoError(t, s.Close())

	_, err := backend.FirstBlock(ctx)
	require.ErrorIs(t, err, blockstore.ErrStoreEnd)
}

func TestFilteredAppliesCompressionBothWays(t *testing.T) {
	backend := memstore.New("back", 1<<20)
	f := proxy.NewFiltered(backend, filter.Snappy{}, blockstore.LeaveAsIs)
	ctx := context.Background()

	payload := []byte("highly compressible highly compressible highly compressible")
	require.NoError(t, f.Write(ctx, blockstore.Key("k"), payload))

	stored, err := backend.Read(ctx, blockstore.Key("k"))
	require.NoError(t, err)
	require.NotEqual(t, payload, stored, "backend must hold the compressed form")

	out, err := f.Read(ctx, blockstore.Key("k"))
	require.NoError(t, err)
	require.Equal(t, payload, out)
}

func TestFilteredLeaveAsIsDoesNotCloseBackend(t *testing.T) {
	backend := memstore.New("back", 1<<20)
	f := proxy.NewFiltered(backend, filter.Identity, blockstore.LeaveAsIs)
	require.NoError(t, f.Close())
	require.NoError(t, backend.Write(context.Background(), blockstore.Key("k"), []byte("v")))
}

func TestFilteredEventuallyDestroyWipesBackend(t *testing.T) {
	backend := memstore.New("back", 1<<20)
	ctx := context.Background()
	require.NoError(t, backend.Write(ctx, blockstore.Key("a"), []byte("1")))

	f := proxy.NewFiltered(backend, filter.Identity, blockstore.EventuallyDestroy)
	require.NoError(t, f.Close())

	_, err := backend.FirstBlock(ctx)
	require.ErrorIs(t, err, blockstore.ErrStoreEnd)
}

func TestStatTracksCountersAndVirginBlocks(t *testing.T) {
	backend := memstore.New("back", 1<<20)
	s := proxy.NewStat(backend, nil, blockstore.LeaveAsIs)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, blockstore.Key("a"), []byte("hello")))
	require.NoError(t, s.Write(ctx, blockstore.Key("a"), []byte("hello")))
	require.NoError(t, s.Write(ctx, blockstore.Key("b"), []byte("world!")))
	_, err := s.Read(ctx, blockstore.Key("a"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, blockstore.Key("b")))

	snap := s.Snapshot()
	require.Equal(t, uint64(3), snap.Writes)
	require.Equal(t, uint64(1), snap.Reads)
	require.Equal(t, uint64(1), snap.Deletes)
	require.Equal(t, 1, snap.VirginBlocks, "deleting b should drop it from the virgin set")
	require.Equal(t, uint64(len("hello")), snap.BytesRead)
	require.Equal(t, uint64(len("hello")+len("world!")), snap.VirginBytes)
	require.Equal(t, int64(len("hello")), snap.MinBlockSize)
	require.Equal(t, int64(len("world!")), snap.MaxBlockSize)
	require.InDelta(t, float64(len("hello")+len("hello")+len("world!"))/3, snap.AvgBlockSize, 0.0001)
}

func TestStatIgnoresFailedWrites(t *testing.T) {
	s := proxy.NewStat(&failingStore{BlockStore: memstore.New("back", 1<<20)}, nil, blockstore.LeaveAsIs)
	ctx := context.Background()

	err := s.Write(ctx, blockstore.Key("a"), []byte("hello"))
	require.ErrorIs(t, err, cherrors.ErrStoreError)

	snap := s.Snapshot()
	require.Equal(t, uint64(0), snap.Writes)
	require.Equal(t, 0, snap.VirginBlocks)
	require.Equal(t, uint64(0), snap.VirginBytes)
	require.Equal(t, int64(0), snap.MinBlockSize, "no write has succeeded, so min block size stays at its zero value")
}

func TestStatLeaveAsIsDoesNotCloseBackend(t *testing.T) {
	backend := memstore.New("back", 1<<20)
	s := proxy.NewStat(backend, nil, blockstore.LeaveAsIs)
	require.NoError(t, s.Close())
	require.NoError(t, backend.Write(context.Background(), blockstore.Key("k"), []byte("v")))
}

func TestStatEventuallyDestroyWipesBackend(t *testing.T) {
	backend := memstore.New("back", 1<<20)
	ctx := context.Background()
	require.NoError(t, backend.Write(ctx, blockstore.Key("a"), []byte("1")))

	s := proxy.NewStat(backend, nil, blockstore.EventuallyDestroy)
	require.NoError(t, s.Close())

	_, err := backend.FirstBlock(ctx)
	require.ErrorIs(t, err, blockstore.ErrStoreEnd)
}
