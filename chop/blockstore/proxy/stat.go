package proxy

import (
	"context"
	"sync"

	"github.com/c2h5oh/datasize"
	mapset "github.com/deckarep/golang-set"

	"github.com/ledgerwatch/chop/chop/blockstore"
	"github.com/ledgerwatch/chop/chop/metrics"
	"github.com/ledgerwatch/chop/internal/log"
)

// Stat wraps a backend with usage counters, reporting them both via
// structured logging and, when Metrics is set, Prometheus. It tracks
// "virgin" blocks — keys written for the very first time through this
// proxy instance — in a set, since the cumulative write count alone
// cannot distinguish a flood of duplicate writes (cheap, the content
// was already present) from a flood of genuinely new content. A write
// only ever counts once Backend.Write actually succeeds; a failed
// write updates nothing.
type Stat struct {
	Backend   blockstore.BlockStore
	Metrics   *metrics.BlockStoreStats
	Semantics blockstore.ProxySemantics

	mu                      sync.Mutex
	virgin                  mapset.Set
	reads, writes, deletes  uint64
	bytesRead, bytesWritten uint64
	virginBytes             uint64
	minBlockSize            int64
	maxBlockSize            int64
	blockSizeSum            uint64
	blockSizeCount          uint64
}

func NewStat(backend blockstore.BlockStore, m *metrics.BlockStoreStats, semantics blockstore.ProxySemantics) *Stat {
	return &Stat{Backend: backend, Metrics: m, Semantics: semantics, virgin: mapset.NewSet(), minBlockSize: -1}
}

func (s *Stat) Name() string { return "stat(" + s.Backend.Name() + ")" }

func (s *Stat) Exists(ctx context.Context, keys []blockstore.Key) ([]bool, error) {
	return s.Backend.Exists(ctx, keys)
}

func (s *Stat) Read(ctx context.Context, key blockstore.Key) ([]byte, error) {
	data, err := s.Backend.Read(ctx, key)
	s.mu.Lock()
	s.reads++
	s.bytesRead += uint64(len(data))
	s.mu.Unlock()
	if s.Metrics != nil {
		s.Metrics.Reads.Inc()
		s.Metrics.BytesRead.Add(float64(len(data)))
	}
	return data, err
}

func (s *Stat) Write(ctx context.Context, key blockstore.Key, data []byte) error {
	err := s.Backend.Write(ctx, key, data)
	if err != nil {
		return err
	}

	size := int64(len(data))

	s.mu.Lock()
	s.writes++
	s.bytesWritten += uint64(size)
	isVirgin := !s.virgin.Contains(key.String())
	if isVirgin {
		s.virgin.Add(key.String())
		s.virginBytes += uint64(size)
	}
	if s.minBlockSize < 0 || size < s.minBlockSize {
		s.minBlockSize = size
	}
	if size > s.maxBlockSize {
		s.maxBlockSize = size
	}
	s.blockSizeSum += uint64(size)
	s.blockSizeCount++
	virginCount := s.virgin.Cardinality()
	virginBytes := s.virginBytes
	totalWritten := s.bytesWritten
	minSize, maxSize := s.minBlockSize, s.maxBlockSize
	avgSize := float64(s.blockSizeSum) / float64(s.blockSizeCount)
	s.mu.Unlock()

	if s.Metrics != nil {
		s.Metrics.Writes.Inc()
		s.Metrics.BytesWritten.Add(float64(size))
		s.Metrics.VirginBlocks.Set(float64(virginCount))
		s.Metrics.VirginBytes.Set(float64(virginBytes))
		s.Metrics.MinBlockSize.Set(float64(minSize))
		s.Metrics.MaxBlockSize.Set(float64(maxSize))
		s.Metrics.AvgBlockSize.Set(avgSize)
	}
	if isVirgin {
		log.Debug("stat proxy: new block",
			"store", s.Backend.Name(),
			"key", key.String(),
			"size", datasize.ByteSize(size).HumanReadable(),
			"totalWritten", datasize.ByteSize(totalWritten).HumanReadable(),
		)
	}
	return nil
}

func (s *Stat) Delete(ctx context.Context, key blockstore.Key) error {
	err := s.Backend.Delete(ctx, key)
	s.mu.Lock()
	s.deletes++
	s.virgin.Remove(key.String())
	s.mu.Unlock()
	if s.Metrics != nil {
		s.Metrics.Deletes.Inc()
	}
	return err
}

func (s *Stat) FirstBlock(ctx context.Context) (blockstore.Iterator, error) {
	return s.Backend.FirstBlock(ctx)
}

func (s *Stat) Sync(ctx context.Context) error { return s.Backend.Sync(ctx) }

// Close applies Semantics to the backend: LeaveAsIs does nothing,
// EventuallyClose closes it, EventuallyDestroy deletes every block it
// can enumerate, then closes it.
func (s *Stat) Close() error {
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

// Snapshot returns the current counters, for a CLI summary line.
type Snapshot struct {
	Reads, Writes, Deletes  uint64
	BytesRead, BytesWritten uint64
	VirginBlocks            int
	VirginBytes             uint64
	MinBlockSize            int64
	MaxBlockSize            int64
	AvgBlockSize            float64
}

func (s *Stat) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Reads: s.reads, Writes: s.writes, Deletes: s.deletes,
		BytesRead: s.bytesRead, BytesWritten: s.bytesWritten,
		VirginBlocks: s.virgin.Cardinality(),
		VirginBytes:  s.virginBytes,
		MaxBlockSize: s.maxBlockSize,
	}
	if s.minBlockSize >= 0 {
		snap.MinBlockSize = s.minBlockSize
	}
	if s.blockSizeCount > 0 {
		snap.AvgBlockSize = float64(s.blockSizeSum) / float64(s.blockSizeCount)
	}
	return snap
}
