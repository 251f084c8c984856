// Package treeindexer builds and walks the hash tree that indexes a
// whole stream's blocks: a fan-out-K tree of key blocks whose leaves
// are the handles produced by a per-block BlockIndexer, stored
// separately from the data blocks themselves so metadata can be
// migrated, re-replicated, or garbage-collected independently of
// content.
package treeindexer

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/chop/chop/blockindexer"
	"github.com/ledgerwatch/chop/chop/blockstore"
	"github.com/ledgerwatch/chop/chop/chopper"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
	"github.com/ledgerwatch/chop/chop/stream"
	"github.com/ledgerwatch/chop/internal/log"
)

// TreeHandle names the root of an indexed stream. If RootIsLeaf is
// true, Root addresses the stream's single data block directly and no
// key blocks exist at all — the one-block special case. TotalSize is
// the sum of all indexed block lengths as returned by the chopper
// (including any padding the chopper itself applied to its final
// block); FetchStream does not read it, and never trims indexed data
// to it.
type TreeHandle struct {
	Root           blockindexer.IndexHandle
	RootIsLeaf     bool
	TotalSize      int64
	FanOut         int
	LeafClass      blockindexer.Class
	LeafAlgorithm  blockindexer.HashAlgorithm
	KeyClass       blockindexer.Class
	KeyAlgorithm   blockindexer.HashAlgorithm
}

// TreeIndexer encodes a chopped stream into a TreeHandle and decodes a
// TreeHandle back into a lazy Stream. Leaf (data) blocks and key
// (index) blocks may use different indexer classes/algorithms and are
// written to separate stores, mirroring a deployment where metadata is
// replicated more aggressively than bulk content.
type TreeIndexer struct {
	K         int
	DataStore blockstore.BlockStore
	MetaStore blockstore.BlockStore

	leafIndexer blockindexer.BlockIndexer
	leafFetcher blockindexer.BlockFetcher
	keyIndexer  blockindexer.BlockIndexer
	keyFetcher  blockindexer.BlockFetcher
}

// NewTreeIndexer builds a TreeIndexer with fan-out k, writing data
// blocks to dataStore under leafClass/leafAlgo and key blocks to
// metaStore under keyClass/keyAlgo.
func NewTreeIndexer(
	k int,
	dataStore, metaStore blockstore.BlockStore,
	leafClass blockindexer.Class, leafAlgo blockindexer.HashAlgorithm,
	keyClass blockindexer.Class, keyAlgo blockindexer.HashAlgorithm,
) (*TreeIndexer, error) {
	if k < 1 {
		return nil, fmt.Errorf("treeindexer: fan-out must be >= 1, got %d: %w", k, cherrors.ErrInvalidArg)
	}
	leafIndexer, leafFetcher, err := blockindexer.New(leafClass, leafAlgo)
	if err != nil {
		return nil, err
	}
	keyIndexer, keyFetcher, err := blockindexer.New(keyClass, keyAlgo)
	if err != nil {
		return nil, err
	}
	return &TreeIndexer{
		K:           k,
		DataStore:   dataStore,
		MetaStore:   metaStore,
		leafIndexer: leafIndexer,
		leafFetcher: leafFetcher,
		keyIndexer:  keyIndexer,
		keyFetcher:  keyFetcher,
	}, nil
}

func (t *TreeIndexer) handle() TreeHandle {
	return TreeHandle{
		FanOut:        t.K,
		LeafClass:     t.leafIndexer.Class(),
		LeafAlgorithm: t.leafAlgo(),
		KeyClass:      t.keyIndexer.Class(),
		KeyAlgorithm:  t.keyAlgo(),
	}
}

func (t *TreeIndexer) leafAlgo() blockindexer.HashAlgorithm {
	switch idx := t.leafIndexer.(type) {
	case blockindexer.HashIndexer:
		return idx.Algorithm
	case blockindexer.CHKIndexer:
		return idx.Algorithm
	default:
		return blockindexer.SHA256
	}
}

func (t *TreeIndexer) keyAlgo() blockindexer.HashAlgorithm {
	switch idx := t.keyIndexer.(type) {
	case blockindexer.HashIndexer:
		return idx.Algorithm
	case blockindexer.CHKIndexer:
		return idx.Algorithm
	default:
		return blockindexer.SHA256
	}
}

// level holds the handles accumulated so far at one depth of the tree,
// waiting for either K siblings (a full key block) or end-of-stream
// (a partial, final key block).
type level struct {
	children     []blockindexer.IndexHandle
	leafChildren bool
}

// IndexBlocks chops src with ch and builds the hash tree, writing data
// blocks to DataStore and key blocks to MetaStore. A stream with
// exactly one block yields a TreeHandle whose Root is that block's own
// leaf handle and RootIsLeaf is true, with no key blocks written at
// all — the tree degenerates to nothing when it would otherwise hold
// only a single child.
func (t *TreeIndexer) IndexBlocks(ctx context.Context, ch chopper.Chopper) (TreeHandle, error) {
	var levels []level
	var totalSize int64

	// One-block lookahead: buffer the previous leaf handle so that,
	// when the chopper ends, we can tell whether exactly one block
	// existed (root-is-leaf) or more than one (push the buffered leaf
	// into the tree like any other and then flush).
	var pending *blockindexer.IndexHandle

	push := func(h blockindexer.IndexHandle, leafChildren bool) error {
		depth := 0
		cur := h
		curLeaf := leafChildren
		for {
			if depth == len(levels) {
				levels = append(levels, level{leafChildren: curLeaf})
			}
			lv := &levels[depth]
			lv.children = append(lv.children, cur)
			if len(lv.children) < t.K {
				return nil
			}
			// Level full: close it into a key block and promote the
			// resulting handle one level up.
			kh, err := t.closeLevel(ctx, lv)
			if err != nil {
				return err
			}
			lv.children = nil
			cur = kh
			curLeaf = false
			depth++
		}
	}

	for {
		block, err := ch.ReadBlock()
		if err != nil {
			if err == chopper.ErrStreamEnd {
				break
			}
			return TreeHandle{}, err
		}
		h, err := t.leafIndexer.Index(ctx, t.DataStore, block)
		if err != nil {
			return TreeHandle{}, err
		}
		totalSize += int64(len(block))

		if pending != nil {
			if err := push(*pending, true); err != nil {
				return TreeHandle{}, err
			}
		}
		pending = &h
	}

	if pending == nil {
		return TreeHandle{}, fmt.Errorf("treeindexer: empty source: %w", cherrors.ErrEmptySource)
	}
	if len(levels) == 0 {
		// Exactly one block was ever produced: root is that leaf.
		th := t.handle()
		th.Root = *pending
		th.RootIsLeaf = true
		th.TotalSize = totalSize
		return th, nil
	}
	if err := push(*pending, true); err != nil {
		return TreeHandle{}, err
	}

	// End-of-stream flush: close every level bottom-up, promoting each
	// closure into the next, but stop promoting once we reach the
	// highest level ever touched — closing that level produces the
	// true root with no further wrapping.
	topLevel := len(levels) - 1
	var root blockindexer.IndexHandle
	haveRoot := false
	for i := 0; i <= topLevel; i++ {
		lv := &levels[i]
		if len(lv.children) == 0 {
			continue
		}
		if len(lv.children) == 1 && i == topLevel {
			// A single leftover child at the top level needs no
			// wrapping key block: it IS the root.
			root = lv.children[0]
			haveRoot = true
			break
		}
		kh, err := t.closeLevel(ctx, lv)
		if err != nil {
			return TreeHandle{}, err
		}
		lv.children = nil
		if i == topLevel {
			root = kh
			haveRoot = true
			break
		}
		nextLeaf := false
		if i+1 == len(levels) {
			levels = append(levels, level{leafChildren: nextLeaf})
			topLevel = len(levels) - 1
		}
		levels[i+1].children = append(levels[i+1].children, kh)
	}
	if !haveRoot {
		return TreeHandle{}, fmt.Errorf("treeindexer: internal error: no root produced")
	}

	th := t.handle()
	th.Root = root
	th.TotalSize = totalSize
	log.Debug("indexed stream", "bytes", totalSize, "fanOut", t.K, "levels", len(levels))
	return th, nil
}

func (t *TreeIndexer) closeLevel(ctx context.Context, lv *level) (blockindexer.IndexHandle, error) {
	buf, err := encodeKeyBlock(lv.children, lv.leafChildren, t.keyClassForBlock(lv), t.keyAlgoForBlock(lv))
	if err != nil {
		return blockindexer.IndexHandle{}, err
	}
	return t.keyIndexer.Index(ctx, t.MetaStore, buf)
}

// keyClassForBlock/keyAlgoForBlock: a key block's CHILDREN are encoded
// using the class/algorithm of whichever indexer produced them (leaf
// indexer for a leaf-children block, key indexer otherwise), since
// that determines each child handle's width.
func (t *TreeIndexer) keyClassForBlock(lv *level) blockindexer.Class {
	if lv.leafChildren {
		return t.leafIndexer.Class()
	}
	return t.keyIndexer.Class()
}

func (t *TreeIndexer) keyAlgoForBlock(lv *level) blockindexer.HashAlgorithm {
	if lv.leafChildren {
		return t.leafAlgo()
	}
	return t.keyAlgo()
}

// FetchStream resolves th back into a lazy Stream, walking the tree
// depth-first and yielding data block bytes in order.
func (t *TreeIndexer) FetchStream(ctx context.Context, th TreeHandle) (stream.Stream, error) {
	if th.RootIsLeaf {
		data, err := t.leafFetcher.Fetch(ctx, t.DataStore, th.Root)
		if err != nil {
			return nil, err
		}
		return stream.NewMemoryStream("tree", data, len(data)), nil
	}

	ts := &treeStream{t: t, ctx: ctx, totalSize: th.TotalSize}
	ts.frames = append(ts.frames, frame{handles: []blockindexer.IndexHandle{th.Root}, leafChildren: false})
	return ts, nil
}

// frame is one level of the depth-first walk over the key-block tree:
// the handles at this level and a cursor into them.
type frame struct {
	handles      []blockindexer.IndexHandle
	leafChildren bool
	pos          int
}

// treeStream lazily walks a TreeIndexer's key-block tree and serves
// the referenced data blocks, in order, as a Stream.
type treeStream struct {
	t         *TreeIndexer
	ctx       context.Context
	frames    []frame
	totalSize int64
	buf       []byte
	done      bool
	closed    bool
}

// exhausted reports whether every remaining frame has already yielded
// all of its handles, without mutating the frame stack — it mirrors
// the popping cascade in advance() to look one step ahead.
func (s *treeStream) exhausted() bool {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].pos < len(s.frames[i].handles) {
			return false
		}
	}
	return true
}

func (s *treeStream) Name() string            { return "tree" }
func (s *treeStream) PreferredBlockSize() int  { return 64 * 1024 }

func (s *treeStream) Read(p []byte) (int, error) {
	if len(s.buf) == 0 {
		if s.done {
			return 0, stream.ErrStreamEnd
		}
		if err := s.advance(); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	if len(s.buf) == 0 && s.done {
		return n, stream.ErrStreamEnd
	}
	return n, nil
}

// advance descends to the next leaf in document order and fetches its
// block.
func (s *treeStream) advance() error {
	for {
		if len(s.frames) == 0 {
			s.done = true
			return nil
		}
		top := &s.frames[len(s.frames)-1]
		if top.pos >= len(top.handles) {
			s.frames = s.frames[:len(s.frames)-1]
			continue
		}
		h := top.handles[top.pos]
		top.pos++

		if top.leafChildren {
			data, err := s.t.leafFetcher.Fetch(s.ctx, s.t.DataStore, h)
			if err != nil {
				return err
			}
			s.buf = data
			if s.exhausted() {
				s.done = true
			}
			return nil
		}

		buf, err := s.t.keyFetcher.Fetch(s.ctx, s.t.MetaStore, h)
		if err != nil {
			return err
		}
		dec, err := decodeKeyBlock(buf,
			s.t.leafIndexer.Class(), s.t.leafAlgo(),
			s.t.keyIndexer.Class(), s.t.keyAlgo())
		if err != nil {
			return err
		}
		s.frames = append(s.frames, frame{handles: dec.children, leafChildren: dec.leafChildren})
	}
}

func (s *treeStream) Close() error {
	s.closed = true
	return nil
}
