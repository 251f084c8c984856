// Package chopper partitions a Stream into blocks.
package chopper

import (
	"github.com/ledgerwatch/chop/chop/stream"
)

// Chopper reads successive blocks from a backing Stream. ReadBlock
// returns the next block's bytes in a newly allocated slice and
// reports StreamEnd once the backing stream is exhausted and the
// current block would be empty.
type Chopper interface {
	TypicalBlockSize() int
	ReadBlock() (block []byte, err error)
	Close() error
}

// ErrStreamEnd is re-exported for callers that only import this
// package.
var ErrStreamEnd = stream.ErrStreamEnd
