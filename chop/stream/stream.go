// Package stream defines the lazy finite byte source abstraction that
// sits at the bottom of the archive pipeline.
package stream

import (
	cherrors "github.com/ledgerwatch/chop/chop/errors"
)

// Stream is a lazy, finite byte source. Read returns 0 <= m <= len(buf)
// bytes read and either nil or errors.ErrStreamEnd. On StreamEnd, m may
// still be non-zero for the final partial read; subsequent reads return
// (0, ErrStreamEnd). PreferredBlockSize is advisory only. Close is
// idempotent.
type Stream interface {
	Name() string
	PreferredBlockSize() int
	Read(buf []byte) (n int, err error)
	Close() error
}

// ErrStreamEnd re-exports the sentinel for callers that only import
// this package.
var ErrStreamEnd = cherrors.ErrStreamEnd
