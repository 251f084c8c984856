package stream

import (
	"io"

	"github.com/ledgerwatch/chop/chop/filter"
)

// FilteredStream pushes bytes read from an underlying Stream through a
// Filter and serves the transformed output. It buffers the filter's
// whole Forward output internally since filters here operate on whole blocks
// rather than arbitrary byte ranges (see chop/filter doc comment);
// StreamEnd is only reported once the underlying stream has ended and
// the filter's buffered output has been fully drained.
type FilteredStream struct {
	name   string
	src    Stream
	f      filter.Filter
	pref   int
	buf    []byte
	srcEnd bool
}

// NewFilteredStream reads all of src eagerly through f.Forward. This
// trades streaming latency for simplicity: callers needing true
// streaming compression should chop src first and filter per-block via
// the Filtered block-store proxy instead, which applies per stored
// block rather than per whole stream.
func NewFilteredStream(src Stream, f filter.Filter) (*FilteredStream, error) {
	raw, err := io.ReadAll(&readerAdapter{s: src})
	if err != nil {
		return nil, err
	}
	out, err := f.Forward(raw)
	if err != nil {
		return nil, err
	}
	return &FilteredStream{
		name: src.Name(),
		src:  src,
		f:    f,
		pref: src.PreferredBlockSize(),
		buf:  out,
	}, nil
}

func (s *FilteredStream) Name() string            { return s.name }
func (s *FilteredStream) PreferredBlockSize() int { return s.pref }

func (s *FilteredStream) Read(buf []byte) (int, error) {
	if len(s.buf) == 0 {
		return 0, ErrStreamEnd
	}
	n := copy(buf, s.buf)
	s.buf = s.buf[n:]
	if len(s.buf) == 0 {
		return n, ErrStreamEnd
	}
	return n, nil
}

func (s *FilteredStream) Close() error { return s.src.Close() }

// readerAdapter lets a chop Stream be drained with io.ReadAll.
type readerAdapter struct{ s Stream }

func (r *readerAdapter) Read(p []byte) (int, error) {
	n, err := r.s.Read(p)
	if err == ErrStreamEnd {
		if n > 0 {
			return n, nil
		}
		return 0, io.EOF
	}
	return n, err
}
