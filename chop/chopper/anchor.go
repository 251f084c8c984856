package chopper

import (
	"github.com/ledgerwatch/chop/chop/stream"
)

// AnchorConfig parameterizes the content-defined chopper: a rolling
// hash is evaluated over a sliding window and a cut is taken once the
// hash satisfies a modular predicate and at least Min bytes have
// accumulated since the last cut; Max forces a cut regardless. Zero
// (or negative) fields default to Min 2048, Target 16384, Max 65536
// and WindowSize 48.
type AnchorConfig struct {
	Min, Target, Max int
	WindowSize       int
}

func (c AnchorConfig) normalized() AnchorConfig {
	if c.Min <= 0 {
		c.Min = 2048
	}
	if c.Target <= 0 {
		c.Target = 16384
	}
	if c.Max <= 0 {
		c.Max = 65536
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 48
	}
	return c
}

// AnchorChopper performs content-defined chunking with a rolling hash,
// yielding variable-sized blocks.
type AnchorChopper struct {
	src  stream.Stream
	cfg  AnchorConfig
	hash *rabinKarp

	buf  []byte
	next int // next unused offset in buf
	end  int // end of previous block
	eof  bool
}

// NewAnchorChopper builds an AnchorChopper over src with cfg (zero
// values fall back to the defaults documented on AnchorConfig).
func NewAnchorChopper(src stream.Stream, cfg AnchorConfig) *AnchorChopper {
	cfg = cfg.normalized()
	return &AnchorChopper{
		src:  src,
		cfg:  cfg,
		hash: newRabinKarp(1031, 2147483659, cfg.WindowSize),
		buf:  make([]byte, cfg.Max),
	}
}

func (c *AnchorChopper) TypicalBlockSize() int { return c.cfg.Target }

func (c *AnchorChopper) ReadBlock() ([]byte, error) {
	if c.end > 0 {
		copy(c.buf, c.buf[c.end:c.next])
		c.next -= c.end
		c.end = 0
	}

	i := c.end
	for {
		if c.next < len(c.buf) && !c.eof {
			n, err := c.src.Read(c.buf[c.next:])
			c.next += n
			if err == stream.ErrStreamEnd {
				c.eof = true
			} else if err != nil {
				return nil, err
			}
		}

		cut := false
		for ; i < c.next; i++ {
			u := c.hash.update(c.buf[i])
			if u%uint64(c.cfg.Target) == 1 && i-c.end >= c.cfg.Min {
				cut = true
				break
			}
		}

		if cut || i >= len(c.buf) || (i > c.end && c.eof && c.next == i) {
			block := c.buf[c.end:i]
			c.end = i
			out := make([]byte, len(block))
			copy(out, block)
			return out, nil
		}

		if c.eof {
			break
		}
	}

	if c.next > c.end {
		block := c.buf[c.end:c.next]
		c.end = c.next
		out := make([]byte, len(block))
		copy(out, block)
		return out, nil
	}
	return nil, ErrStreamEnd
}

func (c *AnchorChopper) Close() error { return c.src.Close() }

// rabinKarp is a minimal polynomial rolling hash over a fixed-size
// window.
type rabinKarp struct {
	base, mod uint64
	window    []byte
	pos       int
	full      bool
	pow       uint64
	val       uint64
}

func newRabinKarp(base, mod uint64, windowSize int) *rabinKarp {
	pow := uint64(1)
	for i := 0; i < windowSize-1; i++ {
		pow = (pow * base) % mod
	}
	return &rabinKarp{base: base, mod: mod, window: make([]byte, windowSize), pow: pow}
}

func (h *rabinKarp) update(b byte) uint64 {
	if h.full {
		out := uint64(h.window[h.pos])
		h.val = (h.val + h.mod - (out*h.pow)%h.mod) % h.mod
	}
	h.val = (h.val*h.base + uint64(b)) % h.mod
	h.window[h.pos] = b
	h.pos++
	if h.pos == len(h.window) {
		h.pos = 0
		h.full = true
	}
	return h.val
}
