package chopper

import (
	"github.com/ledgerwatch/chop/chop/stream"
)

// FixedSizeChopper yields blocks of exactly blockSize bytes, except the
// last, which is shorter unless padBlocks is set. Padding uses the
// ASCII digit '0' (0x30) rather than a NUL byte, for bit-exact
// interoperability with archives produced by older chopper
// implementations.
type FixedSizeChopper struct {
	src       stream.Stream
	blockSize int
	padBlocks bool
}

const padByte = '0'

// NewFixedSizeChopper chops src into blockSize-byte blocks.
func NewFixedSizeChopper(src stream.Stream, blockSize int, padBlocks bool) *FixedSizeChopper {
	return &FixedSizeChopper{src: src, blockSize: blockSize, padBlocks: padBlocks}
}

func (c *FixedSizeChopper) TypicalBlockSize() int { return c.blockSize }

func (c *FixedSizeChopper) ReadBlock() ([]byte, error) {
	block := make([]byte, c.blockSize)
	size := 0
	var streamErr error
	for size < c.blockSize {
		n, err := c.src.Read(block[size:])
		size += n
		if err != nil {
			streamErr = err
			break
		}
	}

	if size == 0 {
		if streamErr == stream.ErrStreamEnd || streamErr == nil {
			return nil, ErrStreamEnd
		}
		return nil, streamErr
	}

	if streamErr != nil && streamErr != stream.ErrStreamEnd {
		return nil, streamErr
	}

	if c.padBlocks && size < c.blockSize {
		for i := size; i < c.blockSize; i++ {
			block[i] = padByte
		}
		size = c.blockSize
	}

	// Signaling end-of-stream alongside the final block's bytes is not
	// part of this contract: the next call observes an empty read from
	// src and returns ErrStreamEnd on its own.
	return block[:size], nil
}

func (c *FixedSizeChopper) Close() error { return c.src.Close() }
