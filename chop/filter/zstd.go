package filter

import "github.com/valyala/gozstd"

// Zstd is a higher-ratio block/stream compressor, preferred for the
// stream-level (whole-archive) compression flag in the CLI, where
// ratio matters more than the last bit of speed.
type Zstd struct {
	// Level is the zstd compression level; 0 selects gozstd's default.
	Level int
}

func (Zstd) Name() string { return "zstd" }

func (z Zstd) Forward(data []byte) ([]byte, error) {
	level := z.Level
	if level == 0 {
		level = 3
	}
	return gozstd.CompressLevel(nil, data, level), nil
}

func (Zstd) Backward(data []byte) ([]byte, error) {
	return gozstd.Decompress(nil, data)
}
