package filter

import "github.com/golang/snappy"

// Snappy is a fast, low-ratio block compressor.
type Snappy struct{}

func (Snappy) Name() string { return "snappy" }

func (Snappy) Forward(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (Snappy) Backward(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}
