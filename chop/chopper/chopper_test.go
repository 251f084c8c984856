package chopper_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/chop/chop/chopper"
	"github.com/ledgerwatch/chop/chop/stream"
)

func readAllBlocks(t *testing.T, ch chopper.Chopper) [][]byte {
	t.Helper()
	var blocks [][]byte
	for {
		b, err := ch.ReadBlock()
		if err == chopper.ErrStreamEnd {
			break
		}
		require.NoError(t, err)
		cp := append([]byte(nil), b...)
		blocks = append(blocks, cp)
	}
	return blocks
}

func TestFixedSizeChopperExactMultiple(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 40)
	src := stream.NewMemoryStream("t", data, 4096)
	ch := chopper.NewFixedSizeChopper(src, 10, false)
	defer ch.Close()

	blocks := readAllBlocks(t, ch)
	require.Len(t, blocks, 4)
	for _, b := range blocks {
		require.Len(t, b, 10)
	}
}

func TestFixedSizeChopperShortFinalBlockUnpadded(t *testing.T) {
	data := bytes.Repeat([]byte("b"), 25)
	src := stream.NewMemoryStream("t", data, 4096)
	ch := chopper.NewFixedSizeChopper(src, 10, false)
	defer ch.Close()

	blocks := readAllBlocks(t, ch)
	require.Len(t, blocks, 3)
	require.Len(t, blocks[2], 5)
}

func TestFixedSizeChopperPadsFinalBlock(t *testing.T) {
	data := bytes.Repeat([]byte("c"), 25)
	src := stream.NewMemoryStream("t", data, 4096)
	ch := chopper.NewFixedSizeChopper(src, 10, true)
	defer ch.Close()

	blocks := readAllBlocks(t, ch)
	require.Len(t, blocks, 3)
	require.Len(t, blocks[2], 10)
	require.Equal(t, byte('0'), blocks[2][9])
}

func TestFixedSizeChopperEmptySource(t *testing.T) {
	src := stream.NewMemoryStream("t", nil, 4096)
	ch := chopper.NewFixedSizeChopper(src, 10, false)
	defer ch.Close()

	_, err := ch.ReadBlock()
	require.ErrorIs(t, err, chopper.ErrStreamEnd)
}

func TestAnchorChopperReassemblesExactly(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 2000)
	src := stream.NewMemoryStream("t", data, 4096)
	ch := chopper.NewAnchorChopper(src, chopper.AnchorConfig{Min: 64, Target: 256, Max: 1024, WindowSize: 16})
	defer ch.Close()

	blocks := readAllBlocks(t, ch)
	var reassembled []byte
	for _, b := range blocks {
		require.LessOrEqual(t, len(b), 1024)
		reassembled = append(reassembled, b...)
	}
	require.Equal(t, data, reassembled)
	require.Greater(t, len(blocks), 1)
}

func TestAnchorChopperDeterministicOnIdenticalInput(t *testing.T) {
	data := bytes.Repeat([]byte("xyzzy"), 5000)
	cfg := chopper.AnchorConfig{Min: 64, Target: 256, Max: 1024, WindowSize: 16}

	sizes := func() []int {
		src := stream.NewMemoryStream("t", data, 4096)
		ch := chopper.NewAnchorChopper(src, cfg)
		defer ch.Close()
		var out []int
		for _, b := range readAllBlocks(t, ch) {
			out = append(out, len(b))
		}
		return out
	}

	require.Equal(t, sizes(), sizes())
}
