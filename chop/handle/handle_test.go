package handle_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/chop/chop/blockindexer"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
	"github.com/ledgerwatch/chop/chop/handle"
	"github.com/ledgerwatch/chop/chop/treeindexer"
)

func TestIndexHandleRoundTripHash(t *testing.T) {
	h := blockindexer.IndexHandle{
		Class:     blockindexer.ClassHash,
		Key:       []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32},
		BlockSize: 4096,
	}
	s, err := handle.SerializeIndexHandle(h, blockindexer.SHA256)
	require.NoError(t, err)

	out, algo, err := handle.DeserializeIndexHandle(s)
	require.NoError(t, err)
	require.Equal(t, blockindexer.SHA256, algo)
	require.Equal(t, h.Class, out.Class)
	require.Equal(t, h.Key, out.Key)
	require.Equal(t, h.BlockSize, out.BlockSize)
	require.Empty(t, out.CipherKey)
}

func TestIndexHandleRoundTripCHKWithCipherKey(t *testing.T) {
	key := make([]byte, 32)
	cipherKey := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
		cipherKey[i] = byte(255 - i)
	}
	h := blockindexer.IndexHandle{
		Class:     blockindexer.ClassCHK,
		Key:       key,
		BlockSize: 777,
		CipherKey: cipherKey,
	}
	s, err := handle.SerializeIndexHandle(h, blockindexer.BLAKE2b256)
	require.NoError(t, err)

	out, algo, err := handle.DeserializeIndexHandle(s)
	require.NoError(t, err)
	require.Equal(t, blockindexer.BLAKE2b256, algo)
	require.Equal(t, h.Key, out.Key)
	require.Equal(t, h.CipherKey, out.CipherKey)
	require.Equal(t, h.BlockSize, out.BlockSize)
}

func TestDeserializeIndexHandleRejectsTruncatedInput(t *testing.T) {
	_, _, err := handle.DeserializeIndexHandle("H1:aabb")
	require.ErrorIs(t, err, cherrors.ErrDeserializeError)
}

func TestDeserializeIndexHandleRejectsWrongKeyLength(t *testing.T) {
	_, _, err := handle.DeserializeIndexHandle("H1:aabb:10")
	require.ErrorIs(t, err, cherrors.ErrDeserializeError)
}

func TestDeserializeIndexHandleRejectsMissingCipherKey(t *testing.T) {
	key := make([]byte, 32)
	// A CHK handle with no CipherKey set serializes without a fourth
	// field; CHK requires one, so deserializing it back must fail.
	h := blockindexer.IndexHandle{Class: blockindexer.ClassCHK, Key: key, BlockSize: 1}
	s, err := handle.SerializeIndexHandle(h, blockindexer.SHA256)
	require.NoError(t, err)

	_, _, err = handle.DeserializeIndexHandle(s)
	require.ErrorIs(t, err, cherrors.ErrDeserializeError)
}

func TestDeserializeIndexHandleRejectsUnknownTag(t *testing.T) {
	_, _, err := handle.DeserializeIndexHandle("Z9:aabb:1")
	require.ErrorIs(t, err, cherrors.ErrDeserializeError)
}

func TestTreeHandleRoundTripLeafRoot(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	th := treeindexer.TreeHandle{
		Root:          blockindexer.IndexHandle{Class: blockindexer.ClassHash, Key: key, BlockSize: 123},
		RootIsLeaf:    true,
		TotalSize:     123,
		FanOut:        4,
		LeafClass:     blockindexer.ClassHash,
		LeafAlgorithm: blockindexer.SHA256,
		KeyClass:      blockindexer.ClassHash,
		KeyAlgorithm:  blockindexer.SHA256,
	}
	s, err := handle.SerializeTreeHandle(th)
	require.NoError(t, err)

	out, err := handle.DeserializeTreeHandle(s)
	require.NoError(t, err)
	require.Equal(t, th.Root.Key, out.Root.Key)
	require.True(t, out.RootIsLeaf)
	require.Equal(t, th.TotalSize, out.TotalSize)
	require.Equal(t, th.FanOut, out.FanOut)
	require.Equal(t, th.LeafClass, out.LeafClass)
	require.Equal(t, th.LeafAlgorithm, out.LeafAlgorithm)
	require.Equal(t, th.KeyClass, out.KeyClass)
	require.Equal(t, th.KeyAlgorithm, out.KeyAlgorithm)
}

func TestTreeHandleRoundTripInnerRootWithCipherKey(t *testing.T) {
	key := make([]byte, 20) // SHA-1 digest size
	cipherKey := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	for i := range cipherKey {
		cipherKey[i] = byte(64 + i)
	}
	th := treeindexer.TreeHandle{
		Root:          blockindexer.IndexHandle{Class: blockindexer.ClassCHK, Key: key, BlockSize: 999, CipherKey: cipherKey},
		RootIsLeaf:    false,
		TotalSize:     99999,
		FanOut:        8,
		LeafClass:     blockindexer.ClassCHK,
		LeafAlgorithm: blockindexer.SHA1,
		KeyClass:      blockindexer.ClassCHK,
		KeyAlgorithm:  blockindexer.SHA1,
	}
	s, err := handle.SerializeTreeHandle(th)
	require.NoError(t, err)

	out, err := handle.DeserializeTreeHandle(s)
	require.NoError(t, err)
	require.Equal(t, th.Root.CipherKey, out.Root.CipherKey)
	require.False(t, out.RootIsLeaf)
	require.Equal(t, th.TotalSize, out.TotalSize)
}

func TestDeserializeTreeHandleRejectsBadMagic(t *testing.T) {
	_, err := handle.DeserializeTreeHandle("nope:4:H1:H1:L:H1:aabb:1:1")
	require.ErrorIs(t, err, cherrors.ErrDeserializeError)
}

func TestDeserializeTreeHandleRejectsBadFanOut(t *testing.T) {
	_, err := handle.DeserializeTreeHandle("chop1:0:H1:H1:L:H1:aabb:1:1")
	require.ErrorIs(t, err, cherrors.ErrDeserializeError)
}
