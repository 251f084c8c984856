package treeindexer

import (
	"encoding/binary"
	"fmt"

	"github.com/ledgerwatch/chop/chop/blockindexer"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
)

// handleWidth returns the fixed serialized width of an IndexHandle
// produced by (class, algo): key bytes + an 8-byte big-endian size +
// an optional cipher key.
func handleWidth(class blockindexer.Class, algo blockindexer.HashAlgorithm) (int, error) {
	keySize, err := blockindexer.DigestSize(algo)
	if err != nil {
		return 0, err
	}
	return keySize + 8 + blockindexer.CipherKeySize(class), nil
}

// encodeHandle serializes h to its fixed-width binary form for a given
// (class, algo); class and algo are carried out-of-band by the
// key-block's position in the tree (leaf level vs inner levels), not
// repeated per handle, which is what keeps the width fixed.
func encodeHandle(h blockindexer.IndexHandle, class blockindexer.Class, algo blockindexer.HashAlgorithm) ([]byte, error) {
	width, err := handleWidth(class, algo)
	if err != nil {
		return nil, err
	}
	keySize, _ := blockindexer.DigestSize(algo)
	if len(h.Key) != keySize {
		return nil, fmt.Errorf("treeindexer: handle key length %d does not match algorithm digest size %d", len(h.Key), keySize)
	}
	buf := make([]byte, width)
	copy(buf, h.Key)
	binary.BigEndian.PutUint64(buf[keySize:keySize+8], uint64(h.BlockSize))
	if cipherSize := blockindexer.CipherKeySize(class); cipherSize > 0 {
		copy(buf[keySize+8:], h.CipherKey)
	}
	return buf, nil
}

func decodeHandle(buf []byte, class blockindexer.Class, algo blockindexer.HashAlgorithm) (blockindexer.IndexHandle, int, error) {
	width, err := handleWidth(class, algo)
	if err != nil {
		return blockindexer.IndexHandle{}, 0, err
	}
	if len(buf) < width {
		return blockindexer.IndexHandle{}, 0, fmt.Errorf("treeindexer: truncated handle (need %d bytes, have %d): %w", width, len(buf), cherrors.ErrIntegrityError)
	}
	keySize, _ := blockindexer.DigestSize(algo)
	key := make([]byte, keySize)
	copy(key, buf[:keySize])
	size := int64(binary.BigEndian.Uint64(buf[keySize : keySize+8]))

	h := blockindexer.IndexHandle{Class: class, Key: key, BlockSize: size}
	if cipherSize := blockindexer.CipherKeySize(class); cipherSize > 0 {
		ck := make([]byte, cipherSize)
		copy(ck, buf[keySize+8:width])
		h.CipherKey = ck
	}
	return h, width, nil
}

// flagLeafChildren marks a key block whose children are leaf (data
// block) handles.
const flagLeafChildren = 0x1

// encodeKeyBlock packages count child handles (all of class/algo) into
// a flags+count+payload layout.
func encodeKeyBlock(children []blockindexer.IndexHandle, leafChildren bool, class blockindexer.Class, algo blockindexer.HashAlgorithm) ([]byte, error) {
	if len(children) == 0 || len(children) > 255 {
		return nil, fmt.Errorf("treeindexer: key-block child count %d out of range [1,255]: %w", len(children), cherrors.ErrInvalidArg)
	}
	var flags byte
	if leafChildren {
		flags = flagLeafChildren
	}
	buf := []byte{flags, byte(len(children))}
	for _, h := range children {
		enc, err := encodeHandle(h, class, algo)
		if err != nil {
			return nil, err
		}
		buf = append(buf, enc...)
	}
	return buf, nil
}

// decodedKeyBlock is the parsed form of a key block.
type decodedKeyBlock struct {
	leafChildren bool
	children     []blockindexer.IndexHandle
}

// decodeKeyBlock parses a key block. Its children are encoded using
// (leafClass, leafAlgo) when the decoded flags mark them as leaf (data
// block) handles, or (keyClass, keyAlgo) otherwise — the flag byte
// must be read before a width can be computed, so both pairs are
// accepted and the right one is chosen internally. Malformed flags, an
// out-of-range count, or truncation report errors.ErrIntegrityError.
func decodeKeyBlock(
	buf []byte,
	leafClass blockindexer.Class, leafAlgo blockindexer.HashAlgorithm,
	keyClass blockindexer.Class, keyAlgo blockindexer.HashAlgorithm,
) (decodedKeyBlock, error) {
	if len(buf) < 2 {
		return decodedKeyBlock{}, fmt.Errorf("treeindexer: key-block too short: %w", cherrors.ErrIntegrityError)
	}
	flags, count := buf[0], int(buf[1])
	if flags&^flagLeafChildren != 0 {
		return decodedKeyBlock{}, fmt.Errorf("treeindexer: key-block has unknown flag bits 0x%x: %w", flags, cherrors.ErrIntegrityError)
	}
	if count < 1 || count > 255 {
		return decodedKeyBlock{}, fmt.Errorf("treeindexer: key-block count %d out of range: %w", count, cherrors.ErrIntegrityError)
	}
	isLeaf := flags&flagLeafChildren != 0
	class, algo := keyClass, keyAlgo
	if isLeaf {
		class, algo = leafClass, leafAlgo
	}
	width, err := handleWidth(class, algo)
	if err != nil {
		return decodedKeyBlock{}, err
	}
	want := 2 + count*width
	if len(buf) != want {
		return decodedKeyBlock{}, fmt.Errorf("treeindexer: key-block size %d does not match expected %d for count %d: %w", len(buf), want, count, cherrors.ErrIntegrityError)
	}

	children := make([]blockindexer.IndexHandle, 0, count)
	pos := 2
	for i := 0; i < count; i++ {
		h, n, err := decodeHandle(buf[pos:], class, algo)
		if err != nil {
			return decodedKeyBlock{}, err
		}
		children = append(children, h)
		pos += n
	}
	return decodedKeyBlock{leafChildren: isLeaf, children: children}, nil
}
