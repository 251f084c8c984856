// Package handle provides a stable ASCII representation for the
// handles produced by chop/blockindexer and chop/treeindexer, suitable
// for printing, storing in a manifest file, or pasting into a restore
// command. Deserialization is two-stage: stage one reads a short class
// tag that determines exactly how many bytes the rest of the fields
// occupy (digest size, optional cipher-key size), and stage two
// decodes those fields from the consumed text — so a corrupt or
// truncated handle is rejected before any field is half-parsed.
package handle

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledgerwatch/chop/chop/blockindexer"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
	"github.com/ledgerwatch/chop/chop/treeindexer"
)

// classTag packs (Class, HashAlgorithm) into a two-character tag: 'H'
// or 'C' for the class, followed by a digit for the algorithm.
func classTag(class blockindexer.Class, algo blockindexer.HashAlgorithm) (string, error) {
	var c byte
	switch class {
	case blockindexer.ClassHash:
		c = 'H'
	case blockindexer.ClassCHK:
		c = 'C'
	default:
		return "", fmt.Errorf("handle: unknown class %d: %w", class, cherrors.ErrInvalidArg)
	}
	var a byte
	switch algo {
	case blockindexer.SHA256:
		a = '1'
	case blockindexer.SHA1:
		a = '2'
	case blockindexer.BLAKE2b256:
		a = '3'
	default:
		return "", fmt.Errorf("handle: unknown hash algorithm %d: %w", algo, cherrors.ErrInvalidArg)
	}
	return string([]byte{c, a}), nil
}

func parseClassTag(tag string) (blockindexer.Class, blockindexer.HashAlgorithm, error) {
	if len(tag) != 2 {
		return 0, 0, fmt.Errorf("handle: malformed class tag %q: %w", tag, cherrors.ErrDeserializeError)
	}
	var class blockindexer.Class
	switch tag[0] {
	case 'H':
		class = blockindexer.ClassHash
	case 'C':
		class = blockindexer.ClassCHK
	default:
		return 0, 0, fmt.Errorf("handle: unknown class tag %q: %w", tag, cherrors.ErrDeserializeError)
	}
	var algo blockindexer.HashAlgorithm
	switch tag[1] {
	case '1':
		algo = blockindexer.SHA256
	case '2':
		algo = blockindexer.SHA1
	case '3':
		algo = blockindexer.BLAKE2b256
	default:
		return 0, 0, fmt.Errorf("handle: unknown algorithm tag %q: %w", tag, cherrors.ErrDeserializeError)
	}
	return class, algo, nil
}

// SerializeIndexHandle renders h as "<tag>:<hexkey>:<size>[:<hexcipherkey>]".
func SerializeIndexHandle(h blockindexer.IndexHandle, algo blockindexer.HashAlgorithm) (string, error) {
	tag, err := classTag(h.Class, algo)
	if err != nil {
		return "", err
	}
	parts := []string{tag, hex.EncodeToString(h.Key), strconv.FormatInt(h.BlockSize, 10)}
	if len(h.CipherKey) > 0 {
		parts = append(parts, hex.EncodeToString(h.CipherKey))
	}
	return strings.Join(parts, ":"), nil
}

// DeserializeIndexHandle reverses SerializeIndexHandle.
func DeserializeIndexHandle(s string) (blockindexer.IndexHandle, blockindexer.HashAlgorithm, error) {
	fields := strings.Split(s, ":")
	if len(fields) < 3 {
		return blockindexer.IndexHandle{}, 0, fmt.Errorf("handle: too few fields in %q: %w", s, cherrors.ErrDeserializeError)
	}
	class, algo, err := parseClassTag(fields[0])
	if err != nil {
		return blockindexer.IndexHandle{}, 0, err
	}
	digestSize, err := blockindexer.DigestSize(algo)
	if err != nil {
		return blockindexer.IndexHandle{}, 0, err
	}
	key, err := hex.DecodeString(fields[1])
	if err != nil {
		return blockindexer.IndexHandle{}, 0, fmt.Errorf("handle: bad key hex in %q: %w", s, cherrors.ErrDeserializeError)
	}
	if len(key) != digestSize {
		return blockindexer.IndexHandle{}, 0, fmt.Errorf("handle: key length %d does not match %v digest size %d: %w", len(key), algo, digestSize, cherrors.ErrDeserializeError)
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return blockindexer.IndexHandle{}, 0, fmt.Errorf("handle: bad size in %q: %w", s, cherrors.ErrDeserializeError)
	}
	h := blockindexer.IndexHandle{Class: class, Key: key, BlockSize: size}

	cipherSize := blockindexer.CipherKeySize(class)
	if cipherSize > 0 {
		if len(fields) < 4 {
			return blockindexer.IndexHandle{}, 0, fmt.Errorf("handle: missing cipher key in %q: %w", s, cherrors.ErrDeserializeError)
		}
		ck, err := hex.DecodeString(fields[3])
		if err != nil || len(ck) != cipherSize {
			return blockindexer.IndexHandle{}, 0, fmt.Errorf("handle: bad cipher key in %q: %w", s, cherrors.ErrDeserializeError)
		}
		h.CipherKey = ck
	}
	return h, algo, nil
}

// treeHandleMagic tags the top-level format so a truncated or
// non-handle string is rejected immediately, before any numeric field
// is parsed.
const treeHandleMagic = "chop1"

// SerializeTreeHandle renders th as a single colon-delimited ASCII
// line:
//
//	chop1:<fanout>:<leafTag>:<keyTag>:<rootKind>:<rootTag>:<hexRootKey>:<rootSize>[:<hexRootCipherKey>]:<totalSize>
//
// rootKind is "L" when th.RootIsLeaf (the root addresses a data block
// directly) or "I" when it addresses a key block. The root part
// (<rootTag> through the optional cipher key) is the root's own
// SerializeIndexHandle form, so its class/algorithm tag is written out
// again, taken from the leaf algorithm when rootKind is "L" and from
// the key algorithm otherwise.
func SerializeTreeHandle(th treeindexer.TreeHandle) (string, error) {
	leafTag, err := classTag(th.LeafClass, th.LeafAlgorithm)
	if err != nil {
		return "", err
	}
	keyTag, err := classTag(th.KeyClass, th.KeyAlgorithm)
	if err != nil {
		return "", err
	}
	rootAlgo := th.KeyAlgorithm
	if th.RootIsLeaf {
		rootAlgo = th.LeafAlgorithm
	}
	rootStr, err := SerializeIndexHandle(th.Root, rootAlgo)
	if err != nil {
		return "", err
	}
	kind := "I"
	if th.RootIsLeaf {
		kind = "L"
	}
	return strings.Join([]string{
		treeHandleMagic,
		strconv.Itoa(th.FanOut),
		leafTag,
		keyTag,
		kind,
		rootStr,
		strconv.FormatInt(th.TotalSize, 10),
	}, ":"), nil
}

// DeserializeTreeHandle reverses SerializeTreeHandle.
func DeserializeTreeHandle(s string) (treeindexer.TreeHandle, error) {
	fields := strings.SplitN(s, ":", 6)
	if len(fields) != 6 || fields[0] != treeHandleMagic {
		return treeindexer.TreeHandle{}, fmt.Errorf("handle: not a tree handle: %q: %w", s, cherrors.ErrDeserializeError)
	}
	fanOut, err := strconv.Atoi(fields[1])
	if err != nil || fanOut < 1 {
		return treeindexer.TreeHandle{}, fmt.Errorf("handle: bad fan-out in %q: %w", s, cherrors.ErrDeserializeError)
	}
	leafClass, leafAlgo, err := parseClassTag(fields[2])
	if err != nil {
		return treeindexer.TreeHandle{}, err
	}
	keyClass, keyAlgo, err := parseClassTag(fields[3])
	if err != nil {
		return treeindexer.TreeHandle{}, err
	}
	kind := fields[4]
	if kind != "L" && kind != "I" {
		return treeindexer.TreeHandle{}, fmt.Errorf("handle: bad root kind %q: %w", kind, cherrors.ErrDeserializeError)
	}

	// The remainder is "<rootStr>:<totalSize>"; rootStr itself may
	// contain a cipher-key field, so split from the right for
	// totalSize, then parse the rest as an IndexHandle.
	rest := fields[5]
	idx := strings.LastIndex(rest, ":")
	if idx < 0 {
		return treeindexer.TreeHandle{}, fmt.Errorf("handle: missing total size in %q: %w", s, cherrors.ErrDeserializeError)
	}
	totalSize, err := strconv.ParseInt(rest[idx+1:], 10, 64)
	if err != nil {
		return treeindexer.TreeHandle{}, fmt.Errorf("handle: bad total size in %q: %w", s, cherrors.ErrDeserializeError)
	}
	root, _, err := DeserializeIndexHandle(rest[:idx])
	if err != nil {
		return treeindexer.TreeHandle{}, err
	}

	return treeindexer.TreeHandle{
		Root:          root,
		RootIsLeaf:    kind == "L",
		TotalSize:     totalSize,
		FanOut:        fanOut,
		LeafClass:     leafClass,
		LeafAlgorithm: leafAlgo,
		KeyClass:      keyClass,
		KeyAlgorithm:  keyAlgo,
	}, nil
}
