package blockindexer

import "fmt"

// DigestSize returns the byte length of the digest produced by algo.
// The tree indexer needs this to compute the fixed width of a
// serialized handle for a given (class, algorithm) pair.
func DigestSize(algo HashAlgorithm) (int, error) {
	switch algo {
	case SHA256, BLAKE2b256:
		return 32, nil
	case SHA1:
		return 20, nil
	default:
		return 0, fmt.Errorf("blockindexer: unknown hash algorithm %d", algo)
	}
}

// CipherKeySize returns the number of cipher-key bytes a handle of
// class carries: 0 for ClassHash, cipher.KeySize for ClassCHK.
func CipherKeySize(class Class) int {
	switch class {
	case ClassCHK:
		return 32
	default:
		return 0
	}
}

// New builds the (BlockIndexer, BlockFetcher) pair for class+algo.
func New(class Class, algo HashAlgorithm) (BlockIndexer, BlockFetcher, error) {
	switch class {
	case ClassHash:
		return HashIndexer{Algorithm: algo}, HashFetcher{Algorithm: algo}, nil
	case ClassCHK:
		return CHKIndexer{Algorithm: algo}, CHKFetcher{Algorithm: algo}, nil
	default:
		return nil, nil, fmt.Errorf("blockindexer: unknown class %d", class)
	}
}
