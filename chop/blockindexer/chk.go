package blockindexer

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/chop/chop/blockstore"
	"github.com/ledgerwatch/chop/chop/cipher"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
)

// CHKIndexer implements convergent encryption: K1 = H(block);
// ciphertext = Seal(K1, block); K2 = H(ciphertext);
// store ciphertext under K2. Handle = (K2, block size, K1). Two
// identical plaintexts always produce the same ciphertext and the same
// store key, preserving cross-holder deduplication, while anyone
// without the handle sees only ciphertext keyed by its own hash.
type CHKIndexer struct {
	Algorithm HashAlgorithm
}

func (CHKIndexer) Class() Class { return ClassCHK }

func (i CHKIndexer) Index(ctx context.Context, store blockstore.BlockStore, block []byte) (IndexHandle, error) {
	h1, err := i.Algorithm.new()
	if err != nil {
		return IndexHandle{}, err
	}
	h1.Write(block)
	k1 := deriveCipherKey(h1.Sum(nil))

	ciphertext, err := cipher.Seal(k1, block)
	if err != nil {
		return IndexHandle{}, fmt.Errorf("blockindexer: seal block: %w", err)
	}

	h2, err := i.Algorithm.new()
	if err != nil {
		return IndexHandle{}, err
	}
	h2.Write(ciphertext)
	k2 := h2.Sum(nil)

	if err := store.Write(ctx, blockstore.Key(k2), ciphertext); err != nil {
		return IndexHandle{}, fmt.Errorf("blockindexer: write block: %w", err)
	}
	return IndexHandle{
		Class:     ClassCHK,
		Key:       BlockKey(k2),
		BlockSize: int64(len(block)),
		CipherKey: k1,
	}, nil
}

// CHKFetcher is the dual of CHKIndexer.
type CHKFetcher struct {
	Algorithm HashAlgorithm
}

func (CHKFetcher) Class() Class { return ClassCHK }

func (f CHKFetcher) Fetch(ctx context.Context, store blockstore.BlockStore, handle IndexHandle) ([]byte, error) {
	ciphertext, err := store.Read(ctx, blockstore.Key(handle.Key))
	if err != nil {
		return nil, err
	}

	h2, err := f.Algorithm.new()
	if err != nil {
		return nil, err
	}
	h2.Write(ciphertext)
	if !BlockKey(h2.Sum(nil)).Equal(handle.Key) {
		return nil, fmt.Errorf("blockindexer: ciphertext hash mismatch for key %x: %w", handle.Key, cherrors.ErrIntegrityError)
	}

	plaintext, err := cipher.Open(handle.CipherKey, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("blockindexer: decrypt block %x: %w", handle.Key, cherrors.ErrIntegrityError)
	}
	if int64(len(plaintext)) != handle.BlockSize {
		return nil, fmt.Errorf("blockindexer: decoded size mismatch for key %x: %w", handle.Key, cherrors.ErrIntegrityError)
	}
	return plaintext, nil
}

// deriveCipherKey adapts a variable-length digest to cipher.KeySize,
// since HashAlgorithm may produce 20 (SHA-1) or 32 (SHA-256/BLAKE2b)
// bytes but the cipher requires exactly 32.
func deriveCipherKey(digest []byte) []byte {
	if len(digest) == cipher.KeySize {
		return digest
	}
	key := make([]byte, cipher.KeySize)
	for i := range key {
		key[i] = digest[i%len(digest)]
	}
	return key
}
