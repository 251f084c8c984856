package lmdbstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/chop/chop/blockstore"
	"github.com/ledgerwatch/chop/chop/blockstore/lmdbstore"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
)

func openTestStore(t *testing.T) *lmdbstore.LMDBStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blocks.lmdb")
	s, err := lmdbstore.Open(path, 10<<20, "blocks")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLMDBStoreWriteReadDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, blockstore.Key("k"), []byte("value")))
	data, err := s.Read(ctx, blockstore.Key("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), data)

	require.NoError(t, s.Delete(ctx, blockstore.Key("k")))
	_, err = s.Read(ctx, blockstore.Key("k"))
	require.ErrorIs(t, err, cherrors.ErrBlockUnavailable)
}

func TestLMDBStoreExists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, blockstore.Key("present"), []byte("v")))

	got, err := s.Exists(ctx, []blockstore.Key{blockstore.Key("present"), blockstore.Key("absent")})
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, got)
}

func TestLMDBStoreFirstBlockEmpty(t *testing.T) {
	s := openTestStore(t)
	_, err := s.FirstBlock(context.Background())
	require.ErrorIs(t, err, cherrors.ErrStoreEnd)
}

func TestLMDBStoreFirstBlockIteratesAllKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Write(ctx, blockstore.Key(k), []byte(k)))
	}

	it, err := s.FirstBlock(ctx)
	require.NoError(t, err)
	var got []string
	for !it.IsNil() {
		got = append(got, it.Key().String())
		if err := it.Next(ctx); err != nil {
			break
		}
	}
	require.ElementsMatch(t, []string{"a", "b", "c"}, got)
}

func TestLMDBStoreSync(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Sync(context.Background()))
}
