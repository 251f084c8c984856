package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerwatch/chop/chop/blockstore"
	"github.com/ledgerwatch/chop/chop/blockstore/memstore"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
)

func TestMemStoreWriteReadDelete(t *testing.T) {
	s := memstore.New("m", 1<<20)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, blockstore.Key("k"), []byte("v")))
	data, err := s.Read(ctx, blockstore.Key("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), data)

	require.NoError(t, s.Delete(ctx, blockstore.Key("k")))
	_, err = s.Read(ctx, blockstore.Key("k"))
	require.ErrorIs(t, err, cherrors.ErrBlockUnavailable)
}

func TestMemStoreDeleteAbsentKey(t *testing.T) {
	s := memstore.New("m", 1<<20)
	defer s.Close()
	err := s.Delete(context.Background(), blockstore.Key("nope"))
	require.ErrorIs(t, err, cherrors.ErrBlockUnavailable)
}

func TestMemStoreExists(t *testing.T) {
	s := memstore.New("m", 1<<20)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, blockstore.Key("present"), []byte("v")))

	got, err := s.Exists(ctx, []blockstore.Key{blockstore.Key("present"), blockstore.Key("absent")})
	require.NoError(t, err)
	require.Equal(t, []bool{true, false}, got)
}

func TestMemStoreFirstBlockEmpty(t *testing.T) {
	s := memstore.New("m", 1<<20)
	defer s.Close()
	_, err := s.FirstBlock(context.Background())
	require.ErrorIs(t, err, cherrors.ErrStoreEnd)
}

func TestMemStoreFirstBlockIteratesAllKeysSorted(t *testing.T) {
	s := memstore.New("m", 1<<20)
	defer s.Close()
	ctx := context.Background()
	for _, k := range []string{"c", "a", "b"} {
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
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestMemStoreWriteIsIdempotentOverwrite(t *testing.T) {
	s := memstore.New("m", 1<<20)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, blockstore.Key("k"), []byte("first")))
	require.NoError(t, s.Write(ctx, blockstore.Key("k"), []byte("second")))

	data, err := s.Read(ctx, blockstore.Key("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("second"), data)
}

func TestMemStoreSyncAndName(t *testing.T) {
	s := memstore.New("named", 1<<20)
	defer s.Close()
	require.Equal(t, "named", s.Name())
	require.NoError(t, s.Sync(context.Background()))
}
