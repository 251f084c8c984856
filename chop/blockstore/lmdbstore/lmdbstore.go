// Package lmdbstore implements a durable BlockStore on top of
// ledgerwatch/lmdb-go, for local on-disk archives.
package lmdbstore

import (
	"context"
	"fmt"

	"github.com/ledgerwatch/lmdb-go/lmdb"

	"github.com/ledgerwatch/chop/chop/blockstore"
	cherrors "github.com/ledgerwatch/chop/chop/errors"
)

// LMDBStore is a single-bucket BlockStore over an LMDB environment.
type LMDBStore struct {
	name string
	env  *lmdb.Env
	dbi  lmdb.DBI
}

// Open opens (creating if needed) an LMDB environment at path, sized
// mapSize bytes, with a single database named bucket holding every
// block this store serves.
func Open(path string, mapSize int64, bucket string) (*LMDBStore, error) {
	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("lmdbstore: new env: %w", err)
	}
	if err := env.SetMapSize(mapSize); err != nil {
		return nil, fmt.Errorf("lmdbstore: set map size: %w", err)
	}
	if err := env.SetMaxDBs(1); err != nil {
		return nil, fmt.Errorf("lmdbstore: set max dbs: %w", err)
	}
	if err := env.Open(path, lmdb.NoSubdir, 0644); err != nil {
		return nil, fmt.Errorf("lmdbstore: open %s: %w", path, err)
	}

	var dbi lmdb.DBI
	err = env.Update(func(txn *lmdb.Txn) error {
		var err error
		dbi, err = txn.CreateDBI(bucket)
		return err
	})
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("lmdbstore: create bucket %s: %w", bucket, err)
	}

	return &LMDBStore{name: "lmdb:" + path, env: env, dbi: dbi}, nil
}

func (s *LMDBStore) Name() string { return s.name }

func (s *LMDBStore) Exists(ctx context.Context, keys []blockstore.Key) ([]bool, error) {
	out := make([]bool, len(keys))
	err := s.env.View(func(txn *lmdb.Txn) error {
		txn.RawRead = true
		for i, k := range keys {
			_, err := txn.Get(s.dbi, k)
			if err == nil {
				out[i] = true
			} else if !lmdb.IsNotFound(err) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lmdbstore: exists: %w", err)
	}
	return out, nil
}

func (s *LMDBStore) Read(ctx context.Context, key blockstore.Key) ([]byte, error) {
	var out []byte
	err := s.env.View(func(txn *lmdb.Txn) error {
		v, err := txn.Get(s.dbi, key)
		if err != nil {
			return err
		}
		out = append(out, v...)
		return nil
	})
	if lmdb.IsNotFound(err) {
		return nil, cherrors.ErrBlockUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("lmdbstore: read %x: %w", key, err)
	}
	return out, nil
}

func (s *LMDBStore) Write(ctx context.Context, key blockstore.Key, data []byte) error {
	err := s.env.Update(func(txn *lmdb.Txn) error {
		return txn.Put(s.dbi, key, data, 0)
	})
	if err != nil {
		return fmt.Errorf("lmdbstore: write %x: %w", key, err)
	}
	return nil
}

func (s *LMDBStore) Delete(ctx context.Context, key blockstore.Key) error {
	err := s.env.Update(func(txn *lmdb.Txn) error {
		return txn.Del(s.dbi, key, nil)
	})
	if lmdb.IsNotFound(err) {
		return cherrors.ErrBlockUnavailable
	}
	if err != nil {
		return fmt.Errorf("lmdbstore: delete %x: %w", key, err)
	}
	return nil
}

func (s *LMDBStore) FirstBlock(ctx context.Context) (blockstore.Iterator, error) {
	txn, err := s.env.BeginTxn(nil, lmdb.Readonly)
	if err != nil {
		return nil, fmt.Errorf("lmdbstore: begin txn: %w", err)
	}
	cur, err := txn.OpenCursor(s.dbi)
	if err != nil {
		txn.Abort()
		return nil, fmt.Errorf("lmdbstore: open cursor: %w", err)
	}
	k, _, err := cur.Get(nil, nil, lmdb.First)
	if lmdb.IsNotFound(err) {
		cur.Close()
		txn.Abort()
		return nil, cherrors.ErrStoreEnd
	}
	if err != nil {
		cur.Close()
		txn.Abort()
		return nil, fmt.Errorf("lmdbstore: cursor first: %w", err)
	}
	key := append([]byte(nil), k...)
	return &iterator{txn: txn, cur: cur, key: key}, nil
}

func (s *LMDBStore) Sync(ctx context.Context) error {
	if err := s.env.Sync(true); err != nil {
		return fmt.Errorf("lmdbstore: sync: %w", err)
	}
	return nil
}

func (s *LMDBStore) Close() error { return s.env.Close() }

// iterator walks an LMDB cursor within its own read-only transaction,
// which it aborts once exhausted or on Close.
type iterator struct {
	txn *lmdb.Txn
	cur *lmdb.Cursor
	key []byte
	end bool
}

func (it *iterator) Next(ctx context.Context) error {
	k, _, err := it.cur.Get(nil, nil, lmdb.Next)
	if lmdb.IsNotFound(err) {
		it.end = true
		it.cur.Close()
		it.txn.Abort()
		return cherrors.ErrStoreEnd
	}
	if err != nil {
		it.end = true
		it.cur.Close()
		it.txn.Abort()
		return fmt.Errorf("lmdbstore: cursor next: %w", err)
	}
	it.key = append(it.key[:0], k...)
	return nil
}

func (it *iterator) Key() blockstore.Key {
	if it.end {
		return nil
	}
	return blockstore.Key(it.key)
}

func (it *iterator) IsNil() bool { return it.end }
