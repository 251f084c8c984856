// Command chop-archiver chops, indexes, and restores files against a
// content-addressed block store, with optional compression and
// convergent-encryption indexing.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ledgerwatch/chop/chop/blockindexer"
	"github.com/ledgerwatch/chop/chop/blockstore"
	"github.com/ledgerwatch/chop/chop/blockstore/azurestore"
	"github.com/ledgerwatch/chop/chop/blockstore/lmdbstore"
	"github.com/ledgerwatch/chop/chop/blockstore/memstore"
	"github.com/ledgerwatch/chop/chop/blockstore/proxy"
	"github.com/ledgerwatch/chop/chop/blockstore/s3store"
	"github.com/ledgerwatch/chop/chop/chopper"
	"github.com/ledgerwatch/chop/chop/filter"
	"github.com/ledgerwatch/chop/chop/handle"
	"github.com/ledgerwatch/chop/chop/metrics"
	"github.com/ledgerwatch/chop/chop/stream"
	"github.com/ledgerwatch/chop/chop/treeindexer"
	"github.com/ledgerwatch/chop/internal/log"
)

var (
	flagBackend      string
	flagDataDir      string
	flagMetaDir      string
	flagFanOut       int
	flagBlockSize    int
	flagChopper      string
	flagStreamFilter string
	flagBlockFilter  string
	flagEncrypt      bool
	flagHashAlgo     string
	flagSmart        bool
	flagStats        bool
	flagDebug        bool
	flagVerbose      bool
	flagSemantics    string
)

func main() {
	root := &cobra.Command{
		Use:   "chop-archiver",
		Short: "Content-addressed archiver built around a hash-tree block index",
	}
	home, _ := os.UserHomeDir()
	root.PersistentFlags().StringVar(&flagBackend, "backend", "memory", "block store backend: lmdb, memory, azure, or s3")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", filepath.Join(home, ".chop-archiver", "archive-data"), "data store location (path, bucket, or container, depending on --backend)")
	root.PersistentFlags().StringVar(&flagMetaDir, "meta-dir", filepath.Join(home, ".chop-archiver", "archive-meta"), "meta store location (path, bucket, or container, depending on --backend)")
	root.PersistentFlags().IntVar(&flagFanOut, "fan-out", 4, "hash-tree key-block fan-out")
	root.PersistentFlags().IntVar(&flagBlockSize, "block-size", 65536, "fixed chopper block size")
	root.PersistentFlags().StringVar(&flagChopper, "chopper", "fixed", "chopper: fixed or anchor")
	root.PersistentFlags().StringVar(&flagStreamFilter, "stream-filter", "identity", "filter applied to the whole input stream before chopping: identity, snappy, or zstd")
	root.PersistentFlags().StringVar(&flagBlockFilter, "block-filter", "identity", "filter applied to each block before it reaches the data store: identity, snappy, or zstd")
	root.PersistentFlags().BoolVar(&flagEncrypt, "encrypt", false, "index leaf blocks with convergent encryption (CHK)")
	root.PersistentFlags().StringVar(&flagHashAlgo, "hash", "sha256", "hash algorithm: sha256, sha1, or blake2b")
	root.PersistentFlags().BoolVar(&flagSmart, "smart", true, "dedup writes by asking the data store whether each key already exists")
	root.PersistentFlags().BoolVar(&flagStats, "stats", false, "wrap the data store with a counters/Prometheus-backed stat proxy")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "wrap the data store with a logging dummy proxy")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&flagSemantics, "store-semantics", "close", "what every data-store proxy's Close does to its backend: leave, close, or destroy")

	root.AddCommand(archiveCmd(), archiveFDCmd(), restoreCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging() {
	if flagVerbose {
		log.SetLevel(log.LvlDebug)
	}
}

// parseSemantics maps the --store-semantics flag to a blockstore.ProxySemantics,
// chosen once at proxy-chain construction time per spec.md §3.
func parseSemantics(name string) (blockstore.ProxySemantics, error) {
	switch name {
	case "leave":
		return blockstore.LeaveAsIs, nil
	case "close":
		return blockstore.EventuallyClose, nil
	case "destroy":
		return blockstore.EventuallyDestroy, nil
	default:
		return 0, fmt.Errorf("unknown store semantics %q", name)
	}
}

func hashAlgorithm() (blockindexer.HashAlgorithm, error) {
	switch flagHashAlgo {
	case "sha256":
		return blockindexer.SHA256, nil
	case "sha1":
		return blockindexer.SHA1, nil
	case "blake2b":
		return blockindexer.BLAKE2b256, nil
	default:
		return 0, fmt.Errorf("unknown hash algorithm %q", flagHashAlgo)
	}
}

// openBackend opens one BlockStore against the configured backend. loc is
// the LMDB file path (lmdb), the container name (azure, with account and
// key from AZURE_STORAGE_ACCOUNT/AZURE_STORAGE_KEY) or the bucket name
// (s3, with region from AWS_REGION and objects prefixed by name); the
// memory backend ignores it.
func openBackend(name, loc string) (blockstore.BlockStore, error) {
	switch flagBackend {
	case "memory":
		return memstore.New(name, 256*1024*1024), nil
	case "lmdb":
		dir := filepath.Dir(loc)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
		return lmdbstore.Open(loc, 1<<30, name)
	case "azure":
		account := os.Getenv("AZURE_STORAGE_ACCOUNT")
		key := os.Getenv("AZURE_STORAGE_KEY")
		return azurestore.Open(account, key, loc, 1024)
	case "s3":
		region := os.Getenv("AWS_REGION")
		return s3store.Open(region, loc, name, 1024)
	default:
		return nil, fmt.Errorf("unknown store backend %q", flagBackend)
	}
}

func openStores() (data, meta blockstore.BlockStore, err error) {
	data, err = openBackend("data", flagDataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open data store: %w", err)
	}
	meta, err = openBackend("meta", flagMetaDir)
	if err != nil {
		data.Close()
		return nil, nil, fmt.Errorf("open meta store: %w", err)
	}
	return data, meta, nil
}

// wrapDataStore layers the requested proxies around the raw data store, in
// the fixed order debug (outermost) -> stats -> smart -> block filter ->
// backend, so every call is logged and counted regardless of whether it is
// short-circuited by dedup. Every layer shares --store-semantics, so
// closing whichever proxy ends up outermost cascades down to the raw
// backend exactly once.
func wrapDataStore(data blockstore.BlockStore) (blockstore.BlockStore, error) {
	bf, err := buildFilter(flagBlockFilter)
	if err != nil {
		return nil, err
	}
	semantics, err := parseSemantics(flagSemantics)
	if err != nil {
		return nil, err
	}
	store := blockstore.BlockStore(proxy.NewFiltered(data, bf, semantics))

	if flagSmart {
		store = proxy.NewSmart(store, semantics)
	}
	if flagStats {
		store = proxy.NewStat(store, metrics.NewBlockStoreStats(prometheus.DefaultRegisterer, "data"), semantics)
	}
	if flagDebug {
		store = proxy.NewDummy(store, semantics)
	}
	return store, nil
}

// closeDataStore releases the data store opened by openStores. wrapped
// (the proxy chain wrapDataStore built around dataStore) owns dataStore
// through that chain whenever --store-semantics resolves to anything but
// "leave" — Filtered, the innermost layer, is always present and always
// carries the same semantics, so its Close cascades down to dataStore.
// Only the LeaveAsIs case leaves dataStore with no owner in the chain, so
// it must be closed here directly.
func closeDataStore(wrapped, dataStore blockstore.BlockStore) error {
	err := wrapped.Close()
	if flagSemantics == "leave" {
		if cerr := dataStore.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func buildIndexer(dataStore, metaStore blockstore.BlockStore) (*treeindexer.TreeIndexer, error) {
	algo, err := hashAlgorithm()
	if err != nil {
		return nil, err
	}
	leafClass := blockindexer.ClassHash
	if flagEncrypt {
		leafClass = blockindexer.ClassCHK
	}
	return treeindexer.NewTreeIndexer(flagFanOut, dataStore, metaStore, leafClass, algo, blockindexer.ClassHash, algo)
}

func buildChopper(src stream.Stream) (chopper.Chopper, error) {
	switch flagChopper {
	case "fixed":
		return chopper.NewFixedSizeChopper(src, flagBlockSize, true), nil
	case "anchor":
		return chopper.NewAnchorChopper(src, chopper.AnchorConfig{}), nil
	default:
		return nil, fmt.Errorf("unknown chopper %q", flagChopper)
	}
}

func buildFilter(name string) (filter.Filter, error) {
	switch name {
	case "identity":
		return filter.Identity, nil
	case "snappy":
		return filter.Snappy{}, nil
	case "zstd":
		return filter.Zstd{}, nil
	default:
		return nil, fmt.Errorf("unknown filter %q", name)
	}
}

func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <file>",
		Short: "Chop, index, and store a file, printing its tree handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			return runArchive(args[0])
		},
	}
}

func archiveFDCmd() *cobra.Command {
	var fd int
	cmd := &cobra.Command{
		Use:   "archive-fd",
		Short: "Chop, index, and store an open file descriptor, printing its tree handle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			return runArchiveFD(fd)
		},
	}
	cmd.Flags().IntVar(&fd, "fd", 0, "file descriptor to read from (default stdin)")
	return cmd
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <handle>",
		Short: "Resolve a tree handle back into bytes on standard output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			return runRestore(args[0], os.Stdout)
		},
	}
}

func runArchive(path string) error {
	src, err := stream.OpenFileStream(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()
	return chopAndIndex(src)
}

func runArchiveFD(fd int) error {
	f := os.NewFile(uintptr(fd), fmt.Sprintf("fd%d", fd))
	data, err := readAll(f)
	if err != nil {
		return err
	}
	src := stream.NewMemoryStream(fmt.Sprintf("fd%d", fd), data, flagBlockSize)
	return chopAndIndex(src)
}

func chopAndIndex(src stream.Stream) error {
	sf, err := buildFilter(flagStreamFilter)
	if err != nil {
		return err
	}
	filtered, err := stream.NewFilteredStream(src, sf)
	if err != nil {
		return err
	}
	ch, err := buildChopper(filtered)
	if err != nil {
		return err
	}
	defer ch.Close()

	dataStore, metaStore, err := openStores()
	if err != nil {
		return err
	}
	defer metaStore.Close()

	wrapped, err := wrapDataStore(dataStore)
	if err != nil {
		dataStore.Close()
		return err
	}
	defer closeDataStore(wrapped, dataStore)

	indexer, err := buildIndexer(wrapped, metaStore)
	if err != nil {
		return err
	}

	th, err := indexer.IndexBlocks(context.Background(), ch)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	out, err := handle.SerializeTreeHandle(th)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runRestore(handleStr string, out io.Writer) error {
	th, err := handle.DeserializeTreeHandle(handleStr)
	if err != nil {
		return fmt.Errorf("parse handle: %w", err)
	}

	dataStore, metaStore, err := openStores()
	if err != nil {
		return err
	}
	defer metaStore.Close()

	wrapped, err := wrapDataStore(dataStore)
	if err != nil {
		dataStore.Close()
		return err
	}
	defer closeDataStore(wrapped, dataStore)

	indexer, err := treeindexer.NewTreeIndexer(th.FanOut, wrapped, metaStore, th.LeafClass, th.LeafAlgorithm, th.KeyClass, th.KeyAlgorithm)
	if err != nil {
		return err
	}

	s, err := indexer.FetchStream(context.Background(), th)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer s.Close()

	buf := make([]byte, 64*1024)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == stream.ErrStreamEnd {
			return nil
		}
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	}
}

func readAll(f *os.File) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 64*1024)
	for {
		n, err := f.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
