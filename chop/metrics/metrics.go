// Package metrics wires block-store activity into Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BlockStoreStats holds the counters and gauges a Stat proxy updates
// for one named store. Registered with a caller-supplied
// *prometheus.Registry so multiple stores (data store, metadata store)
// can be told apart by their "store" label.
type BlockStoreStats struct {
	Reads        prometheus.Counter
	Writes       prometheus.Counter
	Deletes      prometheus.Counter
	BytesRead    prometheus.Counter
	BytesWritten prometheus.Counter
	VirginBlocks prometheus.Gauge
	VirginBytes  prometheus.Gauge
	MinBlockSize prometheus.Gauge
	MaxBlockSize prometheus.Gauge
	AvgBlockSize prometheus.Gauge
}

// NewBlockStoreStats builds and registers the collectors for store
// name against reg. Safe to call once per store name per registry.
func NewBlockStoreStats(reg prometheus.Registerer, name string) *BlockStoreStats {
	labels := prometheus.Labels{"store": name}
	s := &BlockStoreStats{
		Reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chop", Subsystem: "store", Name: "reads_total",
			Help: "Number of Read calls.", ConstLabels: labels,
		}),
		Writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chop", Subsystem: "store", Name: "writes_total",
			Help: "Number of successful Write calls.", ConstLabels: labels,
		}),
		Deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chop", Subsystem: "store", Name: "deletes_total",
			Help: "Number of Delete calls.", ConstLabels: labels,
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chop", Subsystem: "store", Name: "bytes_read_total",
			Help: "Bytes returned by Read.", ConstLabels: labels,
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chop", Subsystem: "store", Name: "bytes_written_total",
			Help: "Bytes passed to successful Write calls.", ConstLabels: labels,
		}),
		VirginBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chop", Subsystem: "store", Name: "virgin_blocks",
			Help: "Distinct keys written at least once, tracked by the Stat proxy.", ConstLabels: labels,
		}),
		VirginBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chop", Subsystem: "store", Name: "virgin_bytes",
			Help: "Bytes written under keys never before seen by this Stat proxy.", ConstLabels: labels,
		}),
		MinBlockSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chop", Subsystem: "store", Name: "min_block_size_bytes",
			Help: "Smallest block size successfully written.", ConstLabels: labels,
		}),
		MaxBlockSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chop", Subsystem: "store", Name: "max_block_size_bytes",
			Help: "Largest block size successfully written.", ConstLabels: labels,
		}),
		AvgBlockSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chop", Subsystem: "store", Name: "avg_block_size_bytes",
			Help: "Mean block size across successful writes.", ConstLabels: labels,
		}),
	}
	for _, c := range []prometheus.Collector{
		s.Reads, s.Writes, s.Deletes, s.BytesRead, s.BytesWritten,
		s.VirginBlocks, s.VirginBytes, s.MinBlockSize, s.MaxBlockSize, s.AvgBlockSize,
	} {
		reg.MustRegister(c)
	}
	return s
}
