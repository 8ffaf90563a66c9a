package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ReaderMetrics struct {
	FetchedBlocksTotal prometheus.Counter
	Connected          prometheus.Gauge
	ReconnectsTotal    *prometheus.CounterVec
	FetchErrorsTotal   *prometheus.CounterVec
	FetchLatencyMS     prometheus.Histogram
	ForksTotal         prometheus.Counter
	ForkDepth          prometheus.Histogram
	SeeksTotal         prometheus.Counter
}

var (
	readerOnce sync.Once
	reader     *ReaderMetrics
)

func Reader() *ReaderMetrics {
	readerOnce.Do(func() {
		r := Registerer()
		reader = &ReaderMetrics{
			FetchedBlocksTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
				Name: "reader_fetched_blocks_total",
				Help: "blocks fetched from the Ethereum node",
			}),
			Connected: promauto.With(r).NewGauge(prometheus.GaugeOpts{
				Name: "reader_connected",
				Help: "reader connectivity status (1=connected,0=disconnected)",
			}),
			ReconnectsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "reader_reconnects_total",
					Help: "reader reconnect attempts by reason",
				},
				[]string{"reason"},
			),
			FetchErrorsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "reader_fetch_errors_total",
					Help: "reader fetch errors by call and code",
				},
				[]string{"call", "code"},
			),
			FetchLatencyMS: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
				Name:    "reader_fetch_latency_ms",
				Help:    "reader block fetch latency (ms)",
				Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000},
			}),
			ForksTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
				Name: "reader_forks_total",
				Help: "forks resolved by the reader",
			}),
			ForkDepth: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
				Name:    "reader_fork_depth_blocks",
				Help:    "number of blocks replaced by a resolved fork",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 64},
			}),
			SeeksTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
				Name: "reader_seeks_total",
				Help: "explicit seeks performed by the reader",
			}),
		}
	})
	return reader
}
