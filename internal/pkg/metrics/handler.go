package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type HandlerMetrics struct {
	BlocksTotal         *prometheus.CounterVec
	RollbacksTotal      prometheus.Counter
	RewindRequestsTotal prometheus.Counter
	LastProcessedBlock  prometheus.Gauge
	HandleLatencyMS     prometheus.Histogram
}

var (
	handlerOnce sync.Once
	handler     *HandlerMetrics
)

func Handler() *HandlerMetrics {
	handlerOnce.Do(func() {
		r := Registerer()
		handler = &HandlerMetrics{
			BlocksTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "handler_blocks_total",
					Help: "blocks applied by the action handler by mode",
				},
				[]string{"mode"},
			),
			RollbacksTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
				Name: "handler_rollbacks_total",
				Help: "index state rollbacks performed by the action handler",
			}),
			RewindRequestsTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
				Name: "handler_rewind_requests_total",
				Help: "times the handler asked the watcher to resume from another block",
			}),
			LastProcessedBlock: promauto.With(r).NewGauge(prometheus.GaugeOpts{
				Name: "handler_last_processed_block",
				Help: "last block number committed to the index state",
			}),
			HandleLatencyMS: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
				Name:    "handler_block_latency_ms",
				Help:    "time to publish and commit one block (ms)",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
			}),
		}
	})
	return handler
}
