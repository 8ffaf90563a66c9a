package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Iteration outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomePaused    = "paused"
	OutcomeError     = "error"
)

type WatcherMetrics struct {
	IterationsTotal       *prometheus.CounterVec
	BlocksDispatchedTotal *prometheus.CounterVec
	RewindsTotal          prometheus.Counter
	IterationDurationMS   prometheus.Histogram
	State                 *prometheus.GaugeVec
	HeadBlock             prometheus.Gauge
	CurrentBlock          prometheus.Gauge
}

var (
	watcherOnce sync.Once
	watcher     *WatcherMetrics
)

func Watcher() *WatcherMetrics {
	watcherOnce.Do(func() {
		r := Registerer()
		watcher = &WatcherMetrics{
			IterationsTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "watcher_iterations_total",
					Help: "watcher loop iterations by outcome",
				},
				[]string{"outcome"},
			),
			BlocksDispatchedTotal: promauto.With(r).NewCounterVec(
				prometheus.CounterOpts{
					Name: "watcher_blocks_dispatched_total",
					Help: "blocks handed to the action handler by mode",
				},
				[]string{"mode"},
			),
			RewindsTotal: promauto.With(r).NewCounter(prometheus.CounterOpts{
				Name: "watcher_rewinds_total",
				Help: "reader seeks requested by the action handler",
			}),
			IterationDurationMS: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
				Name:    "watcher_iteration_duration_ms",
				Help:    "time spent draining one batch of blocks (ms)",
				Buckets: []float64{1, 5, 10, 50, 100, 250, 500, 1000, 5000, 15000, 60000},
			}),
			State: promauto.With(r).NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "watcher_state",
					Help: "current watcher state (1 for the active state label)",
				},
				[]string{"state"},
			),
			HeadBlock: promauto.With(r).NewGauge(prometheus.GaugeOpts{
				Name: "watcher_head_block",
				Help: "head block number last reported by the reader",
			}),
			CurrentBlock: promauto.With(r).NewGauge(prometheus.GaugeOpts{
				Name: "watcher_current_block",
				Help: "reader position after the last dispatched block",
			}),
		}
	})
	return watcher
}
