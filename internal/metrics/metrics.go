package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	renders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "iconrender",
			Subsystem: "render",
			Name:      "total",
			Help:      "Render attempts by category and terminal outcome.",
		}, []string{"category", "outcome"},
	)
	renderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "iconrender",
			Subsystem: "render",
			Name:      "duration_seconds",
			Help:      "Wall time of one render attempt, from marker write to marker removal.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"},
	)
	skipListEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "iconrender",
			Subsystem: "skiplist",
			Name:      "entries",
			Help:      "Number of assets currently in the skip list.",
		},
	)
	crashRecoveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "iconrender",
			Subsystem: "skiplist",
			Name:      "crash_recoveries_total",
			Help:      "Assets added to the skip list because a previous run died while rendering them.",
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "iconrender",
			Subsystem: "batch",
			Name:      "vehicle_queue_depth",
			Help:      "Vehicle render jobs waiting in the queue.",
		},
	)
	pendingItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "iconrender",
			Subsystem: "batch",
			Name:      "pending_item_icons",
			Help:      "Item icons submitted to the engine whose callback has not fired.",
		},
	)
	batchActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "iconrender",
			Subsystem: "batch",
			Name:      "active",
			Help:      "1 while a batch is being monitored for completion.",
		},
	)
	batchesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "iconrender",
			Subsystem: "batch",
			Name:      "completed_total",
			Help:      "Number of batches that drained completely.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{renders, renderDuration, skipListEntries, crashRecoveries, queueDepth, pendingItems, batchActive, batchesCompleted}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register succeeds.

func IncRender(category, outcome string) {
	if regOK.Load() {
		renders.WithLabelValues(category, outcome).Inc()
	}
}

func ObserveRenderDuration(category string, seconds float64) {
	if regOK.Load() {
		renderDuration.WithLabelValues(category).Observe(seconds)
	}
}

func SetSkipListSize(n int) {
	if regOK.Load() {
		skipListEntries.Set(float64(n))
	}
}

func IncCrashRecovery() {
	if regOK.Load() {
		crashRecoveries.Inc()
	}
}

func SetQueueDepth(n int) {
	if regOK.Load() {
		queueDepth.Set(float64(n))
	}
}

func SetPendingItems(n int) {
	if regOK.Load() {
		pendingItems.Set(float64(n))
	}
}

func SetBatchActive(active bool) {
	if regOK.Load() {
		var v float64
		if active {
			v = 1
		}
		batchActive.Set(v)
	}
}

func IncBatchCompleted() {
	if regOK.Load() {
		batchesCompleted.Inc()
	}
}
