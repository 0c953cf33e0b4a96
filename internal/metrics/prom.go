// internal/metrics/prom.go
// Package metrics centralises Prometheus metric registration for the hive
// client runtime. It exposes typed collectors and helper update functions so
// code can remain import-cycle-free. The package registers with the global
// prometheus.DefaultRegisterer, which callers typically expose via a
// /metrics HTTP handler from the Prometheus client library.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// Gauge metrics ---------------------------------------------------------
	CallbacksPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hive",
		Subsystem: "client",
		Name:      "callbacks_pending",
		Help:      "Number of outbound requests awaiting a response or timeout.",
	})

	LocalObjects = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hive",
		Subsystem: "client",
		Name:      "local_objects",
		Help:      "Number of locally registered callback objects.",
	})

	GoroutinesRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hive",
		Subsystem: "runtime",
		Name:      "goroutines",
		Help:      "Number of goroutines in the client process (runtime.NumGoroutine).",
	})

	HeapBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hive",
		Subsystem: "runtime",
		Name:      "heap_bytes",
		Help:      "Current heap size in bytes (runtime.MemStats.Alloc).",
	})

	// Counter metrics -------------------------------------------------------
	RequestsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "client",
		Name:      "requests_sent_total",
		Help:      "Total number of requests (two-way and one-way) handed to the transport.",
	})

	ResponsesReceivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "client",
		Name:      "responses_received_total",
		Help:      "Total number of responses delivered to a completion sink.",
	})

	TimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "client",
		Name:      "timeouts_total",
		Help:      "Total number of requests that exhausted their resend budget and timed out.",
	})

	ResendsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "client",
		Name:      "resends_total",
		Help:      "Total number of messages resent after a response timer fired.",
	})

	InvocationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "client",
		Name:      "invocations_total",
		Help:      "Total number of inbound requests dispatched to a local object.",
	})

	DroppedUnroutableTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "client",
		Name:      "dropped_unroutable_total",
		Help:      "Total number of inbound messages dropped for lacking a registered target.",
	})

	InvocationsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "client",
		Name:      "invocations_expired_total",
		Help:      "Total number of dequeued requests dropped because they had already expired.",
	})

	GcPauseTotalNs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "runtime",
		Name:      "gc_pause_total_ns",
		Help:      "Cumulative GC pause time in nanoseconds.",
	})

	TelemetryRowsFlushedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "stats",
		Name:      "rows_flushed_total",
		Help:      "Total number of statistics rows handed to the publisher's bulk insert.",
	})

	TelemetryRowsSkippedZeroTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "stats",
		Name:      "rows_skipped_zero_total",
		Help:      "Total number of statistics rows skipped because their serialized value was \"0\".",
	})
)

// Register exports all metrics; safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			CallbacksPending,
			LocalObjects,
			GoroutinesRunning,
			HeapBytes,
			RequestsSentTotal,
			ResponsesReceivedTotal,
			TimeoutsTotal,
			ResendsTotal,
			InvocationsTotal,
			DroppedUnroutableTotal,
			InvocationsExpiredTotal,
			GcPauseTotalNs,
			TelemetryRowsFlushedTotal,
			TelemetryRowsSkippedZeroTotal,
		)
	})
}

// lastGcPauseNs is the cumulative pause total seen by the previous update, so
// GcPauseTotalNs advances only by the pause time added since then.
var (
	gcPauseMu     sync.Mutex
	lastGcPauseNs int64
)

// UpdateRuntimeMetrics updates gauges with the latest numbers collected by
// internal/clientstats.
func UpdateRuntimeMetrics(m map[string]int64) {
	if v, ok := m["goroutines"]; ok {
		GoroutinesRunning.Set(float64(v))
	}
	if v, ok := m["heap_bytes"]; ok {
		HeapBytes.Set(float64(v))
	}
	if v, ok := m["gc_pause_ns"]; ok {
		gcPauseMu.Lock()
		if v > lastGcPauseNs {
			GcPauseTotalNs.Add(float64(v - lastGcPauseNs))
		}
		lastGcPauseNs = v
		gcPauseMu.Unlock()
	}
}
