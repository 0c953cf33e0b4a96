// Package clientstats implements C8: the statistics publisher adapter. It
// periodically samples runtime and host counters, batches them into rows
// honoring the external publisher's bulk-write cap, skips zero-valued
// counters, and keys each row per spec.md §4.9's partition/row-key
// contract. Sampling itself is adapted from the agent's runtime samplers
// (internal/agent/sampler/{goroutine,gc,heap}.go): the same ticker +
// quit/done channel shape, generalized from flamegraph stack sampling to
// scalar counter sampling.
package clientstats

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/hiveswarm/hive/internal/logging"
	"github.com/hiveswarm/hive/internal/metrics"
	"github.com/hiveswarm/hive/internal/stats"
)

// Collector samples counters on a fixed interval and hands batches to a
// stats.Publisher. One Collector exists per started runtime.
type Collector struct {
	publisher    stats.Publisher
	interval     time.Duration
	bulkCap      int
	deploymentID string
	clientEpoch  string

	seqMu sync.Mutex
	seq   int64

	quit chan struct{}
	done chan struct{}
}

// New constructs a Collector. clientEpoch should be a value stable for the
// lifetime of one runtime instance (e.g., the client guid) and is folded
// into row keys so rows from concurrent client instances never collide.
func New(publisher stats.Publisher, interval time.Duration, bulkCap int, deploymentID, clientEpoch string) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if bulkCap <= 0 {
		bulkCap = 200
	}
	return &Collector{
		publisher:    publisher,
		interval:     interval,
		bulkCap:      bulkCap,
		deploymentID: deploymentID,
		clientEpoch:  clientEpoch,
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the sampling loop in its own goroutine. Calling Start more
// than once is a programmer error; callers should construct a fresh
// Collector per Start/Reset cycle, matching the rest of the lifecycle.
func (c *Collector) Start(ctx context.Context) error {
	if err := c.publisher.InitTable(ctx); err != nil {
		return fmt.Errorf("clientstats: init table: %w", err)
	}
	go c.loop(ctx)
	return nil
}

// Stop signals the loop to finish and blocks until it has.
func (c *Collector) Stop() {
	select {
	case <-c.done:
		return
	default:
		close(c.quit)
		<-c.done
	}
}

func (c *Collector) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sampleAndFlush(ctx)
		case <-c.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sampleAndFlush gathers one round of counters, skips zero values, and
// flushes in batches no larger than c.bulkCap (spec.md §4.9, §8 R7).
func (c *Collector) sampleAndFlush(ctx context.Context) {
	counters := c.sample(ctx)

	partition := c.partitionKey(time.Now())
	rows := make([]stats.Row, 0, len(counters))
	for name, value := range counters {
		if value == "0" {
			metrics.TelemetryRowsSkippedZeroTotal.Inc()
			continue
		}
		rows = append(rows, stats.Row{
			Partition: partition,
			RowKey:    c.rowKey(name),
			Name:      name,
			Value:     value,
		})
	}

	for len(rows) > 0 {
		n := c.bulkCap
		if n > len(rows) {
			n = len(rows)
		}
		batch := rows[:n]
		rows = rows[n:]
		if err := c.publisher.BulkInsert(ctx, batch); err != nil {
			logging.Sugar().Warnw("clientstats: bulk insert failed", "error", err)
			continue
		}
		metrics.TelemetryRowsFlushedTotal.Add(float64(len(batch)))
	}
}

// sample gathers the current runtime and host counters. Host telemetry
// (CPU percent, available memory) degrades to omission rather than error
// if gopsutil cannot read the host, since these are best-effort counters.
func (c *Collector) sample(ctx context.Context) map[string]string {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	out := map[string]string{
		"goroutines":    fmt.Sprintf("%d", runtime.NumGoroutine()),
		"heap_bytes":    fmt.Sprintf("%d", ms.Alloc),
		"gc_pause_ns":   fmt.Sprintf("%d", ms.PauseTotalNs),
		"num_gc":        fmt.Sprintf("%d", ms.NumGC),
	}
	metrics.UpdateRuntimeMetrics(map[string]int64{
		"goroutines":  int64(runtime.NumGoroutine()),
		"heap_bytes":  int64(ms.Alloc),
		"gc_pause_ns": int64(ms.PauseTotalNs),
	})

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		out["host_cpu_percent"] = fmt.Sprintf("%.2f", pct[0])
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out["host_mem_available_bytes"] = fmt.Sprintf("%d", vm.Available)
	}
	return out
}

// partitionKey is deploymentId + ":" + an ISO-8601 YYYY-MM-DD date in UTC,
// a locale-invariant calendar (spec.md §4.9).
func (c *Collector) partitionKey(t time.Time) string {
	return c.deploymentID + ":" + t.UTC().Format("2006-01-02")
}

// rowKey is name[":"+clientEpoch]+":"+seq6, a zero-padded six-digit
// monotonic counter unique within this Collector's lifetime (spec.md §4.9).
func (c *Collector) rowKey(name string) string {
	c.seqMu.Lock()
	c.seq++
	seq := c.seq
	c.seqMu.Unlock()

	key := name
	if c.clientEpoch != "" {
		key += ":" + c.clientEpoch
	}
	return fmt.Sprintf("%s:%06d", key, seq%1_000_000)
}
