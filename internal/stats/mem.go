package stats

import (
	"context"
	"sync"
)

// MemPublisher accumulates rows in memory, adapted from the gateway's
// in-memory retention store (internal/gateway/retention.inMem): a single
// mutex-guarded slice, no eviction. Intended for tests and short-lived
// local runs; a production deployment wires a real table-backed publisher
// instead.
type MemPublisher struct {
	mu      sync.Mutex
	rows    []Row
	batches [][]Row
}

// NewMemPublisher returns an empty MemPublisher.
func NewMemPublisher() *MemPublisher {
	return &MemPublisher{}
}

// InitTable is a no-op; MemPublisher has no external resource to create.
func (m *MemPublisher) InitTable(ctx context.Context) error { return nil }

// BulkInsert appends rows to the accumulated set and records the batch
// boundary, so tests can assert on per-call batch sizes (spec.md §8 R7
// scenario 6).
func (m *MemPublisher) BulkInsert(ctx context.Context, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cloned := append([]Row(nil), rows...)
	m.rows = append(m.rows, cloned...)
	m.batches = append(m.batches, cloned)
	return nil
}

// Rows returns every row accumulated so far, in insertion order.
func (m *MemPublisher) Rows() []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Row(nil), m.rows...)
}

// Batches returns the sequence of BulkInsert call sizes, letting tests
// assert batching behavior directly.
func (m *MemPublisher) Batches() [][]Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]Row, len(m.batches))
	for i, b := range m.batches {
		out[i] = append([]Row(nil), b...)
	}
	return out
}
