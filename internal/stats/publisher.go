// Package stats implements the statistics publisher external collaborator
// consumed by C8 (spec.md §6, §4.9): bulkInsert(rows) with an initTable
// step up front, plus two concrete adapters (MemPublisher for tests,
// FileDownPublisher for local development), mirroring the gateway's
// pluggable retention.Store design (internal/gateway/retention).
package stats

import "context"

// Row is one table row as produced by internal/clientstats: a
// (partition, row key) pair carrying one counter's name and serialized
// value (spec.md §4.9).
type Row struct {
	Partition string
	RowKey    string
	Name      string
	Value     string
}

// Publisher is the narrow contract C8 depends on. Implementations must be
// safe for concurrent use.
type Publisher interface {
	// InitTable prepares the destination (create-if-missing); ctx bounds
	// the creation timeout.
	InitTable(ctx context.Context) error

	// BulkInsert writes rows; callers are responsible for respecting the
	// publisher's row cap themselves (C8 batches before calling this).
	BulkInsert(ctx context.Context, rows []Row) error
}
