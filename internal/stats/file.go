// internal/stats/file.go
// FileDownPublisher writes telemetry rows to a local append-only file,
// adapted from the agent's local-development file exporter
// (internal/agent/exporter.fileExporter): same directory-creation and
// permission defaults, generalized from one snapshot per file to one
// newline-delimited JSON record per row, appended to a single rolling log.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileConfig controls FileDownPublisher behavior.
type FileConfig struct {
	Dir  string      // destination directory (created if missing)
	Name string      // file name within Dir (default "hive-stats.ndjson")
	Perm os.FileMode // file mode (default 0644)
}

// FileDownPublisher is a Publisher for local development and debugging when
// no real statistics backend is configured.
type FileDownPublisher struct {
	cfg FileConfig

	mu sync.Mutex
	f  *os.File
}

// NewFileDownPublisher validates cfg, creates the destination directory, and
// opens the append-only file.
func NewFileDownPublisher(cfg FileConfig) (*FileDownPublisher, error) {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Name == "" {
		cfg.Name = "hive-stats.ndjson"
	}
	if cfg.Perm == 0 {
		cfg.Perm = 0o644
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("stats: create dir %s: %w", cfg.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(cfg.Dir, cfg.Name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, cfg.Perm)
	if err != nil {
		return nil, fmt.Errorf("stats: open %s: %w", cfg.Name, err)
	}
	return &FileDownPublisher{cfg: cfg, f: f}, nil
}

// InitTable is a no-op beyond file creation, already done in the constructor.
func (p *FileDownPublisher) InitTable(ctx context.Context) error { return nil }

// BulkInsert appends each row as one newline-delimited JSON object.
func (p *FileDownPublisher) BulkInsert(ctx context.Context, rows []Row) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	enc := json.NewEncoder(p.f)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("stats: write row: %w", err)
		}
	}
	return nil
}

// Close releases the underlying file handle.
func (p *FileDownPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.f.Close()
}
