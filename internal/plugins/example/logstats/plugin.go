// Package logstats is an example internal/plugins registration: a
// statsprovider plugin that publishes client telemetry rows to the
// structured logger instead of a table store, useful for local development
// when no stats.Publisher backend is configured (adapted from the teacher's
// example plugin shape in internal/plugins/example).
package logstats

import (
	"context"

	"github.com/hiveswarm/hive/internal/logging"
	"github.com/hiveswarm/hive/internal/plugins"
	"github.com/hiveswarm/hive/internal/stats"
)

// Plugin registers a log-backed stats.Publisher under kind "statsprovider",
// name "log".
type Plugin struct{}

func (Plugin) Kind() plugins.Kind { return "statsprovider" }
func (Plugin) Name() string       { return "log" }

// Init constructs and returns the stats.Publisher this plugin provides.
func (Plugin) Init() (any, error) {
	return &logPublisher{}, nil
}

type logPublisher struct{}

func (logPublisher) InitTable(ctx context.Context) error { return nil }

func (logPublisher) BulkInsert(ctx context.Context, rows []stats.Row) error {
	for _, r := range rows {
		logging.Sugar().Infow("clientstats: row", "partition", r.Partition, "row_key", r.RowKey, "name", r.Name, "value", r.Value)
	}
	return nil
}

func init() {
	plugins.Register(Plugin{})
}

var _ stats.Publisher = logPublisher{}
