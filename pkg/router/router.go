// Package router derives the per-record-type sink configuration handed to
// the storage layer alongside each decoded record.
package router

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xentelar/kflow/pkg/models"
	"github.com/xentelar/kflow/pkg/schema"
)

// ErrUnknownType is returned for record types outside the schema registry.
var ErrUnknownType = errors.New("no schema entry for record type")

// timeField is the partition index field; every record type in this domain
// carries its event time under this name.
const timeField = "ts"

// Router computes sink configurations. It performs no I/O; handing records
// to the sink is the caller's job. Results are memoized since the schema
// registry is static.
type Router struct {
	cfg models.PipelineConfig

	mu    sync.RWMutex
	cache map[models.RecordType]models.SinkConfig
}

// New creates a Router. Unset partitioning values in cfg fall back to the
// defaults (1-day buckets, 30-day retention).
func New(cfg models.PipelineConfig) *Router {
	return &Router{
		cfg:   cfg.Normalize(),
		cache: make(map[models.RecordType]models.SinkConfig),
	}
}

// Route returns the sink configuration for a record type: its table name,
// the ordered field names with transform metadata stripped, and the
// partitioning parameters.
func (r *Router) Route(rt models.RecordType) (models.SinkConfig, error) {
	r.mu.RLock()
	cfg, ok := r.cache[rt]
	r.mu.RUnlock()

	if ok {
		return cfg, nil
	}

	entry, ok := schema.Lookup(rt)
	if !ok {
		return models.SinkConfig{}, fmt.Errorf("%w: %s", ErrUnknownType, rt)
	}

	cfg = models.SinkConfig{
		Table:  entry.Table,
		Fields: entry.FieldNames(),
		Partitioning: models.Partitioning{
			BucketDays:    r.cfg.PartitionDays,
			RetentionDays: r.cfg.RetentionDays,
			IndexFields:   []string{timeField},
		},
	}

	r.mu.Lock()
	r.cache[rt] = cfg
	r.mu.Unlock()

	return cfg, nil
}
