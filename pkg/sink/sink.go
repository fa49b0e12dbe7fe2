//go:generate mockgen -source=sink.go -destination=mock_sink.go -package=sink

// Package sink defines the table-oriented storage boundary the pipeline
// writes decoded records through. Implementations own table maintenance,
// time-based partition buckets and retention; the pipeline core only hands
// them a SinkConfig and rows.
package sink

import (
	"context"

	"github.com/xentelar/kflow/pkg/models"
)

// Sink is the outbound storage contract. The pipeline calls EnsureTable once
// per table before the first write, WriteRows for each decoded batch, and
// PruneExpired periodically to enforce the retention window.
type Sink interface {
	EnsureTable(ctx context.Context, cfg models.SinkConfig) error
	WriteRows(ctx context.Context, cfg models.SinkConfig, records []*models.DecodedRecord) error
	PruneExpired(ctx context.Context, cfg models.SinkConfig) (dropped int, err error)
	Close()
}
