package telemetrywriter

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/xentelar/kflow/pkg/decoder"
	"github.com/xentelar/kflow/pkg/logger"
	"github.com/xentelar/kflow/pkg/models"
	"github.com/xentelar/kflow/pkg/router"
	"github.com/xentelar/kflow/pkg/sink"
)

// Processor decodes JetStream messages and writes the surviving records to
// the table sink. Dropped records count as processed: a malformed payload is
// permanently malformed and must never be redelivered.
type Processor struct {
	decoder *decoder.Decoder
	router  *router.Router
	sink    sink.Sink
	log     logger.Logger

	mu      sync.Mutex
	ensured map[string]struct{}
}

// NewProcessor wires the decode/route/write stages together.
func NewProcessor(dec *decoder.Decoder, rtr *router.Router, snk sink.Sink, log logger.Logger) *Processor {
	return &Processor{
		decoder: dec,
		router:  rtr,
		sink:    snk,
		log:     log,
		ensured: make(map[string]struct{}),
	}
}

type pendingRecord struct {
	msg jetstream.Msg
	rec *models.DecodedRecord
}

// ProcessBatch handles one fetched batch and returns the messages that are
// finished (written or dropped). Messages missing from the result hit a sink
// failure and should be redelivered.
func (p *Processor) ProcessBatch(ctx context.Context, msgs []jetstream.Msg) ([]jetstream.Msg, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	processed := make([]jetstream.Msg, 0, len(msgs))
	groups := make(map[models.RecordType][]pendingRecord)

	for _, msg := range msgs {
		rec, err := p.decoder.Decode(msg.Data())
		if err != nil {
			// The decoder already emitted the diagnostic; dropping is final.
			processed = append(processed, msg)

			continue
		}

		groups[rec.Type] = append(groups[rec.Type], pendingRecord{msg: msg, rec: rec})
	}

	for rt, pending := range groups {
		cfg, err := p.router.Route(rt)
		if err != nil {
			return processed, fmt.Errorf("failed to route %s: %w", rt, err)
		}

		if err := p.ensureTable(ctx, cfg); err != nil {
			return processed, err
		}

		records := make([]*models.DecodedRecord, len(pending))
		for i, pr := range pending {
			records[i] = pr.rec
		}

		if err := p.sink.WriteRows(ctx, cfg, records); err != nil {
			return processed, fmt.Errorf("failed to write %d %s records: %w", len(records), rt, err)
		}

		for _, pr := range pending {
			processed = append(processed, pr.msg)
		}
	}

	return processed, nil
}

// PruneExpired enforces the retention window on every table.
func (p *Processor) PruneExpired(ctx context.Context) error {
	for _, rt := range models.RecordTypes() {
		cfg, err := p.router.Route(rt)
		if err != nil {
			return err
		}

		dropped, err := p.sink.PruneExpired(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to prune %s: %w", cfg.Table, err)
		}

		if dropped > 0 {
			p.log.Info().Str("table", cfg.Table).Int("partitions", dropped).Msg("retention pruned partitions")
		}
	}

	return nil
}

func (p *Processor) ensureTable(ctx context.Context, cfg models.SinkConfig) error {
	p.mu.Lock()
	_, ok := p.ensured[cfg.Table]
	p.mu.Unlock()

	if ok {
		return nil
	}

	if err := p.sink.EnsureTable(ctx, cfg); err != nil {
		return fmt.Errorf("failed to ensure table %s: %w", cfg.Table, err)
	}

	p.mu.Lock()
	p.ensured[cfg.Table] = struct{}{}
	p.mu.Unlock()

	return nil
}
