package telemetrywriter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/xentelar/kflow/pkg/logger"
)

const (
	defaultMaxPullMessages = 50
	defaultPullExpiry      = 30 * time.Second
	defaultMaxDeliver      = 3
	fetchRetryDelay        = time.Second
)

// pullConsumer is the slice of jetstream.Consumer the loop needs; tests
// substitute a fake.
type pullConsumer interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// Consumer wraps a JetStream durable pull consumer.
type Consumer struct {
	js           jetstream.JetStream
	streamName   string
	consumerName string
	consumer     pullConsumer
	logger       logger.Logger
}

// NewConsumer creates or retrieves a pull consumer for the given stream.
func NewConsumer(ctx context.Context, js jetstream.JetStream, streamName, consumerName string, subjects []string, log logger.Logger) (*Consumer, error) {
	consumer, err := js.Consumer(ctx, streamName, consumerName)
	if err != nil {
		cfg := jetstream.ConsumerConfig{
			Durable:       consumerName,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    defaultMaxDeliver,
			MaxAckPending: 1000,
		}

		if len(subjects) == 1 {
			cfg.FilterSubject = subjects[0]
		} else if len(subjects) > 1 {
			cfg.FilterSubjects = subjects
		}

		consumer, err = js.CreateConsumer(ctx, streamName, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer: %w", err)
		}
	}

	log.Info().
		Str("stream", streamName).
		Str("consumer", consumerName).
		Strs("subjects", subjects).
		Msg("pull consumer ready")

	return &Consumer{
		js:           js,
		streamName:   streamName,
		consumerName: consumerName,
		consumer:     consumer,
		logger:       log,
	}, nil
}

// ProcessMessages fetches and processes batches until the context ends or a
// fatal connection error occurs; fatal errors are returned so the service
// can reconnect.
func (c *Consumer) ProcessMessages(ctx context.Context, processor *Processor) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("stopping message processing")
			return nil
		default:
			msgs, err := c.consumer.Fetch(defaultMaxPullMessages, jetstream.FetchMaxWait(defaultPullExpiry))
			if err != nil {
				if fatal := c.classifyFetchError(ctx, err); fatal != nil {
					return fatal
				}

				continue
			}

			batch := make([]jetstream.Msg, 0, defaultMaxPullMessages)
			for msg := range msgs.Messages() {
				batch = append(batch, msg)
			}

			if len(batch) > 0 {
				c.handleBatch(ctx, batch, processor)
			}

			if fetchErr := msgs.Error(); fetchErr != nil {
				c.logger.Warn().Err(fetchErr).Msg("fetch reported an error")
			}
		}
	}
}

// classifyFetchError returns the error when the consumer should give up and
// reconnect; transient errors are logged and swallowed after a short wait.
func (c *Consumer) classifyFetchError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, jetstream.ErrConsumerNotFound):
		c.logger.Error().
			Err(err).
			Str("stream", c.streamName).
			Str("consumer", c.consumerName).
			Msg("fatal fetch error")

		return err
	default:
		c.logger.Warn().Err(err).Msg("failed to fetch messages")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(fetchRetryDelay):
			return nil
		}
	}
}

func (c *Consumer) handleBatch(ctx context.Context, msgs []jetstream.Msg, processor *Processor) {
	processed, err := processor.ProcessBatch(ctx, msgs)
	if err != nil {
		c.logger.Warn().Err(err).Int("batch", len(msgs)).Msg("batch processing failed")
	}

	done := make(map[jetstream.Msg]struct{}, len(processed))
	for _, msg := range processed {
		done[msg] = struct{}{}
	}

	for _, msg := range msgs {
		if _, ok := done[msg]; ok {
			if err := msg.Ack(); err != nil {
				c.logger.Warn().Err(err).Msg("failed to ack message")
			}

			continue
		}

		// Sink failure: redeliver, unless the message is out of attempts.
		metadata, merr := msg.Metadata()
		if merr == nil && metadata.NumDelivered >= defaultMaxDeliver {
			c.logger.Error().
				Str("subject", msg.Subject()).
				Uint64("deliveries", metadata.NumDelivered).
				Msg("giving up on message after max deliveries")

			_ = msg.Ack()

			continue
		}

		if err := msg.Nak(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to nak message")
		}
	}
}
