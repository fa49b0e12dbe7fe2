package telemetrywriter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/xentelar/kflow/pkg/decoder"
	"github.com/xentelar/kflow/pkg/lifecycle"
	"github.com/xentelar/kflow/pkg/logger"
	"github.com/xentelar/kflow/pkg/models"
	"github.com/xentelar/kflow/pkg/natsutil"
	"github.com/xentelar/kflow/pkg/router"
	"github.com/xentelar/kflow/pkg/sink"
)

const (
	defaultRetryDelay = 5 * time.Second
	pruneInterval     = 6 * time.Hour
)

type connectFunc func(ctx context.Context) (*nats.Conn, jetstream.JetStream, *Consumer, error)

// Service implements lifecycle.Service for the telemetry writer. It owns the
// NATS connection, the processing loop and the retention ticker; the decode
// core underneath is stateless and shared by every delivery.
type Service struct {
	cfg       *TelemetryWriterConfig
	processor *Processor
	sink      sink.Sink
	logger    logger.Logger

	connectFactory connectFunc
	retryDelay     time.Duration

	wg sync.WaitGroup
}

// NewService wires the codec, decoder, router and sink into a runnable
// service.
func NewService(cfg *TelemetryWriterConfig, snk sink.Sink, log logger.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := decoder.NewCBORCodec()
	if err != nil {
		return nil, err
	}

	dec := decoder.New(codec, log)
	rtr := router.New(cfg.PipelineConfig)
	proc := NewProcessor(dec, rtr, snk, log)

	return &Service{
		cfg:       cfg,
		processor: proc,
		sink:      snk,
		logger:    log,
	}, nil
}

// Start launches the consume loop and the retention ticker.
func (s *Service) Start(ctx context.Context) error {
	if s.connectFactory == nil {
		s.connectFactory = s.connect
	}

	if s.retryDelay == 0 {
		s.retryDelay = defaultRetryDelay
	}

	runCtx, stopPrune := context.WithCancel(ctx)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer stopPrune()
		s.run(runCtx)
	}()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.pruneLoop(runCtx)
	}()

	s.logger.Info().
		Str("stream_name", s.cfg.StreamName).
		Str("consumer_name", s.cfg.ConsumerName).
		Msg("telemetry writer started")

	return nil
}

// Stop waits for the loops to finish and closes the sink. The context passed
// to Start must be cancelled first or Stop blocks.
func (s *Service) Stop(_ context.Context) error {
	s.wg.Wait()

	if s.sink != nil {
		s.sink.Close()
	}

	s.logger.Info().Msg("telemetry writer stopped")

	return nil
}

// run keeps a connection and pull consumer alive until the context ends,
// reconnecting after fatal errors.
func (s *Service) run(ctx context.Context) {
	for {
		nc, _, consumer, err := s.connectFactory(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}

			s.logger.Error().Err(err).Msg("failed to connect, retrying")

			if !s.sleep(ctx) {
				return
			}

			continue
		}

		err = consumer.ProcessMessages(ctx, s.processor)

		if nc != nil {
			nc.Close()
		}

		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		s.logger.Warn().Err(err).Msg("consumer stopped, reconnecting")

		if !s.sleep(ctx) {
			return
		}
	}
}

func (s *Service) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.retryDelay):
		return true
	}
}

func (s *Service) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.processor.PruneExpired(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("retention pruning failed")
			}
		}
	}
}

// connect dials NATS and prepares the stream and pull consumer.
func (s *Service) connect(ctx context.Context) (*nats.Conn, jetstream.JetStream, *Consumer, error) {
	var opts []nats.Option

	if s.cfg.Security != nil && s.cfg.Security.Mode == models.SecurityModeMTLS {
		tlsConf, err := natsutil.TLSConfig(s.cfg.Security)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}

		opts = append(opts,
			nats.Secure(tlsConf),
			nats.RootCAs(s.cfg.Security.TLS.CAFile),
			nats.ClientCert(s.cfg.Security.TLS.CertFile, s.cfg.Security.TLS.KeyFile),
		)
	}

	nc, err := nats.Connect(s.cfg.NATSURL, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	var js jetstream.JetStream

	if s.cfg.Domain != "" {
		js, err = jetstream.NewWithDomain(nc, s.cfg.Domain)
	} else {
		js, err = jetstream.New(nc)
	}

	if err != nil {
		nc.Close()
		return nil, nil, nil, err
	}

	if err := s.ensureStream(ctx, js); err != nil {
		nc.Close()
		return nil, nil, nil, err
	}

	var subjects []string
	if s.cfg.Subject != "" {
		subjects = []string{s.cfg.Subject}
	}

	consumer, err := NewConsumer(ctx, js, s.cfg.StreamName, s.cfg.ConsumerName, subjects, s.logger)
	if err != nil {
		nc.Close()
		return nil, nil, nil, err
	}

	return nc, js, consumer, nil
}

func (s *Service) ensureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.Stream(ctx, s.cfg.StreamName)
	if err == nil {
		return nil
	}

	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream %s: %w", s.cfg.StreamName, err)
	}

	sc := jetstream.StreamConfig{Name: s.cfg.StreamName}
	if s.cfg.Subject != "" {
		sc.Subjects = []string{s.cfg.Subject}
	}

	if _, err := js.CreateOrUpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", s.cfg.StreamName, err)
	}

	return nil
}

var _ lifecycle.Service = (*Service)(nil)
