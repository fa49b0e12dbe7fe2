package telemetrywriter

import (
	"encoding/json"
	"errors"

	"github.com/xentelar/kflow/pkg/config"
	"github.com/xentelar/kflow/pkg/logger"
	"github.com/xentelar/kflow/pkg/models"
)

var (
	ErrMissingNATSURL        = errors.New("nats_url is required")
	ErrMissingStreamName     = errors.New("stream_name is required")
	ErrMissingConsumerName   = errors.New("consumer_name is required")
	ErrMissingDatabaseConfig = errors.New("database configuration is required")
	ErrInvalidJSON           = errors.New("failed to unmarshal JSON configuration")
)

// TelemetryWriterConfig holds configuration for the telemetry writer
// consumer. The embedded PipelineConfig carries the optional partition_days
// and retention knobs; unset values default downstream.
type TelemetryWriterConfig struct {
	NATSURL      string                 `json:"nats_url"`
	Subject      string                 `json:"subject"`
	StreamName   string                 `json:"stream_name"`
	ConsumerName string                 `json:"consumer_name"`
	Domain       string                 `json:"domain"`
	Security     *models.SecurityConfig `json:"security"`
	Database     models.DatabaseConfig  `json:"database"`
	Logging      *logger.Config         `json:"logging"`

	models.PipelineConfig
}

// UnmarshalJSON ensures TLS paths are normalized.
func (c *TelemetryWriterConfig) UnmarshalJSON(data []byte) error {
	type Alias TelemetryWriterConfig

	var alias struct{ Alias }

	alias.Alias = Alias{}

	if err := json.Unmarshal(data, &alias); err != nil {
		return errors.Join(ErrInvalidJSON, err)
	}

	*c = TelemetryWriterConfig(alias.Alias)

	if c.Security != nil && c.Security.CertDir != "" {
		config.NormalizeTLSPaths(&c.Security.TLS, c.Security.CertDir)
	}

	return nil
}

// Validate checks the configuration for required fields.
func (c *TelemetryWriterConfig) Validate() error {
	var errs []error

	if c.NATSURL == "" {
		errs = append(errs, ErrMissingNATSURL)
	}

	if c.StreamName == "" {
		errs = append(errs, ErrMissingStreamName)
	}

	if c.ConsumerName == "" {
		errs = append(errs, ErrMissingConsumerName)
	}

	if c.Database.DSN == "" {
		errs = append(errs, ErrMissingDatabaseConfig)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
