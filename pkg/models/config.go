package models

// TLSConfig holds certificate paths for mTLS connections.
type TLSConfig struct {
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
	CAFile   string `json:"ca_file"`
}

// SecurityMode defines the type of transport security to use.
type SecurityMode string

const (
	SecurityModeNone SecurityMode = "none"
	SecurityModeMTLS SecurityMode = "mtls"
)

// SecurityConfig holds common security configuration.
type SecurityConfig struct {
	Mode       SecurityMode `json:"mode"`
	CertDir    string       `json:"cert_dir"`
	ServerName string       `json:"server_name,omitempty"`
	TLS        TLSConfig    `json:"tls"`
}

// DatabaseConfig describes the Postgres sink connection.
type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	MaxConns int32  `json:"max_conns,omitempty"`
	MinConns int32  `json:"min_conns,omitempty"`
}

const (
	DefaultPartitionDays = 1
	DefaultRetentionDays = 30
)

// PipelineConfig carries the partitioning knobs the sink router folds into
// every SinkConfig. Both values are optional; unset values fall back to the
// defaults rather than failing validation.
type PipelineConfig struct {
	PartitionDays int `json:"partition_days,omitempty"`
	RetentionDays int `json:"retention,omitempty"`
}

// Normalize returns a copy with defaults applied to unset values.
func (c PipelineConfig) Normalize() PipelineConfig {
	if c.PartitionDays <= 0 {
		c.PartitionDays = DefaultPartitionDays
	}

	if c.RetentionDays <= 0 {
		c.RetentionDays = DefaultRetentionDays
	}

	return c
}
