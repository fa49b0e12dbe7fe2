//go:generate mockgen -destination=mock_logger.go -package=logger github.com/xentelar/kflow/pkg/logger Logger

// Package logger provides JSON structured logging using zerolog, with an
// optional OTLP export bridge for the diagnostic stream.
package logger

import (
	"github.com/rs/zerolog"
)

// Logger is the structured logging surface the pipeline components depend
// on. The decoder's drop diagnostics are warn-level events on this logger.
type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Fatal() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) zerolog.Logger
}
