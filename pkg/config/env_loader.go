package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/xentelar/kflow/pkg/logger"
)

// ErrNoEnvConfig indicates that no configuration was found in the
// environment.
var ErrNoEnvConfig = errors.New("no configuration found in environment")

// EnvLoader loads a complete JSON configuration from a single environment
// variable (<prefix>CONFIG_JSON). Deployments that template the whole config
// into the environment use this instead of a mounted file.
type EnvLoader struct {
	logger logger.Logger
	prefix string
}

// NewEnvLoader creates an environment config loader.
func NewEnvLoader(log logger.Logger, prefix string) *EnvLoader {
	return &EnvLoader{logger: log, prefix: prefix}
}

// Load implements Loader by reading <prefix>CONFIG_JSON.
func (e *EnvLoader) Load(_ context.Context, _ string, dst interface{}) error {
	jsonConfig := os.Getenv(e.prefix + "CONFIG_JSON")
	if jsonConfig == "" {
		return fmt.Errorf("%w: %sCONFIG_JSON is not set", ErrNoEnvConfig, e.prefix)
	}

	if err := json.Unmarshal([]byte(jsonConfig), dst); err != nil {
		return fmt.Errorf("failed to unmarshal %sCONFIG_JSON: %w", e.prefix, err)
	}

	if e.logger != nil {
		e.logger.Info().Str("source", e.prefix+"CONFIG_JSON").Msg("loaded configuration from environment")
	}

	return nil
}
