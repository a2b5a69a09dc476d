// Package tracking records every database dispatch: a structured log line with
// slow query detection, an OpenTelemetry span and the client call metrics.
package tracking

import (
	"time"

	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/logger"
)

const (
	// DefaultSlowQueryThreshold defines the default threshold for slow query detection
	DefaultSlowQueryThreshold = 200 * time.Millisecond
	// DefaultMaxQueryLength defines the default maximum query length for logging
	DefaultMaxQueryLength = 1000
)

// Settings holds configuration for database query tracking and logging.
type Settings struct {
	slowQueryThreshold time.Duration
	slowQueryEnabled   bool
	maxQueryLength     int
	logQueryParameters bool
}

// Context groups the logger, vendor and settings passed to tracking functions.
type Context struct {
	Logger       logger.Logger
	Vendor       string
	ConnectionID string
	Settings     Settings
}

// NewSettings creates Settings populated from the provided database configuration.
// If cfg is nil or a numeric field is non-positive, defaults are used.
func NewSettings(cfg *config.DatabaseConfig) Settings {
	settings := Settings{
		slowQueryThreshold: DefaultSlowQueryThreshold,
		slowQueryEnabled:   true,
		maxQueryLength:     DefaultMaxQueryLength,
	}

	if cfg == nil {
		return settings
	}

	if cfg.Query.Slow.Threshold > 0 {
		settings.slowQueryThreshold = cfg.Query.Slow.Threshold
	}
	settings.slowQueryEnabled = cfg.Query.Slow.Enabled || cfg.Query.Slow.Threshold > 0
	if cfg.Query.Log.MaxLength > 0 {
		settings.maxQueryLength = cfg.Query.Log.MaxLength
	}
	settings.logQueryParameters = cfg.Query.Log.Parameters

	return settings
}

// SlowQueryThreshold returns the threshold for slow query detection
func (s Settings) SlowQueryThreshold() time.Duration {
	return s.slowQueryThreshold
}

// SlowQueryEnabled reports whether slow operations are logged as warnings.
func (s Settings) SlowQueryEnabled() bool {
	return s.slowQueryEnabled
}

// MaxQueryLength returns the maximum query length for logging
func (s Settings) MaxQueryLength() int {
	return s.maxQueryLength
}

// LogQueryParameters returns whether query parameters should be logged
func (s Settings) LogQueryParameters() bool {
	return s.logQueryParameters
}
