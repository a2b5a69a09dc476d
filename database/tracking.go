package database

import (
	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/database/internal/tracking"
)

// TrackingSettings controls the per-dispatch log line: slow query
// detection, query truncation and parameter logging.
type TrackingSettings = tracking.Settings

// Re-export the tracking defaults applied when the configuration leaves them unset.
const (
	DefaultSlowQueryThreshold = tracking.DefaultSlowQueryThreshold
	DefaultMaxQueryLength     = tracking.DefaultMaxQueryLength
)

// NewTrackingSettings derives the tracking settings of a connection group.
func NewTrackingSettings(cfg *config.DatabaseConfig) TrackingSettings {
	return tracking.NewSettings(cfg)
}

// TrackingSettings returns the settings the connection logs dispatches with.
func (c *Connection) TrackingSettings() TrackingSettings { return c.tc.Settings }
