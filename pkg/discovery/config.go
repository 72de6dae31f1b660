package discovery

import (
	"time"

	"pinscraper/pkg/config"
	"pinscraper/pkg/retry"
)

// Config holds the loop tunables
type Config struct {
	SettleInterval     time.Duration
	CyclesPerIteration int
	ScrollStallBound   int
	RecordStallBound   int
	// MaxIterations caps completed iterations per phase; 0 means no cap
	MaxIterations     int
	TransientRetries  int
	TransientBackoff  time.Duration
	MaxTransientDelay time.Duration
	// TransientSchedule selects how the wait grows between transient
	// retries: "linear" adds TransientBackoff per attempt, anything else
	// doubles it
	TransientSchedule string
	FatalCooldown     time.Duration
	MaxFatalRestarts  int
	ListRole          string
	ZoomPercent       int
}

// DefaultConfig returns the loop tunables used against the live site
func DefaultConfig() Config {
	return ConfigFromSettings(config.DefaultConfig().Discovery)
}

// ConfigFromSettings converts the discovery section of the configuration
func ConfigFromSettings(s config.DiscoveryConfig) Config {
	return Config{
		SettleInterval:     s.SettleInterval,
		CyclesPerIteration: s.CyclesPerIteration,
		ScrollStallBound:   s.ScrollStallBound,
		RecordStallBound:   s.RecordStallBound,
		MaxIterations:      s.MaxIterations,
		TransientRetries:   s.TransientRetries,
		TransientBackoff:   s.TransientBackoff,
		MaxTransientDelay:  s.MaxTransientDelay,
		TransientSchedule:  s.TransientSchedule,
		FatalCooldown:      s.FatalCooldown,
		MaxFatalRestarts:   s.MaxFatalRestarts,
		ListRole:           s.ListRole,
		ZoomPercent:        s.ZoomPercent,
	}
}

// transientBackoff builds the wait schedule between transient retries
func (c Config) transientBackoff() retry.BackoffStrategy {
	if c.TransientSchedule == "linear" {
		return &retry.LinearBackoff{
			BaseDelay: c.TransientBackoff,
			Increment: c.TransientBackoff,
			MaxDelay:  c.MaxTransientDelay,
		}
	}
	return &retry.ExponentialBackoff{
		BaseDelay:  c.TransientBackoff,
		MaxDelay:   c.MaxTransientDelay,
		Multiplier: 2.0,
	}
}
