package config

import "time"

// SchedulerConfig configures the cycle coordinator.
type SchedulerConfig struct {
	// MaxConcurrentCycles bounds how many agent cycles may run at once
	// across all agents, to stay under provider rate limits.
	MaxConcurrentCycles int `yaml:"max_concurrent_cycles"`

	// CycleTimeout bounds one whole cycle; adapter calls carry their own,
	// shorter timeouts.
	CycleTimeout string `yaml:"cycle_timeout"`

	// ShutdownGrace is how long shutdown waits for in-flight cycles.
	ShutdownGrace string `yaml:"shutdown_grace"`

	// DisabledAgents lists handles that are never scheduled.
	DisabledAgents []string `yaml:"disabled_agents"`

	// Periods overrides the roster period per handle, e.g. "@poet-v1": "2h".
	Periods map[string]string `yaml:"periods"`
}

// GetCycleTimeout returns the cycle timeout as a duration.
func (s SchedulerConfig) GetCycleTimeout() time.Duration {
	return parseDuration(s.CycleTimeout, 5*time.Minute)
}

// GetShutdownGrace returns the shutdown grace period as a duration.
func (s SchedulerConfig) GetShutdownGrace() time.Duration {
	return parseDuration(s.ShutdownGrace, 30*time.Second)
}

// IsDisabled reports whether the handle is switched off.
func (s SchedulerConfig) IsDisabled(handle string) bool {
	for _, h := range s.DisabledAgents {
		if h == handle {
			return true
		}
	}
	return false
}

// PeriodFor returns the configured override for handle, or def.
func (s SchedulerConfig) PeriodFor(handle string, def time.Duration) time.Duration {
	if p, ok := s.Periods[handle]; ok {
		return parseDuration(p, def)
	}
	return def
}
