package ports

import "time"

// Policy controls delivery pacing and retry behaviour.
type Policy struct {
	SendInterval   time.Duration `yaml:"send_interval"`
	WindowSize     int           `yaml:"window_size"`
	SendRetries    int           `yaml:"send_retries"`
	RetryWait      time.Duration `yaml:"retry_wait"`
	RefreshRetries int           `yaml:"refresh_retries"`
	RefreshLead    time.Duration `yaml:"refresh_lead"`

	// MaxAttempts bounds how many delivery cycles a single entry may fail
	// before it is dead-lettered. Zero keeps entries pending forever.
	MaxAttempts int `yaml:"max_attempts"`
}
