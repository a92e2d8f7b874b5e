package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/proctorline/relay/internal/domain"
	"github.com/proctorline/relay/internal/ports"
)

type Config struct {
	APIURL string      `yaml:"api_url"`
	Mode   domain.Mode `yaml:"mode"`

	Learner     LearnerConfig     `yaml:"learner"`
	SessionID   int               `yaml:"session_id"`
	Activity    ActivityConfig    `yaml:"activity"`
	Instruments []int             `yaml:"instruments"`
	Sensors     map[string][]int  `yaml:"sensors"`
	Token       domain.Credential `yaml:"token"`

	Policy  ports.Policy  `yaml:"policy"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LearnerConfig struct {
	LearnerID     string `yaml:"learner_id"`
	InstitutionID int    `yaml:"institution_id"`
}

type ActivityConfig struct {
	ID     int          `yaml:"id"`
	Course CourseConfig `yaml:"course"`
}

type CourseConfig struct {
	ID int `yaml:"id"`
}

type StorageConfig struct {
	// Driver selects the key/value backend: sqlite, postgres, redis or mem.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = domain.ModeVerification
	}
	if c.Policy.SendInterval == 0 {
		c.Policy.SendInterval = 10 * time.Second
	}
	if c.Policy.WindowSize == 0 {
		c.Policy.WindowSize = 10
	}
	if c.Policy.SendRetries == 0 {
		c.Policy.SendRetries = 2
	}
	if c.Policy.RetryWait == 0 {
		c.Policy.RetryWait = 250 * time.Millisecond
	}
	if c.Policy.RefreshRetries == 0 {
		c.Policy.RefreshRetries = 3
	}
	if c.Policy.RefreshLead == 0 {
		c.Policy.RefreshLead = 30 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DSN == "" && c.Storage.Driver == "sqlite" {
		c.Storage.DSN = "./data/relay.db"
	}
	if c.Storage.Table == "" {
		c.Storage.Table = "relay_kv"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
}

func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}
	if c.Learner.LearnerID == "" {
		return fmt.Errorf("learner.learner_id is required")
	}
	if c.Mode != domain.ModeEnrolment && c.Mode != domain.ModeVerification {
		return fmt.Errorf("mode must be enrolment or verification, got %q", c.Mode)
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres", "redis", "mem":
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	if c.Storage.Driver != "mem" && c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
	}
	return nil
}
