package relay

import (
	"github.com/proctorline/relay/internal/app/config"
	"github.com/proctorline/relay/internal/app/queue"
	"github.com/proctorline/relay/internal/domain"
	"github.com/proctorline/relay/internal/ports"
)

// Re-exported types so consumers only import the pkg/relay surface.
type (
	Config        = config.Config
	LearnerConfig = config.LearnerConfig
	StorageConfig = config.StorageConfig
	MetricsConfig = config.MetricsConfig
	Policy        = ports.Policy

	Store         = ports.Store
	Transport     = ports.Transport
	Producer      = ports.Producer
	Observability = ports.Observability

	Submission    = domain.Submission
	Counters      = domain.Counters
	Credential    = domain.Credential
	CaptureEvent  = domain.CaptureEvent
	SensorEvent   = domain.SensorEvent
	AlertLevel    = domain.AlertLevel
	Mode          = domain.Mode
	NetworkStatus = domain.NetworkStatus
	Session       = queue.Session
)

const (
	ModeEnrolment    = domain.ModeEnrolment
	ModeVerification = domain.ModeVerification

	LevelInfo    = domain.LevelInfo
	LevelWarning = domain.LevelWarning
	LevelAlert   = domain.LevelAlert
	LevelError   = domain.LevelError
)

// ErrNotFound reports a missing store key.
var ErrNotFound = ports.ErrNotFound

// LoadConfig loads, defaults and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
