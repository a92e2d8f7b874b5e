package relay

import (
	base "github.com/proctorline/relay/pkg/relay"
)

// Re-exported errors for convenience.
var (
	ErrNotFound = base.ErrNotFound
)

// Type aliases so consumers can import github.com/proctorline/relay directly.
type (
	Config        = base.Config
	LearnerConfig = base.LearnerConfig
	StorageConfig = base.StorageConfig
	MetricsConfig = base.MetricsConfig
	Policy        = base.Policy
	Flow          = base.Flow
	FlowOption    = base.FlowOption
	Runtime       = base.Runtime
	RuntimeOption = base.RuntimeOption
	Store         = base.Store
	Transport     = base.Transport
	Producer      = base.Producer
	Observability = base.Observability
	Submission    = base.Submission
	Counters      = base.Counters
	Credential    = base.Credential
	CaptureEvent  = base.CaptureEvent
	SensorEvent   = base.SensorEvent
	AlertLevel    = base.AlertLevel
	Mode          = base.Mode
	NetworkStatus = base.NetworkStatus
	Session       = base.Session
)

// Mode and alert level constants.
const (
	ModeEnrolment    = base.ModeEnrolment
	ModeVerification = base.ModeVerification

	LevelInfo    = base.LevelInfo
	LevelWarning = base.LevelWarning
	LevelAlert   = base.LevelAlert
	LevelError   = base.LevelError
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

// Runtime construction and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithStore(s Store) RuntimeOption {
	return base.WithStore(s)
}

func WithTransport(t Transport) RuntimeOption {
	return base.WithTransport(t)
}

func WithProducer(p Producer) RuntimeOption {
	return base.WithProducer(p)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}
