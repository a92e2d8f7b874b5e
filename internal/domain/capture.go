package domain

// CaptureEvent is a discrete sample emitted by a sensor producer (webcam
// frame, audio clip, keystroke window). The payload is already encoded by the
// capture layer; the relay treats it as opaque.
type CaptureEvent struct {
	ID       string
	Sensor   string
	Data     string
	MimeType string
	Context  map[string]any
}

// SensorEvent is an alert-worthy condition raised by a sensor producer.
type SensorEvent struct {
	Level   AlertLevel
	Code    string
	Payload map[string]any
}

// Credential is the access/refresh JWT pair authorising API calls. Both
// tokens are opaque bearer strings whose payload decodes to an expiry.
type Credential struct {
	AccessToken  string `json:"access_token" yaml:"access_token"`
	RefreshToken string `json:"refresh_token" yaml:"refresh_token"`
}

// NetworkStatus is the coarse delivery-health signal surfaced to the host.
type NetworkStatus int

const (
	NetworkDegraded NetworkStatus = iota
	NetworkOK
)

func (s NetworkStatus) String() string {
	if s == NetworkOK {
		return "ok"
	}
	return "degraded"
}
