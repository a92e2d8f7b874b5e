package ports

import "github.com/proctorline/relay/internal/domain"

// CaptureHandler receives data capture events.
type CaptureHandler func(domain.CaptureEvent)

// EventHandler receives alert-worthy sensor events.
type EventHandler func(domain.SensorEvent)

// Producer is the sensor side of the pipeline: an external collaborator that
// emits capture and alert events. Dispatch to a subscriber is ordered and
// at-most-once per emission.
type Producer interface {
	Subscribe(onCapture CaptureHandler, onEvent EventHandler) (cancel func())
}
