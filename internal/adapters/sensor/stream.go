package sensor

import (
	"sync"

	"github.com/google/uuid"

	"github.com/proctorline/relay/internal/domain"
	"github.com/proctorline/relay/internal/ports"
)

type subscriber struct {
	onCapture ports.CaptureHandler
	onEvent   ports.EventHandler
}

// Stream is an in-process producer the capture layer pushes events into. Each
// emission is dispatched synchronously and in order to every live subscriber,
// at most once per subscriber.
type Stream struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

func NewStream() *Stream {
	return &Stream{subs: make(map[int]*subscriber)}
}

func (s *Stream) Subscribe(onCapture ports.CaptureHandler, onEvent ports.EventHandler) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = &subscriber{onCapture: onCapture, onEvent: onEvent}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// EmitCapture publishes a capture event. An event ID is assigned when the
// capture layer did not set one.
func (s *Stream) EmitCapture(ev domain.CaptureEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	for _, sub := range s.snapshot() {
		if sub.onCapture != nil {
			sub.onCapture(ev)
		}
	}
}

// EmitEvent publishes an alert-worthy sensor event.
func (s *Stream) EmitEvent(ev domain.SensorEvent) {
	for _, sub := range s.snapshot() {
		if sub.onEvent != nil {
			sub.onEvent(ev)
		}
	}
}

func (s *Stream) snapshot() []*subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

var _ ports.Producer = (*Stream)(nil)
