package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/proctorline/relay/internal/domain"
	"github.com/proctorline/relay/internal/ports"
)

// Session carries the learner/activity context stamped into every wire body.
type Session struct {
	Mode          domain.Mode
	LearnerID     string
	InstitutionID int
	CourseID      int
	ActivityID    int
	SessionID     int
	Instruments   []int
	Sensors       map[string][]int
}

// KeyPrefix is the store namespace for this learner+session, preventing
// cross-session collisions when several assessments share one store.
func (s Session) KeyPrefix() string {
	return fmt.Sprintf("tesla_%s_%d_", s.LearnerID, s.SessionID)
}

// Manager owns the two logical outbound queues and turns capture/alert
// events into persisted, sequence-numbered submissions.
type Manager struct {
	session  Session
	requests *Queue
	alerts   *Queue
	obs      ports.Observability
	now      func() time.Time
}

// NewManager fails fast on missing learner identity: without it every key
// and URL would be malformed, so the queues never start.
func NewManager(session Session, store ports.Store, obs ports.Observability) (*Manager, error) {
	if session.LearnerID == "" {
		return nil, fmt.Errorf("queue: learner id is required")
	}
	if session.Mode != domain.ModeEnrolment && session.Mode != domain.ModeVerification {
		return nil, fmt.Errorf("queue: unknown mode %q", session.Mode)
	}
	prefix := session.KeyPrefix()
	return &Manager{
		session:  session,
		requests: newQueue("requests", "request", prefix, store, obs),
		alerts:   newQueue("alerts", "alert", prefix, store, obs),
		obs:      obs,
		now:      time.Now,
	}, nil
}

// Load restores both queues' counters from the store. Workers reconstruct
// all queue state from these counters plus the stored entries.
func (m *Manager) Load(ctx context.Context) error {
	if err := m.requests.Load(ctx); err != nil {
		return err
	}
	return m.alerts.Load(ctx)
}

func (m *Manager) Requests() *Queue { return m.requests }
func (m *Manager) Alerts() *Queue   { return m.alerts }

// Session returns the bound session context.
func (m *Manager) Session() Session { return m.session }

// EnqueueData buffers one captured sample. The wire body depends on the
// session mode: enrolment bodies carry no activity context.
func (m *Manager) EnqueueData(ctx context.Context, data, mimeType string, instruments []int, filename string, captureCtx map[string]any) (*domain.Submission, error) {
	meta := domain.DataMetadata{
		Filename:  filename,
		Mimetype:  mimeType,
		Context:   captureCtx,
		CreatedAt: m.now().UTC(),
	}

	var body any
	if m.session.Mode == domain.ModeEnrolment {
		body = domain.EnrolmentBody{
			LearnerID:   m.session.LearnerID,
			Data:        data,
			Instruments: instruments,
			Metadata:    meta,
		}
	} else {
		body = domain.VerificationBody{
			LearnerID:   m.session.LearnerID,
			CourseID:    m.session.CourseID,
			ActivityID:  m.session.ActivityID,
			SessionID:   m.session.SessionID,
			Data:        data,
			Instruments: instruments,
			Metadata:    meta,
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal data body: %w", err)
	}

	return m.requests.Enqueue(ctx, func(seq uint64) *domain.Submission {
		return &domain.Submission{
			Kind:          string(m.session.Mode),
			Seq:           seq,
			InstitutionID: m.session.InstitutionID,
			LearnerID:     m.session.LearnerID,
			Body:          raw,
		}
	})
}

// EnqueueAlert buffers one alert message.
func (m *Manager) EnqueueAlert(ctx context.Context, level domain.AlertLevel, code string, payload any, instruments []int) (*domain.Submission, error) {
	body := domain.AlertBody{
		Level:       level,
		LearnerID:   m.session.LearnerID,
		CourseID:    m.session.CourseID,
		ActivityID:  m.session.ActivityID,
		MessageCode: code,
		SessionID:   m.session.SessionID,
		Data:        payload,
		Instruments: instruments,
		RaisedAt:    m.now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal alert body: %w", err)
	}

	return m.alerts.Enqueue(ctx, func(seq uint64) *domain.Submission {
		return &domain.Submission{
			Kind:          domain.KindAlert,
			Seq:           seq,
			InstitutionID: m.session.InstitutionID,
			LearnerID:     m.session.LearnerID,
			Body:          raw,
		}
	})
}

// Bind subscribes the manager to a producer: one enqueue per received event,
// synchronously within the event's dispatch. Capture data is only buffered
// while capturing() reports true; alert events are always buffered.
func (m *Manager) Bind(ctx context.Context, producer ports.Producer, capturing func() bool) (cancel func()) {
	return producer.Subscribe(
		func(ev domain.CaptureEvent) {
			if capturing != nil && !capturing() {
				return
			}
			if ev.Sensor == "" {
				return
			}
			instruments := m.session.Sensors[ev.Sensor]
			if _, err := m.EnqueueData(ctx, ev.Data, ev.MimeType, instruments, "capture.webplugin", ev.Context); err != nil {
				m.obs.LogError("capture_enqueue_failed", err, ports.Field{Key: "sensor", Value: ev.Sensor})
			}
		},
		func(ev domain.SensorEvent) {
			if ev.Code == "" {
				return
			}
			if _, err := m.EnqueueAlert(ctx, ev.Level, ev.Code, ev.Payload, m.session.Instruments); err != nil {
				m.obs.LogError("alert_enqueue_failed", err, ports.Field{Key: "code", Value: ev.Code})
			}
		},
	)
}
