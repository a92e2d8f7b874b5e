package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/proctorline/relay/internal/adapters/store"
	"github.com/proctorline/relay/internal/domain"
	"github.com/proctorline/relay/internal/ports"
)

type mockObs struct {
	errors  []error
	drops   []uint64
	notices []string
}

func (m *mockObs) LogInfo(string, ...ports.Field) {}
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.errors = append(m.errors, err)
}
func (m *mockObs) LogCritical(string, error, ...ports.Field) {}
func (m *mockObs) IncCounter(string, float64)                {}
func (m *mockObs) ObserveLatency(string, float64)            {}
func (m *mockObs) SetGauge(string, float64)                  {}
func (m *mockObs) SetNetworkStatus(domain.NetworkStatus)     {}
func (m *mockObs) Notify(_ domain.AlertLevel, code string)   { m.notices = append(m.notices, code) }
func (m *mockObs) RecordDrop(_ string, seq uint64, _ error)  { m.drops = append(m.drops, seq) }

func testSession() Session {
	return Session{
		Mode:          domain.ModeVerification,
		LearnerID:     "learner-1",
		InstitutionID: 7,
		CourseID:      11,
		ActivityID:    13,
		SessionID:     99,
		Instruments:   []int{1, 2},
		Sensors:       map[string][]int{"camera": {1}, "keyboard": {2}},
	}
}

func newTestManager(t *testing.T) (*Manager, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	m, err := NewManager(testSession(), st, &mockObs{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, st
}

func TestNewManagerRequiresLearner(t *testing.T) {
	sess := testSession()
	sess.LearnerID = ""
	if _, err := NewManager(sess, store.NewMemStore(), &mockObs{}); err == nil {
		t.Fatalf("expected error for missing learner id")
	}
}

func TestEnqueueAssignsStrictlyIncreasingSequences(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	const n = 25
	seen := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		sub, err := m.EnqueueData(ctx, "payload", "image/jpeg", []int{1}, "capture.webplugin", nil)
		if err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
		if seen[sub.Seq] {
			t.Fatalf("sequence %d assigned twice", sub.Seq)
		}
		if sub.Seq != uint64(i+1) {
			t.Fatalf("expected sequence %d, got %d", i+1, sub.Seq)
		}
		seen[sub.Seq] = true
	}

	c := m.Requests().Counters()
	if c.Seq != n {
		t.Fatalf("expected counter seq %d, got %d", n, c.Seq)
	}
	if len(c.Pending) != n {
		t.Fatalf("expected %d pending, got %d", n, len(c.Pending))
	}
}

func TestEnqueuePersistsEntryAndCounters(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	if _, err := m.EnqueueData(ctx, "frame", "image/jpeg", []int{1}, "capture.webplugin", map[string]any{"w": 640}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	raw, err := st.Get(ctx, "tesla_learner-1_99_request_1")
	if err != nil {
		t.Fatalf("stored entry missing: %v", err)
	}
	var sub domain.Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if sub.Kind != "verification" || sub.Seq != 1 || sub.InstitutionID != 7 {
		t.Fatalf("unexpected entry %+v", sub)
	}
	var body domain.VerificationBody
	if err := json.Unmarshal(sub.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.CourseID != 11 || body.ActivityID != 13 || body.SessionID != 99 || body.Data != "frame" {
		t.Fatalf("unexpected body %+v", body)
	}

	if _, err := st.Get(ctx, "tesla_learner-1_99_data_requests"); err != nil {
		t.Fatalf("counters not persisted: %v", err)
	}
}

func TestEnrolmentModeOmitsActivityContext(t *testing.T) {
	sess := testSession()
	sess.Mode = domain.ModeEnrolment
	m, _ := func() (*Manager, *store.MemStore) {
		st := store.NewMemStore()
		mgr, err := NewManager(sess, st, &mockObs{})
		if err != nil {
			t.Fatalf("new manager: %v", err)
		}
		return mgr, st
	}()

	sub, err := m.EnqueueData(context.Background(), "sample", "audio/wav", []int{3}, "capture.webplugin", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if sub.Kind != "enrolment" {
		t.Fatalf("expected enrolment kind, got %q", sub.Kind)
	}
	var body map[string]any
	if err := json.Unmarshal(sub.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if _, ok := body["course_id"]; ok {
		t.Fatalf("enrolment body must not carry course context: %v", body)
	}
}

func TestCountersSurviveRestart(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.EnqueueAlert(ctx, domain.LevelError, "X", nil, nil); err != nil {
			t.Fatalf("enqueue alert: %v", err)
		}
	}
	m.Alerts().MarkSent(ctx, 2, "path-2")

	// New manager over the same store simulates a process restart.
	m2, err := NewManager(testSession(), st, &mockObs{})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m2.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	c := m2.Alerts().Counters()
	if c.Seq != 3 || c.Sent != 1 {
		t.Fatalf("unexpected counters after restart: %+v", c)
	}
	if got := m2.Alerts().Pending(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("unexpected pending after restart: %v", got)
	}
	if tracked := m2.Alerts().TrackedStatus(); len(tracked) != 1 || tracked[0] != "path-2" {
		t.Fatalf("unexpected tracked status after restart: %v", tracked)
	}

	// The next sequence continues after the persisted high-water mark.
	sub, err := m2.EnqueueAlert(ctx, domain.LevelInfo, "Y", nil, nil)
	if err != nil {
		t.Fatalf("enqueue after restart: %v", err)
	}
	if sub.Seq != 4 {
		t.Fatalf("expected sequence 4 after restart, got %d", sub.Seq)
	}
}

func TestMarkSentRemovesEntryAndTracksPath(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	if _, err := m.EnqueueData(ctx, "d", "image/jpeg", nil, "capture.webplugin", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	m.Requests().MarkSent(ctx, 1, "p-1")

	if _, err := st.Get(ctx, "tesla_learner-1_99_request_1"); err == nil {
		t.Fatalf("expected entry to be deleted after send")
	}
	c := m.Requests().Counters()
	if len(c.Pending) != 0 || c.Sent != 1 || len(c.Status) != 1 || c.Status[0] != "p-1" {
		t.Fatalf("unexpected counters after send: %+v", c)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.EnqueueAlert(ctx, domain.LevelError, "X", nil, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	m.Alerts().MarkSent(ctx, 1, "p-1")

	if !m.Alerts().Resolve("p-1", true) {
		t.Fatalf("expected first resolve to succeed")
	}
	if m.Alerts().Resolve("p-1", true) {
		t.Fatalf("expected second resolve to be a no-op")
	}

	c := m.Alerts().Counters()
	if c.Correct != 1 || c.Failed != 0 || len(c.Status) != 0 {
		t.Fatalf("unexpected counters after double resolve: %+v", c)
	}
}

func TestDeadLetterMovesEntry(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	if _, err := m.EnqueueData(ctx, "bad", "image/jpeg", nil, "capture.webplugin", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	m.Requests().DeadLetter(ctx, 1, nil)

	if _, err := st.Get(ctx, "tesla_learner-1_99_request_1"); err == nil {
		t.Fatalf("expected original entry key to be removed")
	}
	if _, err := st.Get(ctx, "tesla_learner-1_99_dlq_request_1"); err != nil {
		t.Fatalf("expected dead-letter key, got %v", err)
	}
	if got := m.Requests().Pending(); len(got) != 0 {
		t.Fatalf("expected empty pending after dead-letter, got %v", got)
	}
}

func TestBindEnqueuesOnlyWhileCapturing(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	capturing := false
	producer := &fakeProducer{}
	m.Bind(ctx, producer, func() bool { return capturing })

	producer.onCapture(domain.CaptureEvent{Sensor: "camera", Data: "d1", MimeType: "image/jpeg"})
	if got := m.Requests().Pending(); len(got) != 0 {
		t.Fatalf("expected capture drop while not capturing, got %v", got)
	}

	capturing = true
	producer.onCapture(domain.CaptureEvent{Sensor: "camera", Data: "d2", MimeType: "image/jpeg"})
	if got := m.Requests().Pending(); len(got) != 1 {
		t.Fatalf("expected one pending capture, got %v", got)
	}

	// Alerts bypass the capture gate.
	producer.onEvent(domain.SensorEvent{Level: domain.LevelWarning, Code: "W"})
	if got := m.Alerts().Pending(); len(got) != 1 {
		t.Fatalf("expected one pending alert, got %v", got)
	}
}

type fakeProducer struct {
	onCapture ports.CaptureHandler
	onEvent   ports.EventHandler
}

func (f *fakeProducer) Subscribe(onCapture ports.CaptureHandler, onEvent ports.EventHandler) func() {
	f.onCapture = onCapture
	f.onEvent = onEvent
	return func() {}
}
