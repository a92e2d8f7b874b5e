package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/proctorline/relay/internal/adapters/lapi"
	"github.com/proctorline/relay/internal/adapters/observability"
	"github.com/proctorline/relay/internal/adapters/sensor"
	"github.com/proctorline/relay/internal/adapters/store"
	"github.com/proctorline/relay/internal/app/config"
	"github.com/proctorline/relay/internal/app/delivery"
	"github.com/proctorline/relay/internal/app/queue"
	"github.com/proctorline/relay/internal/app/reconcile"
	"github.com/proctorline/relay/internal/app/token"
	"github.com/proctorline/relay/internal/domain"
	"github.com/proctorline/relay/internal/ports"
)

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	store         ports.Store
	transport     ports.Transport
	producer      ports.Producer
	observability ports.Observability
}

// WithStore injects a custom persistence backend instead of the configured
// driver.
func WithStore(s ports.Store) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.store = s
	}
}

// WithTransport injects a custom transport so submissions can go to any
// collection endpoint, or to a fake in tests.
func WithTransport(t ports.Transport) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.transport = t
	}
}

// WithProducer injects a custom capture source instead of the built-in
// in-process stream.
func WithProducer(p ports.Producer) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.producer = p
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs ports.Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// Runtime wires up the store → queues → delivery/reconcile pipeline and
// exposes lifecycle hooks for embedding the relay inside a host application.
type Runtime struct {
	cfg    *config.Config
	obs    ports.Observability
	store  ports.Store
	tokens *token.Manager
	queues *queue.Manager

	deliver   *delivery.Worker
	reconcile *reconcile.Worker
	producer  ports.Producer
	stream    *sensor.Stream

	capturing   atomic.Bool
	unbind      func()
	metricsSrv  *http.Server
	gaugeStopCh chan struct{}
	workersStop context.CancelFunc
	workersDone chan struct{}
	ownsStore   bool
}

// NewRuntime bootstraps the default adapters (SQL or Redis store, collection
// API transport, in-process sensor stream, Prometheus observability). Use
// RuntimeOption values to override any dependency.
func NewRuntime(cfg *config.Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	obs := overrides.observability
	if obs == nil {
		obs = observability.NewPromObs()
	}

	ctx := context.Background()

	st := overrides.store
	ownsStore := false
	if st == nil {
		var err error
		st, err = openStore(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		ownsStore = true
	}

	// The transport authorises requests with the manager's current access
	// token; the manager refreshes through the transport. The late-bound
	// source breaks the construction cycle.
	var tokens *token.Manager
	transport := overrides.transport
	if transport == nil {
		var err error
		transport, err = lapi.New(lapi.Config{
			BaseURL:        cfg.APIURL,
			SubmitRetries:  cfg.Policy.SendRetries,
			RefreshRetries: cfg.Policy.RefreshRetries,
			RetryWait:      cfg.Policy.RetryWait,
		}, lapi.TokenSourceFunc(func() string { return tokens.Access() }))
		if err != nil {
			return nil, err
		}
	}

	tokens = token.NewManager(transport, obs, cfg.Policy.RefreshLead)
	if cfg.Token.AccessToken != "" || cfg.Token.RefreshToken != "" {
		tokens.SetCredential(cfg.Token)
	}

	queues, err := queue.NewManager(queue.Session{
		Mode:          cfg.Mode,
		LearnerID:     cfg.Learner.LearnerID,
		InstitutionID: cfg.Learner.InstitutionID,
		CourseID:      cfg.Activity.Course.ID,
		ActivityID:    cfg.Activity.ID,
		SessionID:     cfg.SessionID,
		Instruments:   cfg.Instruments,
		Sensors:       cfg.Sensors,
	}, st, obs)
	if err != nil {
		return nil, err
	}
	if err := queues.Load(ctx); err != nil {
		return nil, err
	}

	pair := []*queue.Queue{queues.Requests(), queues.Alerts()}
	deliver := delivery.NewWorker(pair, transport, tokens, obs, cfg.Policy)
	recon := reconcile.NewWorker(queues.Requests(), queues.Alerts(), transport, tokens, obs,
		cfg.Learner.InstitutionID, cfg.Learner.LearnerID, cfg.Policy.SendInterval)

	r := &Runtime{
		cfg:       cfg,
		obs:       obs,
		store:     st,
		tokens:    tokens,
		queues:    queues,
		deliver:   deliver,
		reconcile: recon,
		ownsStore: ownsStore,
	}

	if overrides.producer != nil {
		r.producer = overrides.producer
	} else {
		r.stream = sensor.NewStream()
		r.producer = r.stream
	}
	return r, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (ports.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return store.OpenSQLite(ctx, cfg.DSN, cfg.Table)
	case "postgres":
		return store.OpenPostgres(ctx, cfg.DSN, cfg.Table)
	case "redis":
		return store.OpenRedis(ctx, cfg.DSN)
	case "mem":
		return store.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("storage driver %q is not supported", cfg.Driver)
	}
}

// Start launches the delivery and reconciliation workers, binds the sensor
// producer to the queues and serves metrics. It returns immediately; call
// Run to block on a context instead.
func (r *Runtime) Start() error {
	if r == nil {
		return fmt.Errorf("runtime is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.workersStop = cancel
	r.workersDone = make(chan struct{})

	r.unbind = r.queues.Bind(ctx, r.producer, r.capturing.Load)

	go func() {
		defer close(r.workersDone)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); r.deliver.Run(ctx) }()
		go func() { defer wg.Done(); r.reconcile.Run(ctx) }()
		wg.Wait()
	}()

	r.startMetrics()
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled,
// then attempts a graceful shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops the workers, persists queue counters one last time and
// releases the store.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error

	if r.unbind != nil {
		r.unbind()
	}
	if r.workersStop != nil {
		r.workersStop()
	}
	if r.workersDone != nil {
		select {
		case <-r.workersDone:
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	r.tokens.Stop()

	if r.gaugeStopCh != nil {
		close(r.gaugeStopCh)
	}
	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	r.queues.Requests().SaveCounters(ctx)
	r.queues.Alerts().SaveCounters(ctx)

	if r.ownsStore {
		if err := r.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartCapture opens the gate so subscribed sensor captures are enqueued.
func (r *Runtime) StartCapture() { r.capturing.Store(true) }

// StopCapture closes the gate; alerts keep flowing regardless.
func (r *Runtime) StopCapture() { r.capturing.Store(false) }

// Capturing reports the current gate state.
func (r *Runtime) Capturing() bool { return r.capturing.Load() }

// SubmitSample enqueues one capture for delivery, bypassing the producer
// stream. Instruments are resolved from the configured sensor mapping.
func (r *Runtime) SubmitSample(ctx context.Context, sensorID, data, mimeType string, captureCtx map[string]any) (*domain.Submission, error) {
	instruments := r.queues.Session().Sensors[sensorID]
	if len(instruments) == 0 {
		return nil, fmt.Errorf("sensor %q has no configured instruments", sensorID)
	}
	return r.queues.EnqueueData(ctx, data, mimeType, instruments, "capture.webplugin", captureCtx)
}

// RaiseAlert enqueues one alert for delivery.
func (r *Runtime) RaiseAlert(ctx context.Context, level domain.AlertLevel, code string, payload any) (*domain.Submission, error) {
	return r.queues.EnqueueAlert(ctx, level, code, payload, r.queues.Session().Instruments)
}

// Stream returns the built-in capture stream, or nil when a custom producer
// was injected.
func (r *Runtime) Stream() *sensor.Stream { return r.stream }

// Tokens exposes the credential manager so hosts can install a fresh
// credential pair mid-session.
func (r *Runtime) Tokens() *token.Manager { return r.tokens }

// Queues exposes the queue manager for direct inspection.
func (r *Runtime) Queues() *queue.Manager { return r.queues }

func (r *Runtime) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}()

	r.gaugeStopCh = make(chan struct{})
	go r.recordQueueGauges(r.gaugeStopCh, time.Second)
}

func (r *Runtime) recordQueueGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rc := r.queues.Requests().Counters()
			ac := r.queues.Alerts().Counters()
			r.obs.SetGauge("relay_pending_requests", float64(len(rc.Pending)))
			r.obs.SetGauge("relay_pending_alerts", float64(len(ac.Pending)))
			r.obs.SetGauge("relay_tracked_samples", float64(len(rc.Status)+len(ac.Status)))
		}
	}
}
