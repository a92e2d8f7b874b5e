package reconcile

import (
	"context"
	"time"

	"github.com/proctorline/relay/internal/app/queue"
	"github.com/proctorline/relay/internal/domain"
	"github.com/proctorline/relay/internal/ports"
)

// CredentialGate answers whether network operations may run right now.
type CredentialGate interface {
	Expired() bool
}

// Worker polls the server for verdicts on previously delivered samples. A
// delivered sample stays in its queue's tracking list until the server
// reports a terminal status; PENDING verdicts leave it tracked for the next
// poll.
type Worker struct {
	requests *queue.Queue
	alerts   *queue.Queue

	transport ports.Transport
	tokens    CredentialGate
	obs       ports.Observability

	institutionID int
	learnerID     string
	interval      time.Duration
}

func NewWorker(requests, alerts *queue.Queue, transport ports.Transport, tokens CredentialGate, obs ports.Observability, institutionID int, learnerID string, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Worker{
		requests:      requests,
		alerts:        alerts,
		transport:     transport,
		tokens:        tokens,
		obs:           obs,
		institutionID: institutionID,
		learnerID:     learnerID,
		interval:      interval,
	}
}

// Run ticks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one reconciliation cycle. With nothing tracked no request is
// made; with an expired credential the cycle is skipped entirely.
func (w *Worker) Tick(ctx context.Context) {
	if w.tokens.Expired() {
		return
	}

	samples := append(w.requests.TrackedStatus(), w.alerts.TrackedStatus()...)
	if len(samples) == 0 {
		return
	}

	results, err := w.transport.SampleStatus(ctx, w.institutionID, w.learnerID, samples)
	if err != nil {
		w.obs.LogError("status_poll_failed", err)
		w.obs.SetNetworkStatus(domain.NetworkDegraded)
		return
	}

	for _, res := range results {
		if res.Status == domain.StatusPending {
			continue
		}
		valid := res.Status == domain.StatusValid
		// A path is tracked by exactly one queue; try requests first.
		if !w.requests.Resolve(res.Sample, valid) && !w.alerts.Resolve(res.Sample, valid) {
			continue
		}
		if valid {
			w.obs.IncCounter("relay_validated_total", 1)
		} else {
			w.obs.IncCounter("relay_rejected_total", 1)
		}
	}

	w.requests.SaveCounters(ctx)
	w.alerts.SaveCounters(ctx)
}
