package delivery

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/proctorline/relay/internal/app/queue"
	"github.com/proctorline/relay/internal/domain"
	"github.com/proctorline/relay/internal/ports"
)

// CredentialGate answers whether network operations may run right now.
type CredentialGate interface {
	Expired() bool
}

// Worker drains the outbound queues on a fixed interval. Each cycle picks a
// random contiguous window of pending entries per queue and transmits them
// one at a time in ascending sequence order. The randomised window start
// keeps one stuck entry from starving the rest across restarts while still
// bounding per-cycle work.
type Worker struct {
	queues    []*queue.Queue
	transport ports.Transport
	tokens    CredentialGate
	obs       ports.Observability
	policy    ports.Policy

	// injectable for deterministic window tests
	randIntN func(n int) int
}

func NewWorker(queues []*queue.Queue, transport ports.Transport, tokens CredentialGate, obs ports.Observability, policy ports.Policy) *Worker {
	if policy.WindowSize <= 0 {
		policy.WindowSize = 10
	}
	if policy.SendInterval <= 0 {
		policy.SendInterval = 10 * time.Second
	}
	return &Worker{
		queues:    queues,
		transport: transport,
		tokens:    tokens,
		obs:       obs,
		policy:    policy,
		randIntN:  rand.Intn,
	}
}

// Run ticks until the context is cancelled. The first cycle fires
// immediately so a restart with a full backlog does not idle a whole
// interval.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.policy.SendInterval)
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

// Tick runs one delivery cycle across all queues. An expired credential
// skips the cycle entirely; nothing is transmitted without authorisation.
func (w *Worker) Tick(ctx context.Context) {
	if w.tokens.Expired() {
		w.obs.SetNetworkStatus(domain.NetworkDegraded)
		return
	}
	for _, q := range w.queues {
		w.drain(ctx, q)
	}
}

func (w *Worker) drain(ctx context.Context, q *queue.Queue) {
	if !q.TrySend() {
		return
	}
	defer q.EndSend()

	pending := q.Pending()
	if len(pending) == 0 {
		return
	}

	window := pending
	if len(pending) > w.policy.WindowSize {
		start := w.randIntN(len(pending) - w.policy.WindowSize)
		window = pending[start : start+w.policy.WindowSize]
	}

	for _, seq := range window {
		if ctx.Err() != nil {
			return
		}
		w.send(ctx, q, seq)
	}
}

// send transmits one entry. A failure leaves the entry pending for a later
// cycle and degrades the network signal, but never blocks its siblings.
func (w *Worker) send(ctx context.Context, q *queue.Queue, seq uint64) {
	sub, err := q.Entry(ctx, seq)
	if errors.Is(err, ports.ErrNotFound) {
		// Entries are deleted only after a confirmed send, so a missing
		// payload means a crash landed between delete and counter persist.
		q.Discard(ctx, seq)
		return
	}
	if err != nil {
		w.obs.LogError("entry_load_failed", err,
			ports.Field{Key: "queue", Value: q.Name()},
			ports.Field{Key: "seq", Value: seq})
		return
	}

	start := time.Now()
	path, err := w.transport.Submit(ctx, sub)
	if err != nil {
		w.obs.LogError("submit_failed", err,
			ports.Field{Key: "queue", Value: q.Name()},
			ports.Field{Key: "seq", Value: seq})
		w.obs.IncCounter("relay_send_failures_total", 1)
		w.obs.SetNetworkStatus(domain.NetworkDegraded)
		if w.policy.MaxAttempts > 0 && q.MarkAttempt(seq) >= w.policy.MaxAttempts {
			q.DeadLetter(ctx, seq, err)
		}
		return
	}

	w.obs.ObserveLatency("relay_submit_latency_seconds", time.Since(start).Seconds())
	q.MarkSent(ctx, seq, path)
	w.obs.IncCounter("relay_sent_total", 1)
	w.obs.SetNetworkStatus(domain.NetworkOK)
}
