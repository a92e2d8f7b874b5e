package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/proctorline/relay/internal/domain"
	"github.com/proctorline/relay/internal/ports"
)

// Queue is one logical outbound buffer (data samples or alerts). Its
// counters are the single source of truth for pending/tracked state and are
// persisted on every mutation; individual entries live under their own keys
// so they can be deleted one by one after delivery.
//
// Counter mutations are mutex-guarded; the sending flag additionally keeps
// delivery cycles from overlapping on the same queue.
type Queue struct {
	name   string // persisted counters suffix: "requests" | "alerts"
	kind   string // entry key stem: "request" | "alert"
	prefix string

	store ports.Store
	obs   ports.Observability

	mu       sync.Mutex
	counters domain.Counters

	// delivery failures per sequence, reset on restart like the original
	// session-scoped buffers; only consulted when dead-lettering is enabled
	attempts map[uint64]int

	sending atomic.Bool
}

func newQueue(name, kind, prefix string, store ports.Store, obs ports.Observability) *Queue {
	return &Queue{
		name:     name,
		kind:     kind,
		prefix:   prefix,
		store:    store,
		obs:      obs,
		attempts: make(map[uint64]int),
	}
}

// Name reports which logical queue this is ("requests" or "alerts").
func (q *Queue) Name() string { return q.name }

func (q *Queue) countersKey() string {
	return q.prefix + "data_" + q.name
}

func (q *Queue) entryKey(seq uint64) string {
	return fmt.Sprintf("%s%s_%d", q.prefix, q.kind, seq)
}

func (q *Queue) deadLetterKey(seq uint64) string {
	return fmt.Sprintf("%sdlq_%s_%d", q.prefix, q.kind, seq)
}

// Load restores persisted counters. An absent key is a fresh session.
func (q *Queue) Load(ctx context.Context) error {
	raw, err := q.store.Get(ctx, q.countersKey())
	if errors.Is(err, ports.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var c domain.Counters
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("queue %s: corrupt counters: %w", q.name, err)
	}
	q.mu.Lock()
	q.counters = c
	q.mu.Unlock()
	return nil
}

// Enqueue assigns the next sequence number, persists the built submission
// under its own key, then adds the sequence to pending and persists counters.
// The sequence is consumed even when persistence fails: in-memory state stays
// authoritative and storage is best-effort.
func (q *Queue) Enqueue(ctx context.Context, build func(seq uint64) *domain.Submission) (*domain.Submission, error) {
	q.mu.Lock()
	q.counters.Seq++
	seq := q.counters.Seq
	q.mu.Unlock()

	sub := build(seq)
	raw, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("queue %s: marshal entry %d: %w", q.name, seq, err)
	}
	if err := q.store.Set(ctx, q.entryKey(seq), raw); err != nil {
		q.obs.LogError("entry_persist_failed", err,
			ports.Field{Key: "queue", Value: q.name},
			ports.Field{Key: "seq", Value: seq})
	}

	q.mu.Lock()
	q.counters.Pending = append(q.counters.Pending, seq)
	q.mu.Unlock()

	q.saveCounters(ctx)
	q.obs.IncCounter("relay_enqueued_total", 1)
	return sub, nil
}

// Pending returns the sequences awaiting first delivery, in ascending order.
func (q *Queue) Pending() []uint64 {
	q.mu.Lock()
	out := make([]uint64, len(q.counters.Pending))
	copy(out, q.counters.Pending)
	q.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Entry loads the stored submission for a pending sequence.
func (q *Queue) Entry(ctx context.Context, seq uint64) (*domain.Submission, error) {
	raw, err := q.store.Get(ctx, q.entryKey(seq))
	if err != nil {
		return nil, err
	}
	var sub domain.Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("queue %s: corrupt entry %d: %w", q.name, seq, err)
	}
	return &sub, nil
}

// MarkSent records a successful delivery: the sequence leaves pending, the
// server-assigned tracking path joins the unconfirmed list, the entry is
// deleted and counters are persisted.
func (q *Queue) MarkSent(ctx context.Context, seq uint64, path string) {
	q.mu.Lock()
	q.removePendingLocked(seq)
	q.counters.Status = append(q.counters.Status, path)
	q.counters.Sent++
	delete(q.attempts, seq)
	q.mu.Unlock()

	if err := q.store.Delete(ctx, q.entryKey(seq)); err != nil {
		q.obs.LogError("entry_delete_failed", err,
			ports.Field{Key: "queue", Value: q.name},
			ports.Field{Key: "seq", Value: seq})
	}
	q.saveCounters(ctx)
}

// MarkAttempt counts one failed delivery cycle for the sequence and returns
// the running total.
func (q *Queue) MarkAttempt(seq uint64) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempts[seq]++
	return q.attempts[seq]
}

// Discard drops a pending sequence whose stored entry no longer exists. The
// entry is only ever deleted after a confirmed delivery, so a missing entry
// is treated as already delivered.
func (q *Queue) Discard(ctx context.Context, seq uint64) {
	q.mu.Lock()
	q.removePendingLocked(seq)
	delete(q.attempts, seq)
	q.mu.Unlock()

	q.saveCounters(ctx)
	q.obs.IncCounter("relay_discarded_total", 1)
	q.obs.LogInfo("pending_entry_discarded",
		ports.Field{Key: "queue", Value: q.name},
		ports.Field{Key: "seq", Value: seq})
}

// DeadLetter evicts a repeatedly failing entry from pending, parking its
// payload under a dlq key for operator inspection.
func (q *Queue) DeadLetter(ctx context.Context, seq uint64, cause error) {
	raw, err := q.store.Get(ctx, q.entryKey(seq))
	if err == nil {
		if err := q.store.Set(ctx, q.deadLetterKey(seq), raw); err != nil {
			q.obs.LogError("dead_letter_persist_failed", err,
				ports.Field{Key: "queue", Value: q.name},
				ports.Field{Key: "seq", Value: seq})
		}
		if err := q.store.Delete(ctx, q.entryKey(seq)); err != nil {
			q.obs.LogError("entry_delete_failed", err,
				ports.Field{Key: "queue", Value: q.name},
				ports.Field{Key: "seq", Value: seq})
		}
	}

	q.mu.Lock()
	q.removePendingLocked(seq)
	delete(q.attempts, seq)
	q.mu.Unlock()

	q.saveCounters(ctx)
	q.obs.RecordDrop(q.name, seq, cause)
}

// TrackedStatus returns the tracking paths still awaiting a verdict.
func (q *Queue) TrackedStatus() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.counters.Status))
	copy(out, q.counters.Status)
	return out
}

// Resolve removes a tracking path after the server reported a terminal
// verdict, tallying it as correct or failed. It reports whether the path was
// tracked by this queue; resolving an unknown path is a no-op.
func (q *Queue) Resolve(path string, valid bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.counters.Status {
		if p != path {
			continue
		}
		q.counters.Status = append(q.counters.Status[:i], q.counters.Status[i+1:]...)
		if valid {
			q.counters.Correct++
		} else {
			q.counters.Failed++
		}
		return true
	}
	return false
}

// Counters returns a snapshot of the persisted state.
func (q *Queue) Counters() domain.Counters {
	q.mu.Lock()
	defer q.mu.Unlock()
	c := q.counters
	c.Pending = append([]uint64(nil), q.counters.Pending...)
	c.Status = append([]string(nil), q.counters.Status...)
	return c
}

// TrySend claims the per-queue sending flag; a false return means a previous
// delivery cycle is still in flight and this one must be skipped.
func (q *Queue) TrySend() bool {
	return q.sending.CompareAndSwap(false, true)
}

// EndSend releases the sending flag.
func (q *Queue) EndSend() {
	q.sending.Store(false)
}

// SaveCounters persists the current counters snapshot. Failures are logged
// and swallowed: storage is a durability aid, not a gate.
func (q *Queue) SaveCounters(ctx context.Context) {
	q.saveCounters(ctx)
}

func (q *Queue) saveCounters(ctx context.Context) {
	q.mu.Lock()
	raw, err := json.Marshal(q.counters)
	q.mu.Unlock()
	if err != nil {
		q.obs.LogError("counters_marshal_failed", err, ports.Field{Key: "queue", Value: q.name})
		return
	}
	if err := q.store.Set(ctx, q.countersKey(), raw); err != nil {
		q.obs.LogError("counters_persist_failed", err, ports.Field{Key: "queue", Value: q.name})
	}
}

func (q *Queue) removePendingLocked(seq uint64) {
	for i, s := range q.counters.Pending {
		if s == seq {
			q.counters.Pending = append(q.counters.Pending[:i], q.counters.Pending[i+1:]...)
			return
		}
	}
}
