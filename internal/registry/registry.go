// Package registry is the scheduled-delivery core: it owns the mapping from
// task id to pending task, owns each task's timer, and guarantees that every
// task leaves the registry through exactly one of delivery, cancellation or
// failure.
//
// Invariants:
//   - a task is in the map if and only if it is pending
//   - the fire path and Cancel serialize on one mutex; whichever claims the
//     map entry first wins, the loser observes ErrNotFound / a no-op
//   - the payload file is released on every terminal transition
package registry

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"sendlater/internal/blobstore"
	"sendlater/internal/eventbus"
	"sendlater/internal/journal"
	"sendlater/internal/metrics"
	"sendlater/internal/transport"
	logx "sendlater/pkg/logx"
)

// Deps are the collaborators a Registry drives at fire/cancel time.
// Journal and Metrics may be nil.
type Deps struct {
	Delivery transport.Delivery
	Blobs    blobstore.Store
	Bus      eventbus.Bus
	Journal  journal.Store
	Metrics  *metrics.Metrics
	Log      logx.Logger

	// Now is the clock used for delay computation. Defaults to time.Now.
	Now func() time.Time
}

type task struct {
	id          string
	destination string
	payloadRef  string
	triggerAt   time.Time
	timer       *time.Timer
}

// Info is a read-only view of a pending task.
type Info struct {
	ID          string
	Destination string
	PayloadRef  string
	TriggerAt   time.Time
}

type Registry struct {
	deps Deps

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool

	// firing tracks in-flight delivery attempts so Close can drain them.
	firing sync.WaitGroup
}

func New(deps Deps) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	return &Registry{deps: deps, tasks: map[string]*task{}}
}

// Schedule inserts a pending task and arms its timer.
//
// It rejects duplicates of a currently-pending id and trigger times that are
// not strictly in the future. Nothing happens until the timer fires.
func (r *Registry) Schedule(ctx context.Context, id, destination, payloadRef string, triggerAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(destination) == "" {
		return ErrEmptyDestination
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.tasks[id]; ok {
		return ErrDuplicateTask
	}
	delay := triggerAt.Sub(r.deps.Now())
	if delay <= 0 {
		return ErrPastTime
	}

	if r.deps.Journal != nil {
		rec := journal.Record{
			ID:          id,
			Destination: destination,
			PayloadRef:  payloadRef,
			TriggerAt:   triggerAt,
			CreatedAt:   r.deps.Now(),
		}
		if err := r.deps.Journal.Put(ctx, rec); err != nil {
			// Availability over durability: the task still runs this process.
			r.deps.Log.Warn("journal write failed", logx.String("id", id), logx.Err(err))
		}
	}

	r.armLocked(&task{
		id:          id,
		destination: destination,
		payloadRef:  payloadRef,
		triggerAt:   triggerAt,
	}, delay)

	r.deps.Metrics.Scheduled()
	r.deps.Log.Info("task scheduled",
		logx.String("id", id),
		logx.String("destination", destination),
		logx.Time("trigger_at", triggerAt),
		logx.Duration("delay", delay))
	return nil
}

// Restore re-arms a task recovered from the journal. Unlike Schedule it does
// not re-write the journal record, and a trigger that slipped into the past
// during recovery fires immediately instead of being rejected.
func (r *Registry) Restore(rec journal.Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return ErrEmptyID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.tasks[rec.ID]; ok {
		return ErrDuplicateTask
	}
	delay := rec.TriggerAt.Sub(r.deps.Now())
	if delay < 0 {
		delay = 0
	}
	r.armLocked(&task{
		id:          rec.ID,
		destination: rec.Destination,
		payloadRef:  rec.PayloadRef,
		triggerAt:   rec.TriggerAt,
	}, delay)
	r.deps.Metrics.Scheduled()
	r.deps.Log.Info("task restored",
		logx.String("id", rec.ID), logx.Time("trigger_at", rec.TriggerAt))
	return nil
}

func (r *Registry) armLocked(t *task, delay time.Duration) {
	id := t.id
	t.timer = time.AfterFunc(delay, func() { r.fire(id) })
	r.tasks[id] = t
}

// Cancel disarms the timer, synchronously removes the payload and forgets the
// task. It returns ErrNotFound when the task never existed or has already
// resolved, including when its timer has already begun a delivery attempt.
func (r *Registry) Cancel(ctx context.Context, id string) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	t.timer.Stop()
	delete(r.tasks, id)
	r.dropRecordLocked(ctx, id)
	r.mu.Unlock()

	r.removePayload(t)
	r.deps.Metrics.Cancelled()
	r.deps.Log.Info("task cancelled", logx.String("id", id))
	return nil
}

// fire runs once per task at trigger time. It claims the map entry under the
// lock, then performs delivery outside it so a slow collaborator stalls only
// this task.
func (r *Registry) fire(id string) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		// Lost the race to Cancel (or Close); nothing to do.
		r.mu.Unlock()
		return
	}
	delete(r.tasks, id)
	r.firing.Add(1)
	r.dropRecordLocked(context.Background(), id)
	r.mu.Unlock()
	defer r.firing.Done()

	ctx := context.Background()
	err := r.deps.Delivery.SendFile(ctx, t.destination, r.deps.Blobs.Path(t.payloadRef), "")
	if err != nil {
		r.deps.Log.Error("delivery failed",
			logx.String("id", id),
			logx.String("destination", t.destination),
			logx.Err(err))
		r.publish(eventbus.TypeTaskFailed, eventbus.TaskFailed{
			ID:          id,
			Destination: t.destination,
			Error:       err.Error(),
		})
		r.deps.Metrics.Failed()
	} else {
		r.deps.Log.Info("task sent",
			logx.String("id", id), logx.String("destination", t.destination))
		r.publish(eventbus.TypeMessageSent, eventbus.MessageSent{
			ID:          id,
			Destination: t.destination,
		})
		r.deps.Metrics.Sent()
	}

	// Payload is released on both outcomes: there is no retry, so a failed
	// task's file would otherwise leak.
	r.removePayload(t)
}

// dropRecordLocked deletes the journal record for a task being claimed.
// It must run under r.mu, before the claim is visible outside the lock:
// once the entry leaves the map its id may be reused, and a late delete
// would erase the reused id's fresh record.
func (r *Registry) dropRecordLocked(ctx context.Context, id string) {
	if r.deps.Journal == nil {
		return
	}
	if err := r.deps.Journal.Delete(ctx, id); err != nil {
		r.deps.Log.Warn("journal delete failed", logx.String("id", id), logx.Err(err))
	}
}

// removePayload drops the payload file for a task that has reached a
// terminal state.
func (r *Registry) removePayload(t *task) {
	if err := r.deps.Blobs.Remove(t.payloadRef); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		r.deps.Log.Warn("payload removal failed",
			logx.String("id", t.id), logx.Err(err))
	}
}

func (r *Registry) publish(typ string, data any) {
	if r.deps.Bus != nil {
		r.deps.Bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// Len reports the number of pending tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Contains reports whether id is currently pending.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	return ok
}

// PayloadRefs returns the payload refs of all pending tasks (used by the
// sweeper to avoid reaping live uploads).
func (r *Registry) PayloadRefs() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.tasks))
	for _, t := range r.tasks {
		out[t.payloadRef] = true
	}
	return out
}

// Snapshot returns pending tasks ordered by trigger time.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, Info{
			ID:          t.id,
			Destination: t.destination,
			PayloadRef:  t.payloadRef,
			TriggerAt:   t.triggerAt,
		})
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TriggerAt.Before(out[j].TriggerAt) })
	return out
}

// Close stops all timers and waits for in-flight deliveries to finish.
// Pending tasks keep their journal records and payload files so they can be
// restored on the next start.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for _, t := range r.tasks {
		t.timer.Stop()
	}
	n := len(r.tasks)
	r.tasks = map[string]*task{}
	r.mu.Unlock()

	r.firing.Wait()
	if n > 0 {
		r.deps.Log.Info("registry closed with pending tasks journaled", logx.Int("pending", n))
	}
}
