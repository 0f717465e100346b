// Package status tracks the lifecycle of generation jobs. Records expire a
// fixed time after their last update whether or not anyone looked at them,
// and every update is fanned out to the listeners attached to that job.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/casedocflow/internal/models"
)

var (
	// ErrUnknownJob is returned for jobs that never existed or have expired.
	ErrUnknownJob = errors.New("unknown job")
	// ErrTerminalState is returned for writes after completed or failed.
	ErrTerminalState = errors.New("job already reached a terminal state")
	// ErrJobExists is returned by Create when the id already has a live record.
	ErrJobExists = errors.New("job already exists")
)

const (
	DefaultTTL           = 15 * time.Minute
	DefaultSweepInterval = time.Minute

	listenerBuffer = 64
)

// Update is one status transition requested by a job.
type Update struct {
	Status   models.JobStatus
	Phase    string
	Progress int
	Message  string
	Attempt  int
	Error    string
	Result   *models.Result
}

// Options configures a Tracker. Zero values fall back to the defaults.
type Options struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

// Tracker owns the status store and its listeners. One Tracker is built at
// startup and shared by the generator and the HTTP handlers.
type Tracker struct {
	store         Store
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu   sync.Mutex
	hubs map[string]*hub
}

// hub serializes writes and subscriptions for one job key.
type hub struct {
	mu        sync.Mutex
	listeners map[*listener]struct{}
	removed   bool
}

type listener struct {
	ch     chan models.JobStatusRecord
	closed bool
}

func NewTracker(store Store, opts Options) *Tracker {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		store:         store,
		ttl:           opts.TTL,
		sweepInterval: opts.SweepInterval,
		now:           opts.Now,
		hubs:          make(map[string]*hub),
	}
}

// TTL returns how long a record survives after its last update.
func (t *Tracker) TTL() time.Duration { return t.ttl }

// Create records a new pending job at 0%. It never overwrites: when a live
// record already holds the id, nothing is written and ErrJobExists is
// returned. Concurrent callers with the same id see exactly one success.
func (t *Tracker) Create(ctx context.Context, namespace, jobID, message string) (*models.JobStatusRecord, error) {
	k := key(namespace, jobID)
	h := t.lockHub(k)
	defer t.releaseHub(k, h)

	now := t.now()
	rec := next(nil, namespace, jobID, Update{Status: models.StatusPending, Phase: "initializing", Message: message}, now)
	rec.ExpiresAt = now.Add(t.ttl)

	created, err := t.store.Create(ctx, &rec, t.ttl)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, fmt.Errorf("%w: %s/%s", ErrJobExists, namespace, jobID)
	}
	t.broadcast(h, rec)
	return &rec, nil
}

// SetStatus stores the next record for a job, resets its expiry and sends it
// to every listener. Progress never moves backwards; a failed record keeps
// the last reported percent and a completed one is always 100. Writes after
// a terminal state return ErrTerminalState and change nothing.
func (t *Tracker) SetStatus(ctx context.Context, namespace, jobID string, u Update) (*models.JobStatusRecord, error) {
	k := key(namespace, jobID)
	h := t.lockHub(k)
	defer t.releaseHub(k, h)

	now := t.now()
	prev, err := t.current(ctx, namespace, jobID, now)
	if err != nil {
		return nil, err
	}
	if prev.IsTerminal() {
		slog.Warn("Rejected status write after terminal state.", "namespace", namespace, "jobId", jobID, "status", prev.Status, "attempted", u.Status)
		return nil, fmt.Errorf("%w: %s/%s is %s", ErrTerminalState, namespace, jobID, prev.Status)
	}

	rec := next(prev, namespace, jobID, u, now)
	rec.ExpiresAt = now.Add(t.ttl)

	if err := t.store.Put(ctx, &rec, t.ttl); err != nil {
		return nil, err
	}
	slog.Debug("Job status updated.", "namespace", namespace, "jobId", jobID, "status", rec.Status, "phase", rec.Phase, "progress", rec.ProgressPercent)

	t.broadcast(h, rec)
	return &rec, nil
}

// broadcast sends rec to every listener of h. Listeners are detached and
// closed after a terminal record, or when they fall a full buffer behind.
// The caller holds h.mu.
func (t *Tracker) broadcast(h *hub, rec models.JobStatusRecord) {
	for l := range h.listeners {
		delivered := send(l, rec)
		if !delivered {
			slog.Warn("Status listener fell behind; closing it.", "namespace", rec.Namespace, "jobId", rec.JobID)
		}
		if !delivered || rec.IsTerminal() {
			close(l.ch)
			l.closed = true
			delete(h.listeners, l)
		}
	}
}

func next(prev *models.JobStatusRecord, namespace, jobID string, u Update, now time.Time) models.JobStatusRecord {
	status := u.Status
	if status == "" {
		status = models.StatusProcessing
	}
	progress := min(max(u.Progress, 0), 100)

	rec := models.JobStatusRecord{
		JobID:     jobID,
		Namespace: namespace,
		Status:    status,
		Phase:     u.Phase,
		Message:   u.Message,
		Attempt:   u.Attempt,
		StartedAt: now,
		Result:    u.Result.WithoutArtifact(),
	}
	if prev != nil {
		rec.StartedAt = prev.StartedAt
		if rec.Phase == "" {
			rec.Phase = prev.Phase
		}
		progress = max(progress, prev.ProgressPercent)
	}

	switch status {
	case models.StatusCompleted:
		progress = 100
	case models.StatusFailed:
		progress = 0
		if prev != nil {
			progress = prev.ProgressPercent
		}
		rec.Error = u.Error
	}
	rec.ProgressPercent = progress

	if status.IsTerminal() {
		done := now
		rec.CompletedAt = &done
	}
	return rec
}

// GetStatus returns the current record, or nil for a job that is unknown
// or has expired.
func (t *Tracker) GetStatus(ctx context.Context, namespace, jobID string) (*models.JobStatusRecord, error) {
	return t.current(ctx, namespace, jobID, t.now())
}

func (t *Tracker) current(ctx context.Context, namespace, jobID string, now time.Time) (*models.JobStatusRecord, error) {
	rec, err := t.store.Get(ctx, namespace, jobID)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.ExpiresAt.After(now) {
		return nil, nil
	}
	return rec, nil
}

// Subscription delivers status records for one job, in order and without
// gaps. C is closed after a terminal record, when Close is called, or when
// the reader falls a full buffer behind. A reader that sees C close without
// a terminal record resubscribes to resume from the current snapshot.
type Subscription struct {
	C <-chan models.JobStatusRecord

	tracker *Tracker
	key     string
	l       *listener
	once    sync.Once
}

// Subscribe attaches a listener. If the job already has a record, it is
// delivered first, so a late listener always starts from the current
// state. A job that is already terminal gets that record and a closed
// channel. Subscribing to a job with no record yet is allowed.
func (t *Tracker) Subscribe(ctx context.Context, namespace, jobID string) (*Subscription, error) {
	k := key(namespace, jobID)
	h := t.lockHub(k)
	defer t.releaseHub(k, h)

	rec, err := t.current(ctx, namespace, jobID, t.now())
	if err != nil {
		return nil, err
	}

	l := &listener{ch: make(chan models.JobStatusRecord, listenerBuffer)}
	sub := &Subscription{C: l.ch, tracker: t, key: k, l: l}
	if rec != nil {
		l.ch <- *rec
		if rec.IsTerminal() {
			close(l.ch)
			l.closed = true
			return sub, nil
		}
	}
	h.listeners[l] = struct{}{}
	return sub, nil
}

// Close detaches the listener. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.tracker.lockHub(s.key)
		defer s.tracker.releaseHub(s.key, h)
		if _, ok := h.listeners[s.l]; ok {
			delete(h.listeners, s.l)
		}
		if !s.l.closed {
			close(s.l.ch)
			s.l.closed = true
		}
	})
}

// send never blocks the writer. It reports false when the listener's
// buffer is full; events are never dropped from the middle of a stream.
func send(l *listener, rec models.JobStatusRecord) bool {
	select {
	case l.ch <- rec:
		return true
	default:
		return false
	}
}

func (t *Tracker) lockHub(k string) *hub {
	for {
		t.mu.Lock()
		h, ok := t.hubs[k]
		if !ok {
			h = &hub{listeners: make(map[*listener]struct{})}
			t.hubs[k] = h
		}
		t.mu.Unlock()

		h.mu.Lock()
		if !h.removed {
			return h
		}
		h.mu.Unlock()
	}
}

// releaseHub unlocks h and drops it once nobody listens.
func (t *Tracker) releaseHub(k string, h *hub) {
	if len(h.listeners) == 0 {
		t.mu.Lock()
		if t.hubs[k] == h {
			delete(t.hubs, k)
		}
		t.mu.Unlock()
		h.removed = true
	}
	h.mu.Unlock()
}

// Listeners returns the number of attached listeners for a job.
func (t *Tracker) Listeners(namespace, jobID string) int {
	t.mu.Lock()
	h, ok := t.hubs[key(namespace, jobID)]
	t.mu.Unlock()
	if !ok {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Sweep removes expired records once.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	return t.store.Sweep(ctx, t.now())
}

// Run sweeps expired records until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	slog.Info("Status sweeper started.", "interval", t.sweepInterval.String(), "ttl", t.ttl.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("Status sweeper stopped.")
			return
		case <-ticker.C:
			removed, err := t.Sweep(ctx)
			if err != nil {
				slog.Error("Status sweep failed.", "error", err)
				continue
			}
			if removed > 0 {
				slog.Debug("Expired status records removed.", "count", removed)
			}
		}
	}
}
