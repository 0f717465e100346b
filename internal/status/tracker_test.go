package status

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/casedocflow/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker() (*Tracker, *MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	return NewTracker(store, Options{TTL: 15 * time.Minute, Now: clock.Now}), store, clock
}

const ns = models.NamespacePDFGeneration

func TestSetStatus_ProgressIsMonotonic(t *testing.T) {
	tr, _, _ := newTestTracker()
	ctx := context.Background()

	steps := []Update{
		{Status: models.StatusPending},
		{Phase: "load_template", Progress: 10},
		{Phase: "map_fields", Progress: 40},
		{Phase: "late_update", Progress: 20},
		{Status: models.StatusRetrying, Phase: "upload", Progress: -5},
		{Status: models.StatusCompleted, Phase: "complete", Progress: 50},
	}
	want := []int{0, 10, 40, 40, 40, 100}

	for i, u := range steps {
		rec, err := tr.SetStatus(ctx, ns, "job-1", u)
		if err != nil {
			t.Fatalf("step %d: SetStatus() error = %v", i, err)
		}
		if rec.ProgressPercent != want[i] {
			t.Errorf("step %d: progress = %d, want %d", i, rec.ProgressPercent, want[i])
		}
	}
}

func TestSetStatus_FailedFreezesProgress(t *testing.T) {
	tr, _, _ := newTestTracker()
	ctx := context.Background()

	if _, err := tr.SetStatus(ctx, ns, "job-1", Update{Phase: "map_fields", Progress: 40}); err != nil {
		t.Fatal(err)
	}
	rec, err := tr.SetStatus(ctx, ns, "job-1", Update{Status: models.StatusFailed, Phase: "map_fields", Progress: 100, Error: "Missing plaintiff name"})
	if err != nil {
		t.Fatal(err)
	}
	if rec.ProgressPercent != 40 {
		t.Errorf("progress = %d, want 40", rec.ProgressPercent)
	}
	if rec.Error != "Missing plaintiff name" || rec.CompletedAt == nil {
		t.Errorf("failed record = %+v", rec)
	}
}

func TestSetStatus_RejectsWritesAfterTerminal(t *testing.T) {
	for _, terminal := range []models.JobStatus{models.StatusCompleted, models.StatusFailed} {
		t.Run(string(terminal), func(t *testing.T) {
			tr, _, _ := newTestTracker()
			ctx := context.Background()
			if _, err := tr.SetStatus(ctx, ns, "job-1", Update{Status: terminal, Error: "x"}); err != nil {
				t.Fatal(err)
			}
			_, err := tr.SetStatus(ctx, ns, "job-1", Update{Phase: "upload", Progress: 95})
			if !errors.Is(err, ErrTerminalState) {
				t.Fatalf("SetStatus() error = %v, want ErrTerminalState", err)
			}
			rec, _ := tr.GetStatus(ctx, ns, "job-1")
			if rec.Status != terminal {
				t.Errorf("status = %s, want %s", rec.Status, terminal)
			}
		})
	}
}

func TestGetStatus_VisibleUntilExpiry(t *testing.T) {
	tr, _, clock := newTestTracker()
	ctx := context.Background()

	if _, err := tr.SetStatus(ctx, ns, "job-1", Update{Status: models.StatusCompleted}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(15*time.Minute - time.Second)
	rec, err := tr.GetStatus(ctx, ns, "job-1")
	if err != nil || rec == nil {
		t.Fatalf("GetStatus() before expiry = %v, %v", rec, err)
	}

	clock.Advance(time.Second)
	rec, err = tr.GetStatus(ctx, ns, "job-1")
	if err != nil || rec != nil {
		t.Fatalf("GetStatus() at expiry = %v, %v; want unknown", rec, err)
	}
}

func TestSetStatus_ResetsExpiry(t *testing.T) {
	tr, _, clock := newTestTracker()
	ctx := context.Background()

	first, _ := tr.SetStatus(ctx, ns, "job-1", Update{Status: models.StatusPending})
	clock.Advance(10 * time.Minute)
	second, _ := tr.SetStatus(ctx, ns, "job-1", Update{Phase: "parse", Progress: 20})

	if !second.ExpiresAt.Equal(first.ExpiresAt.Add(10 * time.Minute)) {
		t.Errorf("ExpiresAt = %v, want reset to now+ttl", second.ExpiresAt)
	}
	if !second.StartedAt.Equal(first.StartedAt) {
		t.Errorf("StartedAt moved from %v to %v", first.StartedAt, second.StartedAt)
	}
}

func TestGetStatus_UnknownJob(t *testing.T) {
	tr, _, _ := newTestTracker()
	rec, err := tr.GetStatus(context.Background(), ns, "nope")
	if err != nil || rec != nil {
		t.Errorf("GetStatus() = %v, %v; want nil, nil", rec, err)
	}
}

func TestSweep_RemovesExpiredRecords(t *testing.T) {
	tr, store, clock := newTestTracker()
	ctx := context.Background()

	_, _ = tr.SetStatus(ctx, ns, "old", Update{Status: models.StatusPending})
	clock.Advance(10 * time.Minute)
	_, _ = tr.SetStatus(ctx, ns, "new", Update{Status: models.StatusPending})
	clock.Advance(6 * time.Minute)

	removed, err := tr.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 || store.Len() != 1 {
		t.Errorf("removed = %d, remaining = %d; want 1, 1", removed, store.Len())
	}
}

func drain(t *testing.T, sub *Subscription) []models.JobStatusRecord {
	t.Helper()
	var got []models.JobStatusRecord
	timeout := time.After(2 * time.Second)
	for {
		select {
		case rec, ok := <-sub.C:
			if !ok {
				return got
			}
			got = append(got, rec)
		case <-timeout:
			t.Fatal("subscription was not closed")
			return got
		}
	}
}

func TestSubscribe_ReceivesEveryUpdateInOrder(t *testing.T) {
	tr, _, _ := newTestTracker()
	ctx := context.Background()

	sub, err := tr.Subscribe(ctx, ns, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	phases := []string{"initializing", "load_template", "parse", "map_fields"}
	for i, p := range phases {
		_, _ = tr.SetStatus(ctx, ns, "job-1", Update{Phase: p, Progress: i * 10})
	}
	_, _ = tr.SetStatus(ctx, ns, "job-1", Update{Status: models.StatusCompleted, Phase: "complete"})

	got := drain(t, sub)
	if len(got) != len(phases)+1 {
		t.Fatalf("received %d events, want %d", len(got), len(phases)+1)
	}
	for i, p := range phases {
		if got[i].Phase != p {
			t.Errorf("event %d phase = %s, want %s", i, got[i].Phase, p)
		}
	}
	if got[len(got)-1].Status != models.StatusCompleted {
		t.Errorf("last event = %s, want completed", got[len(got)-1].Status)
	}
	if n := tr.Listeners(ns, "job-1"); n != 0 {
		t.Errorf("Listeners() = %d after terminal, want 0", n)
	}
}

func TestSubscribe_LateListenerGetsSnapshot(t *testing.T) {
	tr, _, _ := newTestTracker()
	ctx := context.Background()

	_, _ = tr.SetStatus(ctx, ns, "job-1", Update{Phase: "fill_fields", Progress: 60})
	sub, err := tr.Subscribe(ctx, ns, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	select {
	case rec := <-sub.C:
		if rec.Phase != "fill_fields" || rec.ProgressPercent != 60 {
			t.Errorf("snapshot = %+v", rec)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestSubscribe_AfterTerminalClosesImmediately(t *testing.T) {
	tr, _, _ := newTestTracker()
	ctx := context.Background()

	_, _ = tr.SetStatus(ctx, ns, "job-1", Update{Status: models.StatusFailed, Error: "Template not found"})
	sub, err := tr.Subscribe(ctx, ns, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	got := drain(t, sub)
	if len(got) != 1 || got[0].Status != models.StatusFailed {
		t.Errorf("events = %+v, want one failed snapshot", got)
	}
	sub.Close()
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	tr, _, _ := newTestTracker()
	sub, err := tr.Subscribe(context.Background(), ns, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if n := tr.Listeners(ns, "job-1"); n != 1 {
		t.Fatalf("Listeners() = %d, want 1", n)
	}
	sub.Close()
	sub.Close()
	if n := tr.Listeners(ns, "job-1"); n != 0 {
		t.Errorf("Listeners() = %d after Close, want 0", n)
	}
	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Close")
	}
}

func TestSetStatus_SlowListenerIsClosedNotSkipped(t *testing.T) {
	tr, _, _ := newTestTracker()
	ctx := context.Background()

	sub, err := tr.Subscribe(ctx, ns, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	total := listenerBuffer * 3
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			_, _ = tr.SetStatus(ctx, ns, "job-1", Update{Phase: "fill_fields", Message: strconv.Itoa(i)})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer blocked on a slow listener")
	}

	got := drain(t, sub)
	if len(got) != listenerBuffer {
		t.Fatalf("received %d events, want %d before the listener was closed", len(got), listenerBuffer)
	}
	for i, rec := range got {
		if rec.Message != strconv.Itoa(i) {
			t.Fatalf("event %d message = %q, want %d: stream has a gap", i, rec.Message, i)
		}
	}
	if n := tr.Listeners(ns, "job-1"); n != 0 {
		t.Errorf("Listeners() = %d, want slow listener detached", n)
	}

	again, err := tr.Subscribe(ctx, ns, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	select {
	case rec := <-again.C:
		if want := strconv.Itoa(total - 1); rec.Message != want {
			t.Errorf("snapshot message = %q, want %q", rec.Message, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot after resubscribe")
	}
}

func TestCreate_RejectsLiveRecord(t *testing.T) {
	tr, _, clock := newTestTracker()
	ctx := context.Background()

	rec, err := tr.Create(ctx, ns, "job-1", "Queued")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.Status != models.StatusPending || rec.ProgressPercent != 0 {
		t.Errorf("created = %+v, want pending at 0%%", rec)
	}
	_, _ = tr.SetStatus(ctx, ns, "job-1", Update{Phase: "fill_fields", Progress: 40})

	if _, err := tr.Create(ctx, ns, "job-1", "Queued"); !errors.Is(err, ErrJobExists) {
		t.Fatalf("second Create() error = %v, want ErrJobExists", err)
	}
	if cur, _ := tr.GetStatus(ctx, ns, "job-1"); cur.ProgressPercent != 40 {
		t.Errorf("record overwritten: %+v", cur)
	}

	clock.Advance(16 * time.Minute)
	if _, err := tr.Create(ctx, ns, "job-1", "Queued"); err != nil {
		t.Errorf("Create() after expiry error = %v", err)
	}
}

func TestCreate_ConcurrentCallersOneWins(t *testing.T) {
	tr, _, _ := newTestTracker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		exists  int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.Create(ctx, ns, "job-1", "Queued")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, ErrJobExists):
				exists++
			default:
				t.Errorf("Create() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if created != 1 || exists != 31 {
		t.Errorf("created = %d, exists = %d; want 1, 31", created, exists)
	}
}

func TestCreate_NotifiesEarlySubscriber(t *testing.T) {
	tr, _, _ := newTestTracker()
	ctx := context.Background()

	sub, err := tr.Subscribe(ctx, ns, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	if _, err := tr.Create(ctx, ns, "job-1", "Queued"); err != nil {
		t.Fatal(err)
	}
	select {
	case rec := <-sub.C:
		if rec.Status != models.StatusPending {
			t.Errorf("event = %+v, want pending", rec)
		}
	case <-time.After(time.Second):
		t.Fatal("no event for created job")
	}
}

func TestTracker_ConcurrentJobs(t *testing.T) {
	tr, _, _ := newTestTracker()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for p := 0; p <= 100; p += 10 {
				if _, err := tr.SetStatus(ctx, ns, id, Update{Progress: p}); err != nil {
					t.Errorf("SetStatus(%s) error = %v", id, err)
					return
				}
			}
			_, _ = tr.SetStatus(ctx, ns, id, Update{Status: models.StatusCompleted})
		}(string(rune('a' + i)))
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		rec, _ := tr.GetStatus(ctx, ns, string(rune('a'+i)))
		if rec == nil || rec.Status != models.StatusCompleted {
			t.Errorf("job %c = %+v", 'a'+i, rec)
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), Options{SweepInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRedisStore_Key(t *testing.T) {
	s := NewRedisStore(nil, "casedocflow:status")
	if got := s.recordKey(ns, "job-1"); got != "casedocflow:status:pdf-generation:job-1" {
		t.Errorf("recordKey() = %q", got)
	}
	if got := NewRedisStore(nil, "").recordKey(ns, "job-1"); got != "pdf-generation:job-1" {
		t.Errorf("recordKey() without prefix = %q", got)
	}
}
