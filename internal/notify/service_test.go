package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pawtrack/internal/transport"
	logx "pawtrack/pkg/logx"
)

// recordingSender captures sends in order and signals each one.
type recordingSender struct {
	mu    sync.Mutex
	sent  []transport.Notification
	errCh map[string]error
	gotCh chan transport.Notification
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		errCh: map[string]error{},
		gotCh: make(chan transport.Notification, 64),
	}
}

func (r *recordingSender) Send(ctx context.Context, n transport.Notification) error {
	r.mu.Lock()
	r.sent = append(r.sent, n)
	err := r.errCh[n.ID]
	r.mu.Unlock()
	r.gotCh <- n
	return err
}

func (r *recordingSender) wait(t *testing.T) transport.Notification {
	t.Helper()
	select {
	case n := <-r.gotCh:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for send")
		return transport.Notification{}
	}
}

func testConfig() Config {
	return Config{
		Enabled:      true,
		PollInterval: 10 * time.Millisecond,
		MaxQueue:     16,
	}
}

func notif(subject string, prio transport.Priority, msg string) transport.Notification {
	return transport.Notification{Subject: subject, Priority: prio, Title: "test", Message: msg}
}

func TestEnqueueAcceptedBeforeStart(t *testing.T) {
	t.Parallel()
	sender := newRecordingSender()
	svc := New(testConfig(), sender, logx.Nop())

	// A freshly constructed dispatcher accepts work; only Stop closes intake.
	if err := svc.Enqueue(notif("buddy", transport.PriorityNormal, "queued early")); err != nil {
		t.Fatalf("Enqueue before Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	if got := sender.wait(t); got.Message != "queued early" {
		t.Fatalf("delivered %q, want the pre-start notification", got.Message)
	}
}

func TestUrgentBeatsNormal(t *testing.T) {
	t.Parallel()
	sender := newRecordingSender()
	svc := New(testConfig(), sender, logx.Nop())

	// Enqueued before the dispatcher starts draining: urgent must win even
	// though normal went in first.
	if err := svc.Enqueue(notif("buddy", transport.PriorityNormal, "normal one")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := svc.Enqueue(notif("buddy", transport.PriorityUrgent, "urgent one")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	if first := sender.wait(t); first.Priority != transport.PriorityUrgent {
		t.Fatalf("first send priority = %s, want urgent", first.Priority)
	}
	if second := sender.wait(t); second.Priority != transport.PriorityNormal {
		t.Fatalf("second send priority = %s, want normal", second.Priority)
	}
}

func TestFIFOWithinPriority(t *testing.T) {
	t.Parallel()
	sender := newRecordingSender()
	svc := New(testConfig(), sender, logx.Nop())

	for _, msg := range []string{"a", "b", "c"} {
		if err := svc.Enqueue(notif("buddy", transport.PriorityUrgent, msg)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	for _, want := range []string{"a", "b", "c"} {
		if got := sender.wait(t); got.Message != want {
			t.Fatalf("send order: got %q, want %q", got.Message, want)
		}
	}
}

func TestQuietHoursSuppressNormalNotUrgent(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.QuietHours = QuietHoursConfig{Enabled: true, Start: "22:00", End: "07:00"}
	sender := newRecordingSender()
	svc := New(cfg, sender, logx.Nop())
	svc.gate.now = func() time.Time {
		return time.Date(2026, 8, 28, 23, 30, 0, 0, time.Local)
	}

	if err := svc.Enqueue(notif("buddy", transport.PriorityNormal, "late reminder")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := svc.Enqueue(notif("buddy", transport.PriorityUrgent, "health alert")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	st := svc.Stats()
	if st.Suppressed != 1 {
		t.Fatalf("suppressed = %d, want 1", st.Suppressed)
	}
	if st.QueuedNormal != 0 || st.QueuedUrgent != 1 {
		t.Fatalf("queues = %d normal / %d urgent, want 0/1", st.QueuedNormal, st.QueuedUrgent)
	}
}

func TestQuietHoursWindowWrapsMidnight(t *testing.T) {
	t.Parallel()
	if !inWindow(time.Date(2026, 8, 28, 23, 30, 0, 0, time.UTC), "22:00", "07:00") {
		t.Fatal("23:30 should be inside 22:00-07:00")
	}
	if !inWindow(time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC), "22:00", "07:00") {
		t.Fatal("06:00 should be inside 22:00-07:00")
	}
	if inWindow(time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC), "22:00", "07:00") {
		t.Fatal("12:00 should be outside 22:00-07:00")
	}
}

func TestPerSubjectRateLimit(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.RatePerMinute = 2
	svc := New(cfg, newRecordingSender(), logx.Nop())

	for i := 0; i < 5; i++ {
		if err := svc.Enqueue(notif("buddy", transport.PriorityNormal, "spam")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	// A different subject has its own budget.
	if err := svc.Enqueue(notif("rex", transport.PriorityNormal, "ok")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	st := svc.Stats()
	if st.Suppressed != 3 {
		t.Fatalf("suppressed = %d, want 3 (burst of 2 for buddy)", st.Suppressed)
	}
	if st.QueuedNormal != 3 {
		t.Fatalf("queued normal = %d, want 3", st.QueuedNormal)
	}
}

func TestQueueFull(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxQueue = 2
	svc := New(cfg, newRecordingSender(), logx.Nop())

	for i := 0; i < 2; i++ {
		if err := svc.Enqueue(notif("buddy", transport.PriorityNormal, "n")); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if err := svc.Enqueue(notif("buddy", transport.PriorityNormal, "n")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestDisabledAndStopped(t *testing.T) {
	t.Parallel()
	svc := New(Config{Enabled: false}, newRecordingSender(), logx.Nop())
	if err := svc.Enqueue(notif("buddy", transport.PriorityNormal, "n")); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}

	svc2 := New(testConfig(), newRecordingSender(), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc2.Start(ctx)
	svc2.Stop(context.Background())
	if err := svc2.Enqueue(notif("buddy", transport.PriorityNormal, "n")); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestSendFailureIsNotRequeued(t *testing.T) {
	t.Parallel()
	sender := newRecordingSender()
	svc := New(testConfig(), sender, logx.Nop())

	n := notif("buddy", transport.PriorityUrgent, "flaky")
	n.ID = "fixed-id"
	sender.errCh["fixed-id"] = errors.New("transport down")

	if err := svc.Enqueue(n); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	_ = sender.wait(t)
	// Give the worker a few poll cycles; the failed send must not reappear.
	time.Sleep(50 * time.Millisecond)
	sender.mu.Lock()
	attempts := len(sender.sent)
	sender.mu.Unlock()
	if attempts != 1 {
		t.Fatalf("send attempts = %d, want 1 (at-most-once)", attempts)
	}
	if st := svc.Stats(); st.Failed != 1 || st.Sent != 0 {
		t.Fatalf("stats = %+v, want 1 failed / 0 sent", st)
	}
}

func TestEnqueueAssignsIDAndTimestamp(t *testing.T) {
	t.Parallel()
	svc := New(testConfig(), newRecordingSender(), logx.Nop())

	if err := svc.Enqueue(notif("buddy", transport.PriorityNormal, "n")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.normal) != 1 {
		t.Fatalf("queued = %d, want 1", len(svc.normal))
	}
	if svc.normal[0].ID == "" || svc.normal[0].EnqueuedAt.IsZero() {
		t.Fatalf("id/timestamp not assigned: %+v", svc.normal[0])
	}
}
