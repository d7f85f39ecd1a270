package realtime

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"unitask/domain"
)

type fakeConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), out: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeConn) WriteMessage(data []byte) error {
	select {
	case f.out <- data:
		return nil
	case <-f.closed:
		return io.ErrClosedPipe
	}
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// inject delivers a server-originated envelope to the client.
func (f *fakeConn) inject(t *testing.T, env Envelope) {
	t.Helper()
	data, err := sonic.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.in <- data
}

type fakeDialer struct {
	mu       sync.Mutex
	conns    []*fakeConn
	dials    int
	failNext error
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failNext != nil {
		err := d.failNext
		d.failNext = nil
		return nil, err
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func newTestClient(t *testing.T, cfg Config, handlers Handlers) (*Client, *fakeDialer) {
	t.Helper()
	if cfg.BaseURL == "" {
		cfg.BaseURL = "ws://localhost/ws"
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID = "p1"
	}
	logger, _ := logtest.NewNullLogger()
	dialer := &fakeDialer{}
	client := NewClient(cfg, dialer, handlers, logger)
	t.Cleanup(func() { client.Close() })
	return client, dialer
}

func mustEnvelope(t *testing.T, msgType string, payload any) Envelope {
	t.Helper()
	env, err := NewEnvelope(msgType, payload)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestDuplicateMessageIDDispatchedOnce(t *testing.T) {
	var mu sync.Mutex
	var got []domain.GanttTask
	client, dialer := newTestClient(t, Config{}, Handlers{
		OnTask: func(task domain.GanttTask) {
			mu.Lock()
			got = append(got, task)
			mu.Unlock()
		},
	})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := dialer.lastConn()

	env := mustEnvelope(t, TypeTaskUpdate, domain.GanttTask{ID: "g1", Title: "design"})
	conn.inject(t, env)
	conn.inject(t, env)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	}, "task update never dispatched")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", len(got))
	}
}

func TestBatchWindowFlushesSingleWrite(t *testing.T) {
	client, dialer := newTestClient(t, Config{BatchDelay: 20 * time.Millisecond}, Handlers{})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := dialer.lastConn()

	for _, title := range []string{"a", "b", "c"} {
		if err := client.SendTaskUpdate(domain.GanttTask{ID: title, Title: title}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	var frame []byte
	select {
	case frame = <-conn.out:
	case <-time.After(time.Second):
		t.Fatal("no outbound write before deadline")
	}

	var env Envelope
	if err := sonic.Unmarshal(frame, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != TypeBatch {
		t.Fatalf("expected batch envelope, got %q", env.Type)
	}
	var inner []Envelope
	if err := sonic.Unmarshal(env.Data, &inner); err != nil {
		t.Fatalf("unmarshal batch: %v", err)
	}
	if len(inner) != 3 {
		t.Fatalf("expected 3 nested envelopes, got %d", len(inner))
	}

	select {
	case extra := <-conn.out:
		t.Fatalf("unexpected second write: %s", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSingleQueuedMessageSentBare(t *testing.T) {
	client, dialer := newTestClient(t, Config{BatchDelay: 20 * time.Millisecond}, Handlers{})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := dialer.lastConn()

	if err := client.SendTaskUpdate(domain.GanttTask{ID: "g1", Title: "solo"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case frame := <-conn.out:
		var env Envelope
		if err := sonic.Unmarshal(frame, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.Type != TypeTaskUpdate {
			t.Fatalf("single message must go out bare, got %q", env.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no outbound write before deadline")
	}
}

func TestSendWhileDisconnectedIsSilentNoop(t *testing.T) {
	applied := 0
	client, dialer := newTestClient(t, Config{Optimistic: true}, Handlers{
		OnTask: func(domain.GanttTask) { applied++ },
	})

	if err := client.SendTaskUpdate(domain.GanttTask{ID: "g1", Title: "offline"}); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
	if dialer.dialCount() != 0 {
		t.Fatal("send must not dial")
	}
	// The optimistic local apply still happens while offline.
	if applied != 1 {
		t.Fatalf("expected one optimistic apply, got %d", applied)
	}
}

func TestOptimisticSendThenConfirmAppliesTwice(t *testing.T) {
	var mu sync.Mutex
	applied := 0
	client, dialer := newTestClient(t, Config{Optimistic: true}, Handlers{
		OnTask: func(domain.GanttTask) {
			mu.Lock()
			applied++
			mu.Unlock()
		},
	})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := dialer.lastConn()

	task := domain.GanttTask{ID: "g1", Title: "optimistic"}
	if err := client.SendTaskUpdate(task); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case <-conn.out:
	case <-time.After(time.Second):
		t.Fatal("no outbound write")
	}

	conn.inject(t, mustEnvelope(t, TypeTaskUpdateConfirmed, task))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return applied == 2
	}, "confirmation must re-apply the task")
}

func TestBatchEnvelopeUnwrappedInOrder(t *testing.T) {
	var mu sync.Mutex
	var titles []string
	client, dialer := newTestClient(t, Config{}, Handlers{
		OnTask: func(task domain.GanttTask) {
			mu.Lock()
			titles = append(titles, task.Title)
			mu.Unlock()
		},
	})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := dialer.lastConn()

	inner := []Envelope{
		mustEnvelope(t, TypeTaskUpdate, domain.GanttTask{ID: "g1", Title: "first"}),
		mustEnvelope(t, TypeTaskUpdate, domain.GanttTask{ID: "g2", Title: "second"}),
	}
	conn.inject(t, mustEnvelope(t, TypeBatch, inner))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(titles) == 2
	}, "batch contents never dispatched")

	mu.Lock()
	defer mu.Unlock()
	if titles[0] != "first" || titles[1] != "second" {
		t.Fatalf("batch order not preserved: %v", titles)
	}
}

func TestRosterRemovesUserOnLeft(t *testing.T) {
	client, dialer := newTestClient(t, Config{}, Handlers{})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn := dialer.lastConn()

	conn.inject(t, mustEnvelope(t, TypeUserActivity, UserActivity{UserID: "u1", UserName: "Ann", Action: ActivityEditing, TaskID: "g1"}))
	conn.inject(t, mustEnvelope(t, TypeUserActivity, UserActivity{UserID: "u2", UserName: "Bo", Action: ActivityViewing}))
	conn.inject(t, mustEnvelope(t, TypeUserActivity, UserActivity{UserID: "u1", Action: ActivityLeft}))

	waitFor(t, func() bool {
		users := client.ActiveUsers()
		return len(users) == 1 && users[0].UserID == "u2"
	}, "roster should hold only u2 after u1 left")
}

func TestConflictSurfacedToHandler(t *testing.T) {
	var mu sync.Mutex
	var got *Conflict
	client, dialer := newTestClient(t, Config{}, Handlers{
		OnConflict: func(c Conflict) {
			mu.Lock()
			got = &c
			mu.Unlock()
		},
	})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	dialer.lastConn().inject(t, mustEnvelope(t, TypeConflict, Conflict{Type: "task", LocalVersion: 3, ServerVersion: 5}))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	}, "conflict never surfaced")
	mu.Lock()
	defer mu.Unlock()
	if got.LocalVersion != 3 || got.ServerVersion != 5 {
		t.Fatalf("unexpected conflict payload: %+v", got)
	}
}

func TestReconnectsAfterConnectionDrop(t *testing.T) {
	client, dialer := newTestClient(t, Config{ReconnectDelay: 10 * time.Millisecond}, Handlers{})
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	dialer.lastConn().Close()

	waitFor(t, func() bool { return dialer.dialCount() >= 2 }, "client never redialed")
	waitFor(t, func() bool { return client.State() == StateConnected }, "client never reached connected again")
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	client, dialer := newTestClient(t, Config{ReconnectDelay: 30 * time.Millisecond}, Handlers{})
	dialer.failNext = io.ErrUnexpectedEOF

	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("expected dial failure")
	}
	if client.Err() == nil {
		t.Fatal("dial failure must be surfaced via Err")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if dialer.dialCount() != 1 {
		t.Fatalf("reconnect fired after Close, dials=%d", dialer.dialCount())
	}
	if err := client.Connect(context.Background()); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSeenSetEvictsOldest(t *testing.T) {
	s := newSeenSet(2)
	if !s.add("a") || !s.add("b") {
		t.Fatal("fresh ids must be accepted")
	}
	if s.add("a") {
		t.Fatal("a is still in the window")
	}
	if !s.add("c") {
		t.Fatal("c is fresh")
	}
	// c evicted a, so a is acceptable again.
	if !s.add("a") {
		t.Fatal("a should have been evicted")
	}
}
