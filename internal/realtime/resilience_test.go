package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yoockh/vtutor/internal/models"
	"github.com/yoockh/vtutor/internal/utils"
)

type fakeConn struct {
	mu      sync.Mutex
	pingErr error
	events  chan TransportEvent
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan TransportEvent, 16)}
}

func (c *fakeConn) setPingErr(err error) {
	c.mu.Lock()
	c.pingErr = err
	c.mu.Unlock()
}

func (c *fakeConn) Ping(ctx context.Context) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pingErr != nil {
		return 0, c.pingErr
	}
	return time.Millisecond, nil
}

func (c *fakeConn) Events() <-chan TransportEvent                      { return c.events }
func (c *fakeConn) SendCommand(ctx context.Context, cmd Command) error { return nil }
func (c *fakeConn) Close() error                                       { return nil }

// drop simulates the remote end going away.
func (c *fakeConn) drop() { close(c.events) }

type fakeTransport struct {
	mu     sync.Mutex
	joins  int
	joinFn func(n int) (Conn, error)
}

func (t *fakeTransport) Join(ctx context.Context, target Target) (Conn, error) {
	t.mu.Lock()
	t.joins++
	n := t.joins
	fn := t.joinFn
	t.mu.Unlock()
	return fn(n)
}

func (t *fakeTransport) joinCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.joins
}

func fastConfig() Config {
	return Config{
		ProbeInterval:    5 * time.Millisecond,
		ProbeTimeout:     5 * time.Millisecond,
		ConnectTimeout:   50 * time.Millisecond,
		FailureThreshold: 3,
		DegradedGrace:    time.Hour,
		Backoff:          Backoff{Base: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2, MaxAttempts: 3},
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func countKind(events []models.ConnectionEvent, kind models.ConnectionEventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestManagerConnectEmitsConnecting(t *testing.T) {
	conn := newFakeConn()
	tr := &fakeTransport{joinFn: func(int) (Conn, error) { return conn, nil }}
	m := NewManager(tr, Target{Room: "r"}, fastConfig(), nil)
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	evs := m.Events()
	if len(evs) < 2 || evs[0].Kind != models.EventConnecting || evs[1].Kind != models.EventConnected {
		t.Fatalf("unexpected event prefix: %+v", evs)
	}
	if m.State() != models.EventConnected {
		t.Fatalf("State = %v, want connected", m.State())
	}
}

func TestManagerConnectConfigErrorSynchronous(t *testing.T) {
	tr := &fakeTransport{joinFn: func(int) (Conn, error) {
		return nil, fmt.Errorf("bad url: %w", utils.ErrConfig)
	}}
	m := NewManager(tr, Target{Room: "r"}, fastConfig(), nil)

	err := m.Connect(context.Background())
	if !utils.IsCode(err, utils.CodeInvalidArgument) {
		t.Fatalf("Connect err = %v, want INVALID_ARGUMENT", err)
	}
	// config errors never enter the retry loop
	if got := countKind(m.Events(), models.EventReconnecting); got != 0 {
		t.Fatalf("reconnecting events = %d, want 0", got)
	}
	if tr.joinCount() != 1 {
		t.Fatalf("joins = %d, want 1", tr.joinCount())
	}
}

func TestManagerConnectAuthErrorTerminal(t *testing.T) {
	tr := &fakeTransport{joinFn: func(int) (Conn, error) {
		return nil, fmt.Errorf("401: %w", utils.ErrAuth)
	}}
	m := NewManager(tr, Target{Room: "r"}, fastConfig(), nil)

	err := m.Connect(context.Background())
	if !utils.IsCode(err, utils.CodeUnauthorized) {
		t.Fatalf("Connect err = %v, want UNAUTHORIZED", err)
	}
	evs := m.Events()
	if countKind(evs, models.EventFailed) != 1 {
		t.Fatalf("failed events = %d, want 1: %+v", countKind(evs, models.EventFailed), evs)
	}
	if tr.joinCount() != 1 {
		t.Fatalf("joins = %d, want 1 (auth must not be retried)", tr.joinCount())
	}
}

func TestManagerDegradedEmittedExactlyOnce(t *testing.T) {
	conn := newFakeConn()
	conn.setPingErr(errors.New("probe timeout"))
	tr := &fakeTransport{joinFn: func(int) (Conn, error) { return conn, nil }}
	m := NewManager(tr, Target{Room: "r"}, fastConfig(), nil)
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, 2*time.Second, "degraded event", func() bool {
		return countKind(m.Events(), models.EventDegraded) >= 1
	})

	// probes keep failing; the degraded transition must not repeat
	time.Sleep(50 * time.Millisecond)
	if got := countKind(m.Events(), models.EventDegraded); got != 1 {
		t.Fatalf("degraded events = %d, want 1", got)
	}
	if fails := m.Metrics().ConsecutiveFailures; fails < 3 {
		t.Fatalf("ConsecutiveFailures = %d, want >= 3", fails)
	}
}

func TestManagerDegradedClearsOnHealthyProbe(t *testing.T) {
	conn := newFakeConn()
	conn.setPingErr(errors.New("probe timeout"))
	tr := &fakeTransport{joinFn: func(int) (Conn, error) { return conn, nil }}
	m := NewManager(tr, Target{Room: "r"}, fastConfig(), nil)
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, 2*time.Second, "degraded event", func() bool {
		return countKind(m.Events(), models.EventDegraded) >= 1
	})

	conn.setPingErr(nil)
	waitFor(t, 2*time.Second, "failure counter reset", func() bool {
		return m.Metrics().ConsecutiveFailures == 0
	})
}

func TestManagerReconnectsAfterDrop(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	tr := &fakeTransport{joinFn: func(n int) (Conn, error) {
		if n == 1 {
			return conn1, nil
		}
		return conn2, nil
	}}
	m := NewManager(tr, Target{Room: "r"}, fastConfig(), nil)
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	conn1.drop()

	waitFor(t, 2*time.Second, "reconnect", func() bool {
		return countKind(m.Events(), models.EventConnected) == 2
	})

	evs := m.Events()
	if countKind(evs, models.EventDisconnected) != 1 {
		t.Fatalf("disconnected events = %d, want 1: %+v", countKind(evs, models.EventDisconnected), evs)
	}
	if countKind(evs, models.EventReconnecting) < 1 {
		t.Fatalf("expected at least one reconnecting event: %+v", evs)
	}
	if m.ReconnectAttempts() < 1 {
		t.Fatalf("ReconnectAttempts = %d, want >= 1", m.ReconnectAttempts())
	}
	if m.Metrics().ConsecutiveFailures != 0 {
		t.Fatalf("metrics not reset after reconnect: %+v", m.Metrics())
	}
}

func TestManagerGivesUpAfterAttemptCeiling(t *testing.T) {
	conn := newFakeConn()
	tr := &fakeTransport{joinFn: func(n int) (Conn, error) {
		if n == 1 {
			return conn, nil
		}
		return nil, errors.New("still down")
	}}
	cfg := fastConfig()
	m := NewManager(tr, Target{Room: "r"}, cfg, nil)
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.drop()

	waitFor(t, 2*time.Second, "terminal failure", func() bool {
		return countKind(m.Events(), models.EventFailed) >= 1
	})

	// no further attempts after exhaustion
	joins := tr.joinCount()
	time.Sleep(50 * time.Millisecond)

	evs := m.Events()
	if got := countKind(evs, models.EventFailed); got != 1 {
		t.Fatalf("failed events = %d, want exactly 1: %+v", got, evs)
	}
	if got := countKind(evs, models.EventReconnecting); got != cfg.Backoff.MaxAttempts {
		t.Fatalf("reconnecting events = %d, want %d", got, cfg.Backoff.MaxAttempts)
	}
	if tr.joinCount() != joins {
		t.Fatalf("joins grew after giving up: %d -> %d", joins, tr.joinCount())
	}
	if m.State() != models.EventFailed {
		t.Fatalf("State = %v, want failed", m.State())
	}
}

func TestManagerAuthRejectionStopsReconnect(t *testing.T) {
	conn := newFakeConn()
	tr := &fakeTransport{joinFn: func(n int) (Conn, error) {
		if n == 1 {
			return conn, nil
		}
		return nil, fmt.Errorf("401: %w", utils.ErrAuth)
	}}
	m := NewManager(tr, Target{Room: "r"}, fastConfig(), nil)
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.drop()

	waitFor(t, 2*time.Second, "terminal failure", func() bool {
		return countKind(m.Events(), models.EventFailed) >= 1
	})
	time.Sleep(50 * time.Millisecond)

	if tr.joinCount() != 2 {
		t.Fatalf("joins = %d, want 2 (one initial, one rejected)", tr.joinCount())
	}
	if got := countKind(m.Events(), models.EventReconnecting); got != 1 {
		t.Fatalf("reconnecting events = %d, want 1", got)
	}
}

func TestManagerPauseCancelsPendingRetry(t *testing.T) {
	conn := newFakeConn()
	tr := &fakeTransport{joinFn: func(n int) (Conn, error) {
		if n == 1 {
			return conn, nil
		}
		return nil, errors.New("still down")
	}}
	cfg := fastConfig()
	cfg.Backoff = Backoff{Base: time.Hour, Max: time.Hour, Multiplier: 2, MaxAttempts: 3}
	m := NewManager(tr, Target{Room: "r"}, cfg, nil)
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.drop()

	waitFor(t, 2*time.Second, "retry scheduled", func() bool {
		return countKind(m.Events(), models.EventReconnecting) == 1
	})

	m.Pause()
	time.Sleep(30 * time.Millisecond)

	if tr.joinCount() != 1 {
		t.Fatalf("joins = %d, want 1 (pause must cancel the pending retry)", tr.joinCount())
	}
	if got := countKind(m.Events(), models.EventFailed); got != 0 {
		t.Fatalf("failed events = %d, want 0 while paused", got)
	}
}

func TestManagerCloseSuppressesLateEvents(t *testing.T) {
	conn := newFakeConn()
	tr := &fakeTransport{joinFn: func(n int) (Conn, error) {
		if n == 1 {
			return conn, nil
		}
		return nil, errors.New("still down")
	}}
	cfg := fastConfig()
	cfg.Backoff = Backoff{Base: time.Hour, Max: time.Hour, Multiplier: 2, MaxAttempts: 3}
	m := NewManager(tr, Target{Room: "r"}, cfg, nil)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.drop()

	waitFor(t, 2*time.Second, "retry scheduled", func() bool {
		return countKind(m.Events(), models.EventReconnecting) == 1
	})

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	n := m.EventCount()
	time.Sleep(30 * time.Millisecond)
	if m.EventCount() != n {
		t.Fatalf("events emitted after Close: %d -> %d", n, m.EventCount())
	}
}

func TestManagerEventOrdering(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	tr := &fakeTransport{joinFn: func(n int) (Conn, error) {
		if n == 1 {
			return conn1, nil
		}
		return conn2, nil
	}}
	m := NewManager(tr, Target{Room: "r"}, fastConfig(), nil)
	defer m.Close()

	var mu sync.Mutex
	var observed []models.ConnectionEventKind
	m.OnEvent(func(ev models.ConnectionEvent) {
		mu.Lock()
		observed = append(observed, ev.Kind)
		mu.Unlock()
	})

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn1.drop()

	waitFor(t, 2*time.Second, "reconnect", func() bool {
		return countKind(m.Events(), models.EventConnected) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	want := []models.ConnectionEventKind{
		models.EventConnecting,
		models.EventConnected,
		models.EventDisconnected,
		models.EventReconnecting,
		models.EventConnected,
	}
	if len(observed) < len(want) {
		t.Fatalf("observed %d events, want at least %d: %v", len(observed), len(want), observed)
	}
	for i, k := range want {
		if observed[i] != k {
			t.Fatalf("event[%d] = %v, want %v (full: %v)", i, observed[i], k, observed)
		}
	}
}
