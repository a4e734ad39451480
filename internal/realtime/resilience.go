package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/vtutor/internal/models"
	"github.com/yoockh/vtutor/internal/utils"
)

type Config struct {
	ProbeInterval  time.Duration // default 5s
	ProbeTimeout   time.Duration // default 5s
	ConnectTimeout time.Duration // default 10s

	// FailureThreshold consecutive failed probes reclassify the connection as
	// degraded; degraded longer than DegradedGrace triggers a reconnect cycle.
	FailureThreshold int           // default 3
	DegradedGrace    time.Duration // default 15s

	Backoff Backoff
}

func (c Config) withDefaults() Config {
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 5 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.DegradedGrace <= 0 {
		c.DegradedGrace = 15 * time.Second
	}
	if c.Backoff.Base <= 0 {
		c.Backoff = DefaultBackoff()
	}
	return c
}

type ctrlKind int

const (
	ctrlPause ctrlKind = iota
	ctrlResume
)

type reconnectOutcome int

const (
	reconnectOK reconnectOutcome = iota
	reconnectAborted
	reconnectPaused
	reconnectStopped
)

// Manager owns exactly one transport connection for one session. It probes
// health on a fixed interval, reclassifies the link as degraded after
// consecutive probe failures, and recovers drops with bounded jittered
// backoff. All events are emitted from a single goroutine, so observers see
// them in the order they occur.
type Manager struct {
	transport Transport
	target    Target
	cfg       Config
	log       *logrus.Entry

	mu         sync.Mutex
	observers  []func(models.ConnectionEvent)
	onData     func(TransportEvent)
	events     []models.ConnectionEvent
	last       models.ConnectionEventKind
	metrics    models.HealthMetrics
	conn       Conn
	reconnects int
	stopped    bool // retries exhausted or auth rejected; no further attempts

	ctrl   chan ctrlKind
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(transport Transport, target Target, cfg Config, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Manager{
		transport: transport,
		target:    target,
		cfg:       cfg.withDefaults(),
		log:       log.WithField("room", target.Room),
		ctrl:      make(chan ctrlKind, 4),
	}
}

// OnEvent registers an observer for the ConnectionEvent stream. Registration
// must happen before Connect; fan-out to multiple observers is permitted.
func (m *Manager) OnEvent(fn func(models.ConnectionEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// OnData registers the consumer for inbound audio/data traffic.
func (m *Manager) OnData(fn func(TransportEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onData = fn
}

// Connect performs the initial join synchronously. Config errors are returned
// without entering the retry loop; auth rejections emit a terminal failed
// event. On success the probe/reconnect loop starts in the background.
func (m *Manager) Connect(ctx context.Context) error {
	const op = "ResilienceManager.Connect"

	m.emit(models.EventConnecting, "joining "+m.target.Room)

	cctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	conn, err := m.transport.Join(cctx, m.target)
	cancel()
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrConfig):
			return utils.E(utils.CodeInvalidArgument, op, "malformed transport config", err)
		case errors.Is(err, utils.ErrAuth):
			m.mu.Lock()
			m.stopped = true
			m.mu.Unlock()
			m.emit(models.EventFailed, "auth rejected")
			return utils.E(utils.CodeUnauthorized, op, "transport rejected credentials", err)
		default:
			return utils.E(utils.CodeUnavailable, op, "transport join failed", err)
		}
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	m.emit(models.EventConnected, "joined "+m.target.Room)

	runCtx, cancelRun := context.WithCancel(context.Background())
	m.cancel = cancelRun
	m.done = make(chan struct{})
	go m.run(runCtx)
	return nil
}

// Pause suspends probing and cancels any pending reconnect timer. The
// transport, if alive, is kept warm.
func (m *Manager) Pause() { m.signal(ctrlPause) }

// Resume restarts probing; if the link died while paused, a reconnect cycle
// starts on the next tick.
func (m *Manager) Resume() { m.signal(ctrlResume) }

func (m *Manager) signal(k ctrlKind) {
	if m.done == nil {
		return
	}
	select {
	case m.ctrl <- k:
	case <-m.done:
	}
}

// Close stops the loop and closes the connection. A canceled retry never fires
// a late connected/failed event: all emits happen on the loop goroutine, which
// Close awaits.
func (m *Manager) Close() error {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if m.done != nil {
		<-m.done
	}

	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (m *Manager) SendCommand(ctx context.Context, cmd Command) error {
	const op = "ResilienceManager.SendCommand"

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return utils.E(utils.CodeUnavailable, op, "no live connection", nil)
	}
	return conn.SendCommand(ctx, cmd)
}

func (m *Manager) Metrics() models.HealthMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

// State returns the kind of the most recent ConnectionEvent.
func (m *Manager) State() models.ConnectionEventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Events returns a snapshot of the append-only event log.
func (m *Manager) Events() []models.ConnectionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ConnectionEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Manager) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	paused := false
	degraded := false
	var degradedSince time.Time

	for {
		m.mu.Lock()
		conn := m.conn
		stopped := m.stopped
		m.mu.Unlock()

		var evCh <-chan TransportEvent
		if conn != nil {
			evCh = conn.Events()
		}

		select {
		case <-ctx.Done():
			return

		case k := <-m.ctrl:
			switch k {
			case ctrlPause:
				paused = true
				degraded = false
			case ctrlResume:
				paused = false
			}

		case ev, ok := <-evCh:
			if !ok || ev.Kind == TransportClosed {
				detail := "transport closed"
				if ok && ev.Err != nil {
					detail = ev.Err.Error()
				}
				m.dropConn()
				degraded = false
				m.emit(models.EventDisconnected, detail)
				if !paused && !stopped {
					m.finishReconnect(m.reconnect(ctx), &paused)
				}
				continue
			}
			if paused {
				continue
			}
			m.mu.Lock()
			handler := m.onData
			m.mu.Unlock()
			if handler != nil {
				handler(ev)
			}

		case <-ticker.C:
			if paused || stopped {
				continue
			}
			if conn == nil {
				// link died while paused; recover now
				m.finishReconnect(m.reconnect(ctx), &paused)
				continue
			}

			fails := m.probe(ctx, conn)
			if fails == 0 && degraded {
				degraded = false
			}
			if fails == m.cfg.FailureThreshold && !degraded {
				degraded = true
				degradedSince = time.Now()
				m.emit(models.EventDegraded, fmt.Sprintf("%d consecutive probe failures", fails))
			}
			if degraded && time.Since(degradedSince) >= m.cfg.DegradedGrace {
				degraded = false
				m.dropConn()
				m.finishReconnect(m.reconnect(ctx), &paused)
			}
		}
	}
}

func (m *Manager) finishReconnect(out reconnectOutcome, paused *bool) {
	switch out {
	case reconnectPaused:
		*paused = true
	case reconnectStopped:
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()
	}
}

func (m *Manager) dropConn() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// probe runs one health check and returns the consecutive failure count.
// Probes are serialized: only the run goroutine calls this, and it blocks
// until the in-flight probe finishes or times out.
func (m *Manager) probe(ctx context.Context, conn Conn) int {
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	rtt, err := conn.Ping(pctx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics.LastProbeAt = time.Now().UTC()
	if err != nil {
		m.metrics.ConsecutiveFailures++
		m.log.WithError(err).WithField("consecutive", m.metrics.ConsecutiveFailures).Debug("health probe failed")
	} else {
		m.metrics.ConsecutiveFailures = 0
		m.metrics.RoundTrip = rtt
	}
	return m.metrics.ConsecutiveFailures
}

// reconnect runs one bounded backoff cycle. It is called from the run
// goroutine only, so events stay ordered and no two cycles overlap.
func (m *Manager) reconnect(ctx context.Context) reconnectOutcome {
	for n := 0; n < m.cfg.Backoff.MaxAttempts; n++ {
		attempt := models.RetryAttempt{
			AttemptNumber: n,
			Delay:         m.cfg.Backoff.Jittered(n),
			ScheduledAt:   time.Now().UTC(),
		}
		m.emit(models.EventReconnecting, fmt.Sprintf("attempt %d in %s", n+1, attempt.Delay.Round(time.Millisecond)))

		timer := time.NewTimer(attempt.Delay)
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return reconnectAborted
			case k := <-m.ctrl:
				if k == ctrlPause {
					timer.Stop()
					return reconnectPaused
				}
				// resume while already reconnecting: nothing to do
			case <-timer.C:
				break wait
			}
		}

		m.mu.Lock()
		m.reconnects++
		m.mu.Unlock()

		cctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		conn, err := m.transport.Join(cctx, m.target)
		cancel()

		if err == nil {
			m.mu.Lock()
			m.conn = conn
			m.metrics = models.HealthMetrics{}
			m.mu.Unlock()
			m.emit(models.EventConnected, fmt.Sprintf("reconnected after %d attempt(s)", n+1))
			return reconnectOK
		}
		if errors.Is(err, utils.ErrAuth) {
			m.emit(models.EventFailed, "auth rejected during reconnect")
			return reconnectStopped
		}
		if ctx.Err() != nil {
			return reconnectAborted
		}
		m.log.WithError(err).WithField("attempt", n+1).Warn("reconnect attempt failed")
	}

	m.emit(models.EventFailed, fmt.Sprintf("gave up after %d attempts", m.cfg.Backoff.MaxAttempts))
	return reconnectStopped
}

func (m *Manager) emit(kind models.ConnectionEventKind, detail string) {
	ev := models.ConnectionEvent{Kind: kind, Timestamp: time.Now().UTC(), Detail: detail}

	m.mu.Lock()
	m.events = append(m.events, ev)
	m.last = kind
	obs := make([]func(models.ConnectionEvent), len(m.observers))
	copy(obs, m.observers)
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"kind": kind, "detail": detail}).Info("connection event")
	for _, fn := range obs {
		fn(ev)
	}
}
