package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vtutor/internal/utils"
)

// WSTransport joins provider rooms over a websocket endpoint. Audio arrives as
// binary frames, provider data messages as text frames.
type WSTransport struct {
	Log *logrus.Entry
}

func (t *WSTransport) Join(ctx context.Context, target Target) (Conn, error) {
	u, err := url.Parse(target.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrConfig, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", utils.ErrConfig, u.Scheme)
	}
	if target.Room == "" || target.Identity == "" {
		return nil, fmt.Errorf("%w: room and identity are required", utils.ErrConfig)
	}

	q := u.Query()
	q.Set("room", target.Room)
	q.Set("identity", target.Identity)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if target.Token != "" {
		header.Set("Authorization", "Bearer "+target.Token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	c, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: status %d", utils.ErrAuth, resp.StatusCode)
		}
		return nil, err
	}

	wc := &wsConn{
		c:      c,
		events: make(chan TransportEvent, 64),
		pong:   make(chan struct{}, 1),
	}
	c.SetPongHandler(func(string) error {
		select {
		case wc.pong <- struct{}{}:
		default:
		}
		return nil
	})
	go wc.readLoop()
	return wc, nil
}

type wsConn struct {
	c    *websocket.Conn
	mu   sync.Mutex // guards data writes
	once sync.Once

	events chan TransportEvent
	pong   chan struct{}
}

func (w *wsConn) readLoop() {
	defer close(w.events)
	for {
		mt, data, err := w.c.ReadMessage()
		if err != nil {
			w.events <- TransportEvent{Kind: TransportClosed, Err: err}
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			w.events <- TransportEvent{Kind: TransportAudio, Payload: data}
		case websocket.TextMessage:
			w.events <- TransportEvent{Kind: TransportData, Payload: data}
		}
	}
}

func (w *wsConn) Events() <-chan TransportEvent { return w.events }

func (w *wsConn) Ping(ctx context.Context) (time.Duration, error) {
	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	// a pong left over from a timed-out probe must not answer this one
	select {
	case <-w.pong:
	default:
	}

	start := time.Now()
	if err := w.c.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return 0, err
	}
	select {
	case <-w.pong:
		return time.Since(start), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (w *wsConn) SendCommand(ctx context.Context, cmd Command) error {
	b, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(deadline)
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) Close() error {
	var err error
	w.once.Do(func() { err = w.c.Close() })
	return err
}
