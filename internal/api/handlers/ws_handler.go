package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vtutor/internal/session"
	"github.com/yoockh/vtutor/internal/utils"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true }, // auth happens via JWT, not origin
}

// WSHandler streams the live session view: the display buffer snapshot on
// connect, then pipeline results and worker status as they land on the
// session's pubsub channels. Inbound frames carry control actions.
type WSHandler struct {
	Orch  *session.Orchestrator
	Redis *redis.Client
	Log   *logrus.Entry
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *wsClient) writeRaw(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

type wsAction struct {
	Action string `json:"action"` // pause | resume | end | mute | unmute
}

func (h *WSHandler) Live(c *gin.Context) {
	studentID, ok := requireStudentID(c)
	if !ok {
		return
	}
	sessionID := c.Param("id")

	sess, err := h.Orch.GetState(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.StudentID != studentID {
		writeError(c, utils.E(utils.CodeForbidden, "WSHandler.Live", "not your session", nil))
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	client := &wsClient{conn: ws}
	defer ws.Close()

	log := h.Log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"student_id": studentID,
	})
	log.Info("live view attached")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Initial snapshot so the client renders without waiting for traffic.
	if items, ierr := h.Orch.Items(sessionID); ierr == nil {
		_ = client.writeJSON(gin.H{
			"type":       "snapshot",
			"session_id": sessionID,
			"status":     sess.Status,
			"items":      items,
		})
	} else {
		_ = client.writeJSON(gin.H{
			"type":       "snapshot",
			"session_id": sessionID,
			"status":     sess.Status,
			"items":      []any{},
		})
	}

	go h.forwardPubSub(ctx, client, sessionID, log)
	go h.keepAlive(ctx, client)

	ws.SetReadLimit(1 << 16)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, payload, rerr := ws.ReadMessage()
		if rerr != nil {
			log.WithError(rerr).Debug("live view detached")
			return
		}
		var act wsAction
		if err := json.Unmarshal(payload, &act); err != nil {
			continue
		}
		h.dispatch(ctx, client, sessionID, act, log)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, client *wsClient, sessionID string, act wsAction, log *logrus.Entry) {
	var err error
	switch act.Action {
	case "pause":
		err = h.Orch.Pause(ctx, sessionID)
	case "resume":
		err = h.Orch.Resume(ctx, sessionID)
	case "end":
		_, err = h.Orch.End(ctx, sessionID)
	case "mute":
		err = h.Orch.Mute(ctx, sessionID, true)
	case "unmute":
		err = h.Orch.Mute(ctx, sessionID, false)
	default:
		_ = client.writeJSON(gin.H{"type": "error", "message": "unknown action"})
		return
	}

	if err != nil {
		log.WithError(err).WithField("action", act.Action).Warn("action failed")
		_ = client.writeJSON(gin.H{"type": "error", "action": act.Action, "message": err.Error()})
		return
	}
	_ = client.writeJSON(gin.H{"type": "ack", "action": act.Action})
}

// forwardPubSub relays the worker pool's response and status channels.
func (h *WSHandler) forwardPubSub(ctx context.Context, client *wsClient, sessionID string, log *logrus.Entry) {
	if h.Redis == nil {
		return
	}
	sub := h.Redis.Subscribe(ctx,
		"session:"+sessionID+":response",
		"session:"+sessionID+":status",
	)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := client.writeRaw([]byte(msg.Payload)); err != nil {
				log.WithError(err).Debug("pubsub forward failed")
				return
			}
		}
	}
}

func (h *WSHandler) keepAlive(ctx context.Context, client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			client.mu.Lock()
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := client.conn.WriteMessage(websocket.PingMessage, nil)
			client.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
