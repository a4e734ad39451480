package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vtutor/internal/cache"
	"github.com/yoockh/vtutor/internal/models"
	mongorepo "github.com/yoockh/vtutor/internal/repositories/mongo"
	"github.com/yoockh/vtutor/internal/session"
	"github.com/yoockh/vtutor/internal/utils"
)

const stateCacheTTL = 5 * time.Second

type SessionHandler struct {
	Orch        *session.Orchestrator
	Transcripts mongorepo.TranscriptRepository
	Cache       cache.Cache // optional
	Log         *logrus.Entry
}

type startRequest struct {
	Topic     string `json:"topic" binding:"required"`
	SessionID string `json:"session_id"`
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

func (h *SessionHandler) Start(c *gin.Context) {
	studentID, ok := requireStudentID(c)
	if !ok {
		return
	}

	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Start", "topic is required", err))
		return
	}

	sess, err := h.Orch.Start(c.Request.Context(), studentID, req.Topic, session.StartOptions{
		SessionID: req.SessionID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	h.invalidate(c, sess.SessionID)
	c.JSON(201, sess)
}

func (h *SessionHandler) Pause(c *gin.Context) {
	sess, ok := h.authorize(c)
	if !ok {
		return
	}
	if err := h.Orch.Pause(c.Request.Context(), sess.SessionID); err != nil {
		writeError(c, err)
		return
	}
	h.invalidate(c, sess.SessionID)
	c.JSON(200, gin.H{"session_id": sess.SessionID, "status": models.StatusPaused})
}

func (h *SessionHandler) Resume(c *gin.Context) {
	sess, ok := h.authorize(c)
	if !ok {
		return
	}
	if err := h.Orch.Resume(c.Request.Context(), sess.SessionID); err != nil {
		writeError(c, err)
		return
	}
	h.invalidate(c, sess.SessionID)
	c.JSON(200, gin.H{"session_id": sess.SessionID, "status": models.StatusActive})
}

func (h *SessionHandler) End(c *gin.Context) {
	sess, ok := h.authorize(c)
	if !ok {
		return
	}
	sum, err := h.Orch.End(c.Request.Context(), sess.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.invalidate(c, sess.SessionID)
	c.JSON(200, sum)
}

func (h *SessionHandler) Mute(c *gin.Context) {
	sess, ok := h.authorize(c)
	if !ok {
		return
	}
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "SessionHandler.Mute", "invalid body", err))
		return
	}
	if err := h.Orch.Mute(c.Request.Context(), sess.SessionID, req.Muted); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"session_id": sess.SessionID, "muted": req.Muted})
}

// Get serves the polling view through a short-TTL cache; live state changes
// invalidate the key.
func (h *SessionHandler) Get(c *gin.Context) {
	studentID, ok := requireStudentID(c)
	if !ok {
		return
	}
	sessionID := c.Param("id")

	if h.Cache != nil {
		var cached models.VoiceSession
		if hit, err := h.Cache.GetJSON(c.Request.Context(), cache.SessionStateKey(sessionID), &cached); err == nil && hit {
			if cached.StudentID != studentID {
				writeError(c, utils.E(utils.CodeForbidden, "SessionHandler.Get", "not your session", nil))
				return
			}
			c.JSON(200, cached)
			return
		}
	}

	sess, err := h.Orch.GetState(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.StudentID != studentID {
		writeError(c, utils.E(utils.CodeForbidden, "SessionHandler.Get", "not your session", nil))
		return
	}

	if h.Cache != nil {
		if err := h.Cache.SetJSON(c.Request.Context(), cache.SessionStateKey(sessionID), sess, stateCacheTTL); err != nil {
			h.Log.WithError(err).Debug("state cache write failed")
		}
	}
	c.JSON(200, sess)
}

// Status reports connection health alongside the session record. Only live
// sessions have one.
func (h *SessionHandler) Status(c *gin.Context) {
	sess, ok := h.authorize(c)
	if !ok {
		return
	}
	st, err := h.Orch.Status(sess.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, st)
}

// Items returns the current display buffer snapshot in arrival order.
func (h *SessionHandler) Items(c *gin.Context) {
	sess, ok := h.authorize(c)
	if !ok {
		return
	}
	items, err := h.Orch.Items(sess.SessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"session_id": sess.SessionID, "items": items})
}

func (h *SessionHandler) Transcript(c *gin.Context) {
	sess, ok := h.authorize(c)
	if !ok {
		return
	}
	entries, err := h.Transcripts.ListBySession(c.Request.Context(), sess.SessionID, 0)
	if err != nil {
		writeError(c, utils.E(utils.CodeInternal, "SessionHandler.Transcript", "failed to load transcript", err))
		return
	}
	c.JSON(200, gin.H{"session_id": sess.SessionID, "entries": entries})
}

// authorize resolves the session in the path and checks ownership.
func (h *SessionHandler) authorize(c *gin.Context) (*models.VoiceSession, bool) {
	studentID, ok := requireStudentID(c)
	if !ok {
		return nil, false
	}
	sess, err := h.Orch.GetState(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if sess.StudentID != studentID {
		writeError(c, utils.E(utils.CodeForbidden, "SessionHandler", "not your session", nil))
		return nil, false
	}
	return sess, true
}

func (h *SessionHandler) invalidate(c *gin.Context, sessionID string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Del(c.Request.Context(), cache.SessionStateKey(sessionID)); err != nil {
		h.Log.WithError(err).Debug("state cache invalidation failed")
	}
}
