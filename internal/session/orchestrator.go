package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vtutor/internal/models"
	"github.com/yoockh/vtutor/internal/realtime"
	"github.com/yoockh/vtutor/internal/transcription"
	"github.com/yoockh/vtutor/internal/utils"
)

// Connection is the slice of realtime.Manager the orchestrator drives. One
// instance exists per active session.
type Connection interface {
	OnEvent(fn func(models.ConnectionEvent))
	OnData(fn func(realtime.TransportEvent))
	Connect(ctx context.Context) error
	Pause()
	Resume()
	Close() error
	SendCommand(ctx context.Context, cmd realtime.Command) error
	Metrics() models.HealthMetrics
	ReconnectAttempts() int
	State() models.ConnectionEventKind
	EventCount() int
}

// Store is the persistence capability for session records. Failures surface to
// the caller; in-memory state is left untouched so the operation can be
// retried.
type Store interface {
	CreateSession(ctx context.Context, s *models.VoiceSession) error
	GetSession(ctx context.Context, sessionID string) (*models.VoiceSession, error)
	SetStatus(ctx context.Context, sessionID string, status models.SessionStatus) error
	FlushSummary(ctx context.Context, sessionID string, sum models.SessionSummary) error
}

// TranscriptSink receives one entry per processed utterance.
type TranscriptSink interface {
	Append(ctx context.Context, entry *models.TranscriptEntry) error
}

// Dialer builds the resilience-managed connection for a new session.
type Dialer func(s *models.VoiceSession) (Connection, error)

type Config struct {
	BufferCapacity int
	// PersistTimeout bounds the background status writes driven by
	// connection events.
	PersistTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = transcription.DefaultBufferCapacity
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
	return c
}

type StartOptions struct {
	// SessionID pins the identifier; empty means a fresh uuid. Reusing the id
	// of a terminal session fails with CodeSessionClosed.
	SessionID      string
	BufferCapacity int
}

// Status is the read-only view exposed to the UI.
type Status struct {
	Session    models.VoiceSession        `json:"session"`
	Connection models.ConnectionEventKind `json:"connection"`
	Metrics    models.HealthMetrics       `json:"metrics"`
	ItemCount  int                        `json:"item_count"`
}

type liveSession struct {
	mu            sync.Mutex
	doc           models.VoiceSession
	conn          Connection
	pipe          *transcription.Pipeline
	buf           *transcription.DisplayBuffer
	transcriptLen int
	seq           int64
	// ending guards the summary flush: set before the (unlocked) persistence
	// call so a concurrent End cannot flush a second time. Reset if the flush
	// fails, so End stays retryable.
	ending bool
}

// Orchestrator drives the session state machine: it owns the session-keyed
// registry, routes connection events, tags utterances before pipeline handoff,
// and is the single writer of VoiceSession.Status.
type Orchestrator struct {
	mu       sync.Mutex
	sessions map[string]*liveSession

	// closed remembers recently retired session ids so terminal-id reuse and
	// repeated end calls still answer SESSION_CLOSED after the live entry is
	// evicted. Bounded FIFO, oldest ids forgotten first.
	closed      map[string]struct{}
	closedOrder []string

	store       Store
	transcripts TranscriptSink // optional
	dial        Dialer
	segmenter   transcription.Segmenter
	cfg         Config
	log         *logrus.Entry

	// audio receives raw transport audio for asynchronous STT processing.
	audio func(sessionID string, payload []byte)
}

func NewOrchestrator(store Store, dial Dialer, cfg Config, log *logrus.Entry) *Orchestrator {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Orchestrator{
		sessions:  make(map[string]*liveSession),
		closed:    make(map[string]struct{}),
		store:     store,
		dial:      dial,
		segmenter: transcription.MathSegmenter{},
		cfg:       cfg.withDefaults(),
		log:       log,
	}
}

// SetTranscriptSink wires per-utterance persistence; nil disables it.
func (o *Orchestrator) SetTranscriptSink(sink TranscriptSink) { o.transcripts = sink }

// SetAudioSink wires the consumer for inbound transport audio (the worker
// queue enqueuer).
func (o *Orchestrator) SetAudioSink(fn func(sessionID string, payload []byte)) { o.audio = fn }

// SetSegmenter swaps the math-detection strategy for new sessions.
func (o *Orchestrator) SetSegmenter(seg transcription.Segmenter) {
	if seg != nil {
		o.segmenter = seg
	}
}

func (o *Orchestrator) Start(ctx context.Context, studentID, topic string, opts StartOptions) (*models.VoiceSession, error) {
	const op = "Orchestrator.Start"

	if studentID == "" || topic == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "student_id and topic are required", nil)
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	o.mu.Lock()
	if _, ok := o.closed[sessionID]; ok {
		o.mu.Unlock()
		return nil, utils.E(utils.CodeSessionClosed, op, "session already closed", nil)
	}
	if prev, ok := o.sessions[sessionID]; ok {
		status := prev.status()
		o.mu.Unlock()
		if status.Terminal() {
			return nil, utils.E(utils.CodeSessionClosed, op, "session already closed", nil)
		}
		return nil, utils.E(utils.CodeConflict, op, "session already running", nil)
	}

	now := time.Now().UTC()
	ls := &liveSession{
		doc: models.VoiceSession{
			SessionID: sessionID,
			StudentID: studentID,
			Topic:     topic,
			Status:    models.StatusInitializing,
			StartTime: now,
		},
	}
	capacity := opts.BufferCapacity
	if capacity <= 0 {
		capacity = o.cfg.BufferCapacity
	}
	ls.buf = transcription.NewDisplayBuffer(capacity)
	ls.pipe = transcription.NewPipeline(o.segmenter, transcription.NewNormalizer(), ls.buf,
		o.log.WithField("session_id", sessionID))
	o.sessions[sessionID] = ls
	o.mu.Unlock()

	if err := o.store.CreateSession(ctx, &ls.doc); err != nil {
		o.remove(sessionID)
		return nil, utils.E(utils.CodeUnavailable, op, "failed to create session record", err)
	}

	conn, err := o.dial(&ls.doc)
	if err != nil {
		o.abortStart(ctx, ls)
		return nil, utils.E(utils.CodeUnavailable, op, "failed to prepare transport", err)
	}
	ls.conn = conn

	conn.OnEvent(func(ev models.ConnectionEvent) { o.handleConnEvent(sessionID, ev) })
	conn.OnData(func(ev realtime.TransportEvent) { o.handleTransportEvent(sessionID, ev) })

	if err := conn.Connect(ctx); err != nil {
		o.abortStart(ctx, ls)
		if utils.IsCode(err, utils.CodeInvalidArgument) {
			return nil, err
		}
		return nil, utils.E(utils.CodeUnavailable, op, "failed to acquire transport", err)
	}

	out := ls.snapshot()
	return &out, nil
}

func (o *Orchestrator) Pause(ctx context.Context, sessionID string) error {
	const op = "Orchestrator.Pause"

	ls, err := o.lookup(op, sessionID)
	if err != nil {
		return err
	}
	if err := ls.transition(op, models.StatusActive, models.StatusPaused); err != nil {
		return err
	}

	// transport kept warm; probe/retry timers canceled immediately
	ls.conn.Pause()
	ls.pipe.SystemNotice("session paused", nil)
	if err := o.store.SetStatus(ctx, sessionID, models.StatusPaused); err != nil {
		o.log.WithError(err).WithField("session_id", sessionID).Warn("failed to persist paused status")
	}
	return nil
}

func (o *Orchestrator) Resume(ctx context.Context, sessionID string) error {
	const op = "Orchestrator.Resume"

	ls, err := o.lookup(op, sessionID)
	if err != nil {
		return err
	}
	if err := ls.transition(op, models.StatusPaused, models.StatusActive); err != nil {
		return err
	}

	ls.conn.Resume()
	ls.pipe.SystemNotice("session resumed", nil)
	if err := o.store.SetStatus(ctx, sessionID, models.StatusActive); err != nil {
		o.log.WithError(err).WithField("session_id", sessionID).Warn("failed to persist active status")
	}
	return nil
}

// End flushes the final summary, then tears down the connection and clears the
// buffer. A second End on the same session fails with CodeSessionClosed before
// any repository write, so the summary cannot double-flush.
func (o *Orchestrator) End(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	const op = "Orchestrator.End"

	ls, err := o.lookup(op, sessionID)
	if err != nil {
		return nil, err
	}

	ls.mu.Lock()
	if ls.doc.Status.Terminal() || ls.ending {
		ls.mu.Unlock()
		return nil, utils.E(utils.CodeSessionClosed, op, "session already closed", nil)
	}
	ls.ending = true
	sum := o.summarize(ls)
	ls.mu.Unlock()

	// best effort: tell the provider the session is over
	_ = ls.conn.SendCommand(ctx, realtime.Command{Type: "end", SessionID: sessionID})

	if err := o.store.FlushSummary(ctx, sessionID, sum); err != nil {
		// session stays in its current state so End can be retried
		ls.mu.Lock()
		ls.ending = false
		ls.mu.Unlock()
		return nil, utils.E(utils.CodeUnavailable, op, "failed to flush session summary", err)
	}

	now := time.Now().UTC()
	ls.mu.Lock()
	ls.doc.Status = models.StatusEnded
	ls.doc.EndedAt = &now
	ls.doc.DurationSeconds = sum.DurationSeconds
	ls.doc.ReconnectAttempts = sum.ReconnectAttempts
	ls.mu.Unlock()

	if err := ls.conn.Close(); err != nil {
		o.log.WithError(err).WithField("session_id", sessionID).Warn("transport close failed")
	}
	ls.buf.Clear()
	o.retire(sessionID)

	o.log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"duration_s": sum.DurationSeconds,
		"items":      sum.ItemCount,
		"reconnects": sum.ReconnectAttempts,
	}).Info("session ended")
	return &sum, nil
}

// GetState is side-effect free. Live sessions answer from the registry;
// anything else falls back to persistence.
func (o *Orchestrator) GetState(ctx context.Context, sessionID string) (*models.VoiceSession, error) {
	const op = "Orchestrator.GetState"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	o.mu.Lock()
	ls, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if ok {
		out := ls.snapshot()
		return &out, nil
	}

	out, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
	}
	return out, nil
}

// Status reports the UI-facing view: session document plus connection health.
func (o *Orchestrator) Status(sessionID string) (*Status, error) {
	const op = "Orchestrator.Status"

	ls, err := o.lookup(op, sessionID)
	if err != nil {
		return nil, err
	}
	return &Status{
		Session:    ls.snapshot(),
		Connection: ls.conn.State(),
		Metrics:    ls.conn.Metrics(),
		ItemCount:  ls.buf.Size(),
	}, nil
}

// Items returns a snapshot of the session's display buffer.
func (o *Orchestrator) Items(sessionID string) ([]models.DisplayItem, error) {
	const op = "Orchestrator.Items"

	ls, err := o.lookup(op, sessionID)
	if err != nil {
		return nil, err
	}
	return ls.buf.Items(), nil
}

// Mute forwards a session-level mute toggle to the transport.
func (o *Orchestrator) Mute(ctx context.Context, sessionID string, muted bool) error {
	const op = "Orchestrator.Mute"

	ls, err := o.lookup(op, sessionID)
	if err != nil {
		return err
	}
	if ls.status() != models.StatusActive {
		return utils.E(utils.CodeInvalidTransition, op, "session is not active", nil)
	}
	cmd := realtime.Command{Type: "mute", SessionID: sessionID}
	if !muted {
		cmd.Type = "unmute"
	}
	return ls.conn.SendCommand(ctx, cmd)
}

// HandleUtterance tags one utterance with speaker and timestamp, hands it to
// the pipeline, and persists the transcript entry. The orchestrator never
// parses transcript content itself.
func (o *Orchestrator) HandleUtterance(ctx context.Context, sessionID, speaker, rawText string) (*models.ProcessedText, error) {
	const op = "Orchestrator.HandleUtterance"

	if rawText == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "empty utterance", nil)
	}
	ls, err := o.lookup(op, sessionID)
	if err != nil {
		return nil, err
	}
	if ls.status() != models.StatusActive {
		return nil, utils.E(utils.CodeInvalidTransition, op, "session is not active", nil)
	}

	now := time.Now().UTC()
	pt := ls.pipe.Ingest(rawText, speaker, now)

	ls.mu.Lock()
	ls.transcriptLen += len(rawText)
	ls.seq++
	seq := ls.seq
	ls.mu.Unlock()

	if o.transcripts != nil {
		entry := &models.TranscriptEntry{
			SessionID:     sessionID,
			Seq:           seq,
			Speaker:       speaker,
			OriginalText:  pt.OriginalText,
			ProcessedText: pt.ProcessedText,
			Segments:      pt.Segments,
			Timestamp:     now,
		}
		if err := o.transcripts.Append(ctx, entry); err != nil {
			o.log.WithError(err).WithField("session_id", sessionID).Warn("failed to persist transcript entry")
		}
	}
	return &pt, nil
}

func (o *Orchestrator) handleConnEvent(sessionID string, ev models.ConnectionEvent) {
	o.mu.Lock()
	ls, ok := o.sessions[sessionID]
	o.mu.Unlock()
	if !ok {
		return
	}

	switch ev.Kind {
	case models.EventConnected:
		ls.mu.Lock()
		first := ls.doc.Status == models.StatusInitializing
		if first {
			ls.doc.Status = models.StatusActive
		}
		ls.mu.Unlock()
		if first {
			o.persistStatus(sessionID, models.StatusActive)
		}

	case models.EventDegraded:
		ls.pipe.SystemNotice("connection degraded", map[string]string{"detail": ev.Detail})

	case models.EventFailed:
		ls.mu.Lock()
		terminal := ls.doc.Status.Terminal()
		if !terminal {
			ls.doc.Status = models.StatusError
		}
		ls.mu.Unlock()
		if !terminal {
			ls.pipe.SystemNotice("connection failed", map[string]string{"detail": ev.Detail})
			o.persistStatus(sessionID, models.StatusError)
			o.retire(sessionID)
		}
	}
}

func (o *Orchestrator) handleTransportEvent(sessionID string, ev realtime.TransportEvent) {
	switch ev.Kind {
	case realtime.TransportAudio:
		if o.audio != nil {
			o.audio(sessionID, ev.Payload)
		}
	case realtime.TransportData:
		var msg struct {
			Type    string `json:"type"`
			Speaker string `json:"speaker"`
			Text    string `json:"text"`
		}
		if err := json.Unmarshal(ev.Payload, &msg); err != nil || msg.Type != "utterance" || msg.Text == "" {
			return
		}
		if msg.Speaker == "" {
			msg.Speaker = "tutor"
		}
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PersistTimeout)
		defer cancel()
		if _, err := o.HandleUtterance(ctx, sessionID, msg.Speaker, msg.Text); err != nil {
			o.log.WithError(err).WithField("session_id", sessionID).Debug("utterance dropped")
		}
	}
}

func (o *Orchestrator) persistStatus(sessionID string, status models.SessionStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PersistTimeout)
	defer cancel()
	if err := o.store.SetStatus(ctx, sessionID, status); err != nil {
		o.log.WithError(err).WithFields(logrus.Fields{
			"session_id": sessionID,
			"status":     status,
		}).Warn("failed to persist session status")
	}
}

func (o *Orchestrator) summarize(ls *liveSession) models.SessionSummary {
	dur := time.Since(ls.doc.StartTime)
	if dur < 0 {
		dur = 0
	}
	return models.SessionSummary{
		SessionID:         ls.doc.SessionID,
		Duration:          dur,
		DurationSeconds:   int64(dur.Seconds()),
		ItemCount:         int(ls.buf.Appended()),
		EventCount:        ls.conn.EventCount(),
		ReconnectAttempts: ls.conn.ReconnectAttempts(),
		TranscriptLength:  ls.transcriptLen,
	}
}

func (o *Orchestrator) lookup(op, sessionID string) (*liveSession, error) {
	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	o.mu.Lock()
	ls, ok := o.sessions[sessionID]
	if !ok {
		_, wasClosed := o.closed[sessionID]
		o.mu.Unlock()
		if wasClosed {
			return nil, utils.E(utils.CodeSessionClosed, op, "session already closed", nil)
		}
		return nil, utils.E(utils.CodeNotFound, op, "session not found", nil)
	}
	o.mu.Unlock()
	return ls, nil
}

func (o *Orchestrator) remove(sessionID string) {
	o.mu.Lock()
	delete(o.sessions, sessionID)
	o.mu.Unlock()
}

// closedHistory bounds the retired-id set; ids older than the newest 4096
// terminal sessions fall back to plain NOT_FOUND.
const closedHistory = 4096

// retire evicts a terminal session from the live registry while remembering
// its id, so repeated end calls and id reuse keep failing with SESSION_CLOSED.
func (o *Orchestrator) retire(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.sessions, sessionID)
	if _, ok := o.closed[sessionID]; ok {
		return
	}
	o.closed[sessionID] = struct{}{}
	o.closedOrder = append(o.closedOrder, sessionID)
	if len(o.closedOrder) > closedHistory {
		oldest := o.closedOrder[0]
		o.closedOrder = o.closedOrder[1:]
		delete(o.closed, oldest)
	}
}

// abortStart rolls a half-started session into terminal error state.
func (o *Orchestrator) abortStart(ctx context.Context, ls *liveSession) {
	ls.mu.Lock()
	ls.doc.Status = models.StatusError
	sessionID := ls.doc.SessionID
	ls.mu.Unlock()
	if err := o.store.SetStatus(ctx, sessionID, models.StatusError); err != nil {
		o.log.WithError(err).WithField("session_id", sessionID).Warn("failed to persist error status")
	}
	o.retire(sessionID)
}

func (s *liveSession) status() models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Status
}

func (s *liveSession) snapshot() models.VoiceSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

func (s *liveSession) transition(op string, from, to models.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Status.Terminal() {
		return utils.E(utils.CodeSessionClosed, op, "session already closed", nil)
	}
	if s.doc.Status != from {
		return utils.E(utils.CodeInvalidTransition, op,
			"cannot go from "+string(s.doc.Status)+" to "+string(to), nil)
	}
	s.doc.Status = to
	return nil
}
