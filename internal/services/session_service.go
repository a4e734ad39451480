package services

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/vtutor/internal/models"
	mongorepo "github.com/yoockh/vtutor/internal/repositories/mongo"
	"github.com/yoockh/vtutor/internal/utils"
)

// SessionService is the persistence capability behind the orchestrator. It
// satisfies session.Store.
type SessionService interface {
	CreateSession(ctx context.Context, s *models.VoiceSession) error
	GetSession(ctx context.Context, sessionID string) (*models.VoiceSession, error)
	SetStatus(ctx context.Context, sessionID string, status models.SessionStatus) error
	FlushSummary(ctx context.Context, sessionID string, sum models.SessionSummary) error
}

type sessionService struct {
	sessions    mongorepo.SessionRepository
	transcripts mongorepo.TranscriptRepository
}

func NewSessionService(sessions mongorepo.SessionRepository, transcripts mongorepo.TranscriptRepository) SessionService {
	return &sessionService{sessions: sessions, transcripts: transcripts}
}

func (s *sessionService) CreateSession(ctx context.Context, sess *models.VoiceSession) error {
	const op = "SessionService.CreateSession"

	if sess == nil || sess.SessionID == "" || sess.StudentID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id and student_id are required", nil)
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	return nil
}

func (s *sessionService) GetSession(ctx context.Context, sessionID string) (*models.VoiceSession, error) {
	const op = "SessionService.GetSession"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	out, err := s.sessions.GetBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	return out, nil
}

func (s *sessionService) SetStatus(ctx context.Context, sessionID string, status models.SessionStatus) error {
	const op = "SessionService.SetStatus"

	if sessionID == "" || status == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id and status are required", nil)
	}
	if err := s.sessions.SetStatus(ctx, sessionID, status); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to set status", err)
	}
	return nil
}

// FlushSummary writes the final session record and archives the summary in a
// single pass; the orchestrator guarantees it runs at most once per session.
func (s *sessionService) FlushSummary(ctx context.Context, sessionID string, sum models.SessionSummary) error {
	const op = "SessionService.FlushSummary"

	if sessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	now := time.Now().UTC()
	if err := s.sessions.End(ctx, sessionID, now, sum); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to end session", err)
	}
	if s.transcripts != nil {
		if err := s.transcripts.InsertSummary(ctx, sum); err != nil {
			return utils.E(utils.CodeInternal, op, "failed to archive summary", err)
		}
	}
	return nil
}
