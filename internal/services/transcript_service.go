package services

import (
	"context"
	"time"

	"github.com/yoockh/vtutor/internal/models"
	mongorepo "github.com/yoockh/vtutor/internal/repositories/mongo"
	"github.com/yoockh/vtutor/internal/utils"
)

// TranscriptService persists processed utterances. It satisfies
// session.TranscriptSink.
type TranscriptService interface {
	Append(ctx context.Context, entry *models.TranscriptEntry) error
	ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.TranscriptEntry, error)
}

type transcriptService struct {
	entries mongorepo.TranscriptRepository
	ttl     time.Duration
}

func NewTranscriptService(entries mongorepo.TranscriptRepository, ttl time.Duration) TranscriptService {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &transcriptService{entries: entries, ttl: ttl}
}

func (s *transcriptService) Append(ctx context.Context, entry *models.TranscriptEntry) error {
	const op = "TranscriptService.Append"

	if entry == nil || entry.SessionID == "" || entry.OriginalText == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id and original_text are required", nil)
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.ExpiresAt = entry.Timestamp.Add(s.ttl)

	if err := s.entries.Insert(ctx, entry); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to insert transcript entry", err)
	}
	return nil
}

func (s *transcriptService) ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.TranscriptEntry, error) {
	const op = "TranscriptService.ListBySession"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	out, err := s.entries.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list transcript entries", err)
	}
	return out, nil
}
