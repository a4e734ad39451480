package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/vtutor/internal/models"
	"github.com/yoockh/vtutor/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type SessionRepository interface {
	Create(ctx context.Context, s *models.VoiceSession) error
	GetBySessionID(ctx context.Context, sessionID string) (*models.VoiceSession, error)
	SetStatus(ctx context.Context, sessionID string, status models.SessionStatus) error
	End(ctx context.Context, sessionID string, endedAt time.Time, sum models.SessionSummary) error
}

type sessionRepo struct {
	col *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepository {
	return &sessionRepo{col: db.Collection("sessions")}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.VoiceSession) error {
	if s.StartTime.IsZero() {
		s.StartTime = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, s)
	return err
}

func (r *sessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*models.VoiceSession, error) {
	var s models.VoiceSession
	err := r.col.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *sessionRepo) SetStatus(ctx context.Context, sessionID string, status models.SessionStatus) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": bson.M{"status": status}},
	)
	return err
}

func (r *sessionRepo) End(ctx context.Context, sessionID string, endedAt time.Time, sum models.SessionSummary) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": bson.M{
			"status":             models.StatusEnded,
			"ended_at":           endedAt.UTC(),
			"duration_seconds":   sum.DurationSeconds,
			"reconnect_attempts": sum.ReconnectAttempts,
		}},
	)
	return err
}
