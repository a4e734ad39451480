package mongo

import (
	"context"
	"time"

	"github.com/yoockh/vtutor/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type TranscriptRepository interface {
	Insert(ctx context.Context, e *models.TranscriptEntry) error
	ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.TranscriptEntry, error)
	InsertSummary(ctx context.Context, sum models.SessionSummary) error
}

type transcriptRepo struct {
	col       *mongo.Collection
	summaries *mongo.Collection
}

func NewTranscriptRepo(db *mongo.Database) TranscriptRepository {
	return &transcriptRepo{
		col:       db.Collection("transcript_entries"),
		summaries: db.Collection("session_summaries"),
	}
}

func (r *transcriptRepo) Insert(ctx context.Context, e *models.TranscriptEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, e)
	return err
}

func (r *transcriptRepo) ListBySession(ctx context.Context, sessionID string, limit int64) ([]models.TranscriptEntry, error) {
	if limit <= 0 {
		limit = 200
	}

	cur, err := r.col.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().
			SetSort(bson.D{{Key: "seq", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.TranscriptEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *transcriptRepo) InsertSummary(ctx context.Context, sum models.SessionSummary) error {
	_, err := r.summaries.InsertOne(ctx, sum)
	return err
}
