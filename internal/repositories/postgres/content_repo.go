package postgres

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/yoockh/vtutor/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContentRepository interface {
	ListByChapter(ctx context.Context, chapterID string, limit int) ([]models.ContentChunk, error)
	SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]models.ContentChunk, error)
}

type contentRepo struct {
	db *gorm.DB
}

func NewContentRepo(db *gorm.DB) ContentRepository {
	return &contentRepo{db: db}
}

func (r *contentRepo) ListByChapter(ctx context.Context, chapterID string, limit int) ([]models.ContentChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	var rows []models.ContentChunk
	err := r.db.WithContext(ctx).
		Where("chapter_id = ?", chapterID).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// SearchByEmbedding ranks chunks by cosine distance to the query embedding.
// The ORDER BY goes through Clauses: gorm's Order only accepts strings and
// OrderBy clauses, so a bare expression there would be dropped.
func (r *contentRepo) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]models.ContentChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	var rows []models.ContentChunk
	err := r.db.WithContext(ctx).
		Clauses(clause.OrderBy{
			Expression: clause.Expr{
				SQL:                "embedding <=> ?",
				Vars:               []interface{}{pgvector.NewVector(embedding)},
				WithoutParentheses: true,
			},
		}).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
