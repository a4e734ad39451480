package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// ContentChunk is one indexed passage of NCERT textbook content, retrieved by
// vector similarity to ground tutor responses in the curriculum.
type ContentChunk struct {
	ID        string          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ChapterID string          `gorm:"column:chapter_id;type:text;index" json:"chapter_id"`
	Title     string          `gorm:"column:title;type:text" json:"title"`
	Content   string          `gorm:"column:content;type:text" json:"content"`
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector(768)" json:"embedding"`
	Metadata  datatypes.JSON  `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt time.Time       `gorm:"column:created_at;type:timestamptz" json:"created_at"`
}

func (ContentChunk) TableName() string { return "content_chunks" }
