package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TranscriptEntry is one persisted utterance, written after the pipeline has
// segmented it. Kept separate from the in-memory DisplayBuffer, which only
// holds the recent window.
type TranscriptEntry struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	Seq       int64              `bson:"seq" json:"seq"`

	Speaker       string        `bson:"speaker" json:"speaker"`
	OriginalText  string        `bson:"original_text" json:"original_text"`
	ProcessedText string        `bson:"processed_text" json:"processed_text"`
	Segments      []TextSegment `bson:"segments" json:"segments"`

	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
