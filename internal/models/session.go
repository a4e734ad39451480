package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusActive       SessionStatus = "active"
	StatusPaused       SessionStatus = "paused"
	StatusEnded        SessionStatus = "ended"
	StatusError        SessionStatus = "error"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == StatusEnded || s == StatusError
}

type VoiceSession struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"` // uuid v4
	StudentID string             `bson:"student_id" json:"student_id"` // uuid from Supabase Auth

	Topic  string        `bson:"topic" json:"topic"` // ex: "quadratic-equations"
	Status SessionStatus `bson:"status" json:"status"`

	StartTime time.Time  `bson:"start_time" json:"start_time"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`

	DurationSeconds   int64 `bson:"duration_seconds" json:"duration_seconds"`
	ReconnectAttempts int   `bson:"reconnect_attempts" json:"reconnect_attempts"`
}

// SessionSummary is flushed to persistence exactly once, when a session ends.
type SessionSummary struct {
	SessionID         string        `bson:"session_id" json:"session_id"`
	Duration          time.Duration `bson:"-" json:"-"`
	DurationSeconds   int64         `bson:"duration_seconds" json:"duration_seconds"`
	ItemCount         int           `bson:"item_count" json:"item_count"`
	EventCount        int           `bson:"event_count" json:"event_count"`
	ReconnectAttempts int           `bson:"reconnect_attempts" json:"reconnect_attempts"`
	TranscriptLength  int           `bson:"transcript_length" json:"transcript_length"`
}
