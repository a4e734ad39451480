package models

import "time"

type SegmentType string

const (
	SegmentText SegmentType = "text"
	SegmentMath SegmentType = "math"
)

// TextSegment is a contiguous slice of the original utterance. Segments for
// one ProcessedText are ordered, non-overlapping, and cover the whole input.
type TextSegment struct {
	Text       string      `json:"text"`
	Type       SegmentType `json:"type"`
	StartIndex int         `json:"start_index"`
	EndIndex   int         `json:"end_index"`
}

// ProcessedText is produced once per utterance and immutable after creation.
type ProcessedText struct {
	OriginalText  string        `json:"original_text"`
	ProcessedText string        `json:"processed_text"`
	Segments      []TextSegment `json:"segments"`
	Timestamp     time.Time     `json:"timestamp"`
	Speaker       string        `json:"speaker"` // "student" | "tutor"
}

type DisplayItemType string

const (
	DisplayText   DisplayItemType = "text"
	DisplayMath   DisplayItemType = "math"
	DisplaySystem DisplayItemType = "system"
)

// DisplayItem is owned by the DisplayBuffer once appended; it is never mutated
// and only removed by FIFO eviction or Clear.
type DisplayItem struct {
	ID        string            `json:"id"`
	Type      DisplayItemType   `json:"type"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Speaker   string            `json:"speaker,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
