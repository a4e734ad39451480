package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type StudentProfile struct {
	StudentID string `gorm:"column:student_id;type:uuid;primaryKey" json:"student_id"`
	FullName  string `gorm:"column:full_name;type:text" json:"full_name"`
	Grade     string `gorm:"column:grade;type:text" json:"grade"` // ex: "class-10"

	WeakTopics pq.StringArray `gorm:"column:weak_topics;type:text[]" json:"weak_topics"`

	// JSONB (raw JSON, flexible structure)
	Preferences datatypes.JSON `gorm:"column:preferences;type:jsonb" json:"preferences"`

	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (StudentProfile) TableName() string { return "student_profiles" }
