package postgres

import (
	"context"
	"errors"

	"github.com/yoockh/vtutor/internal/models"
	"github.com/yoockh/vtutor/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileRepository interface {
	GetByStudentID(ctx context.Context, studentID string) (*models.StudentProfile, error)
	Upsert(ctx context.Context, p *models.StudentProfile) error
}

type profileRepo struct {
	db *gorm.DB
}

func NewProfileRepo(db *gorm.DB) ProfileRepository {
	return &profileRepo{db: db}
}

func (r *profileRepo) GetByStudentID(ctx context.Context, studentID string) (*models.StudentProfile, error) {
	var p models.StudentProfile
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &p, err
}

func (r *profileRepo) Upsert(ctx context.Context, p *models.StudentProfile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"full_name", "grade", "weak_topics", "preferences", "updated_at"}),
		}).
		Create(p).Error
}
