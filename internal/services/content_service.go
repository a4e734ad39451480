package services

import (
	"context"
	"strings"

	"github.com/yoockh/vtutor/internal/models"
	pgrepo "github.com/yoockh/vtutor/internal/repositories/postgres"
	"github.com/yoockh/vtutor/internal/utils"
)

// ContentService assembles curriculum context for the tutor LLM: textbook
// chunks for the session topic, optionally re-ranked by vector similarity to
// the student's utterance.
type ContentService interface {
	TopicContext(ctx context.Context, chapterID string, embedding []float32, limit int) (string, error)
	StudentContext(ctx context.Context, studentID string) (*models.StudentProfile, error)
}

type contentService struct {
	chunks   pgrepo.ContentRepository
	profiles pgrepo.ProfileRepository
}

func NewContentService(chunks pgrepo.ContentRepository, profiles pgrepo.ProfileRepository) ContentService {
	return &contentService{chunks: chunks, profiles: profiles}
}

func (s *contentService) TopicContext(ctx context.Context, chapterID string, embedding []float32, limit int) (string, error) {
	const op = "ContentService.TopicContext"

	if chapterID == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "chapter_id is required", nil)
	}

	var (
		rows []models.ContentChunk
		err  error
	)
	if len(embedding) > 0 {
		rows, err = s.chunks.SearchByEmbedding(ctx, embedding, limit)
	} else {
		rows, err = s.chunks.ListByChapter(ctx, chapterID, limit)
	}
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to load content chunks", err)
	}

	var b strings.Builder
	for _, c := range rows {
		if c.Title != "" {
			b.WriteString(c.Title)
			b.WriteString(":\n")
		}
		b.WriteString(c.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()), nil
}

func (s *contentService) StudentContext(ctx context.Context, studentID string) (*models.StudentProfile, error) {
	const op = "ContentService.StudentContext"

	if studentID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "student_id is required", nil)
	}
	p, err := s.profiles.GetByStudentID(ctx, studentID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to load student profile", err)
	}
	return p, nil
}
