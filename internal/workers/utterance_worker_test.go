package workers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/yoockh/vtutor/internal/models"
)

type fakeIngest struct {
	session *models.VoiceSession
}

func (f *fakeIngest) HandleUtterance(ctx context.Context, sessionID, speaker, rawText string) (*models.ProcessedText, error) {
	return &models.ProcessedText{OriginalText: rawText, Speaker: speaker}, nil
}

func (f *fakeIngest) GetState(ctx context.Context, sessionID string) (*models.VoiceSession, error) {
	if f.session == nil {
		return nil, errors.New("not found")
	}
	return f.session, nil
}

type fakeContent struct {
	profile    *models.StudentProfile
	profileErr error
	topic      string
	topicErr   error
}

func (f *fakeContent) TopicContext(ctx context.Context, chapterID string, embedding []float32, limit int) (string, error) {
	return f.topic, f.topicErr
}

func (f *fakeContent) StudentContext(ctx context.Context, studentID string) (*models.StudentProfile, error) {
	return f.profile, f.profileErr
}

func TestTutorPromptCarriesProfileAndContent(t *testing.T) {
	pool := &UtterancePool{
		Sessions: &fakeIngest{session: &models.VoiceSession{
			SessionID: "s1",
			StudentID: "student-7",
			Topic:     "quadratic-equations",
		}},
		Content: &fakeContent{
			profile: &models.StudentProfile{
				StudentID:  "student-7",
				FullName:   "Asha",
				WeakTopics: pq.StringArray{"factorisation"},
			},
			topic: "A quadratic equation has the form ax^2 + bx + c = 0.",
		},
	}

	prompt := pool.tutorPrompt(context.Background(), "s1", "how do I factor this")

	for _, want := range []string{
		"Asha",
		"factorisation",
		"A quadratic equation has the form ax^2 + bx + c = 0.",
		"how do I factor this",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestTutorPromptSurvivesMissingContext(t *testing.T) {
	pool := &UtterancePool{
		Sessions: &fakeIngest{session: &models.VoiceSession{
			SessionID: "s1",
			StudentID: "student-7",
			Topic:     "quadratic-equations",
		}},
		Content: &fakeContent{
			profileErr: errors.New("profile store down"),
			topicErr:   errors.New("content store down"),
		},
	}

	prompt := pool.tutorPrompt(context.Background(), "s1", "hello tutor")
	if !strings.Contains(prompt, "hello tutor") {
		t.Fatalf("prompt missing utterance:\n%s", prompt)
	}
}

func TestTutorPromptWithoutContentService(t *testing.T) {
	pool := &UtterancePool{Sessions: &fakeIngest{}}

	prompt := pool.tutorPrompt(context.Background(), "s1", "hello tutor")
	if !strings.Contains(prompt, "hello tutor") {
		t.Fatalf("prompt missing utterance:\n%s", prompt)
	}
}
