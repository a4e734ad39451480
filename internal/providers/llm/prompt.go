package llm

import (
	"strings"

	"github.com/yoockh/vtutor/internal/models"
)

// tutorSystemPrompt keeps the tutor on curriculum and age-appropriate.
const tutorSystemPrompt = `You are a friendly and patient NCERT mathematics tutor for Class 10 students in India.

Your teaching approach:
- Use simple, clear explanations suitable for 10th grade students
- Break down complex problems into smaller steps
- Ask clarifying questions to check understanding
- Be patient with mistakes and use them as learning opportunities

Important guidelines:
- Stay focused on Class 10 Mathematics topics only
- Keep responses concise and conversational, as if tutoring in person
- Write mathematical expressions in inline notation like $x^2 + 5x + 6 = 0$
- If asked about non-educational topics, politely redirect to learning`

// BuildTutorPrompt assembles the streaming-LLM prompt from the system prompt,
// optional student profile, optional textbook context, and the utterance.
func BuildTutorPrompt(profile *models.StudentProfile, topicContext, utterance string) string {
	var b strings.Builder
	b.WriteString(tutorSystemPrompt)

	if profile != nil {
		b.WriteString("\n\nStudent: ")
		b.WriteString(profile.FullName)
		if len(profile.WeakTopics) > 0 {
			b.WriteString("\nTopics the student struggles with: ")
			b.WriteString(strings.Join(profile.WeakTopics, ", "))
		}
	}
	if topicContext != "" {
		b.WriteString("\n\nRelevant textbook content:\n")
		b.WriteString(topicContext)
	}

	b.WriteString("\n\nStudent said:\n")
	b.WriteString(utterance)
	return b.String()
}
