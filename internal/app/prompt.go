package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"learnspace-service/internal/domain"
)

// historyWindow is how many trailing conversation turns accompany a request.
const historyWindow = 10

// contextTurns returns the last historyWindow turns, oldest first, stripped
// to role and content.
func contextTurns(messages []domain.Message) []domain.Turn {
	start := 0
	if len(messages) > historyWindow {
		start = len(messages) - historyWindow
	}
	turns := make([]domain.Turn, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		turns = append(turns, domain.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}

// buildQuizInstruction writes the generation request: question count, missed
// topics to revisit, optional difficulty hint, and the strict output format.
// The opening names what the model was actually given: one message or the
// conversation window.
func buildQuizInstruction(scope domain.QuizScope, count int, missed []domain.QuizQuestion, challenging bool) string {
	source := "conversation"
	if scope == domain.ScopeMessage {
		source = "message"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the %s above, generate exactly %d multiple-choice questions.\n", source, count)

	if len(missed) > 0 {
		b.WriteString("\nThe learner previously answered these incorrectly; revisit the same topics:\n")
		for _, q := range missed {
			correct := ""
			if q.CorrectAnswer >= 0 && q.CorrectAnswer < len(q.Options) {
				correct = q.Options[q.CorrectAnswer]
			}
			fmt.Fprintf(&b, "- %s (correct answer: %s)", q.Question, correct)
			if q.Explanation != "" {
				fmt.Fprintf(&b, " — %s", q.Explanation)
			}
			b.WriteString("\n")
		}
	}

	if challenging {
		b.WriteString("\nThe learner has been scoring well; make these questions more challenging.\n")
	}

	b.WriteString(`
Respond with ONLY a JSON array and no surrounding prose. Each element must have:
- "question": the question text
- "options": exactly 4 answer choices
- "correctAnswer": the index (0-3) of the correct option
- "explanation": why the correct answer is right
- "difficulty": "easy", "medium", or "hard"
- "topic": a short topic tag`)
	return b.String()
}

// parseQuizQuestions reads model output as a question array. It tries a
// direct parse of the trimmed text first, then the first bracketed [...]
// substring; models often wrap the array in prose or code fences.
func parseQuizQuestions(raw string) ([]domain.QuizQuestion, error) {
	trimmed := strings.TrimSpace(raw)

	var questions []domain.QuizQuestion
	if err := json.Unmarshal([]byte(trimmed), &questions); err != nil {
		start := strings.Index(trimmed, "[")
		end := strings.LastIndex(trimmed, "]")
		if start < 0 || end <= start {
			return nil, &domain.ParseError{Reason: "no JSON array in model output"}
		}
		questions = nil
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &questions); err != nil {
			return nil, &domain.ParseError{Reason: "model output is not a valid question array"}
		}
	}

	if len(questions) == 0 {
		return nil, &domain.ParseError{Reason: "model returned no questions"}
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Question) == "" {
			return nil, &domain.ParseError{Reason: fmt.Sprintf("question %d has no text", i)}
		}
		if len(q.Options) == 0 || q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			return nil, &domain.ParseError{Reason: fmt.Sprintf("question %d has an invalid answer key", i)}
		}
	}
	return questions, nil
}
