package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role tags a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// QuizScope says what content a quiz was generated from.
type QuizScope string

const (
	// ScopeMessage quizzes a single assistant response.
	ScopeMessage QuizScope = "message"
	// ScopeSession quizzes the whole conversation so far.
	ScopeSession QuizScope = "session"
)

// Turn is the role+content view of a message sent to the inference gateway.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message is one entry in a chat transcript. Immutable once appended,
// except for the optional Quiz field which mutates as the quiz progresses.
type Message struct {
	ID      string     `json:"id"`
	Role    Role       `json:"role"`
	Content string     `json:"content"`
	Quiz    *QuizState `json:"quiz,omitempty"`
}

// QuizQuestion is a single MCQ with four options. UserAnswer is the only
// field written after creation, and only once.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	UserAnswer    *int     `json:"userAnswer,omitempty"`
	Explanation   string   `json:"explanation,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
	Topic         string   `json:"topic,omitempty"`
}

// Answered reports whether the user has answered this question.
func (q QuizQuestion) Answered() bool {
	return q.UserAnswer != nil
}

// Correct reports whether the recorded answer matches the correct option.
func (q QuizQuestion) Correct() bool {
	return q.UserAnswer != nil && *q.UserAnswer == q.CorrectAnswer
}

// QuizState is an in-progress or completed quiz attached to a message.
// CurrentQuestion advances monotonically from 0; IsComplete flips exactly
// when the last question is answered; Score is set once at completion.
type QuizState struct {
	ID              string         `json:"id,omitempty"`
	Questions       []QuizQuestion `json:"questions"`
	CurrentQuestion int            `json:"currentQuestion"`
	IsComplete      bool           `json:"isComplete"`
	Score           *int           `json:"score,omitempty"`
	Type            QuizScope      `json:"type,omitempty"`
}

// ScoreOf counts the questions whose recorded answer is correct.
func ScoreOf(questions []QuizQuestion) int {
	score := 0
	for _, q := range questions {
		if q.Correct() {
			score++
		}
	}
	return score
}

// ChatSession is one conversation: an ordered transcript plus a title.
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Space groups one conversation and its quiz history under a learning topic.
// By convention the "main" chat occupies index 0 of Chats.
type Space struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Chats       []ChatSession      `json:"chats"`
	Quizzes     []QuizHistoryEntry `json:"quizzes"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// SpacePatch carries partial space fields for an update; nil means unchanged.
type SpacePatch struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Chats       []ChatSession      `json:"chats,omitempty"`
	Quizzes     []QuizHistoryEntry `json:"quizzes,omitempty"`
}

// Apply merges the set fields of a patch into the space and bumps UpdatedAt.
func (s *Space) Apply(p SpacePatch, now time.Time) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Chats != nil {
		s.Chats = p.Chats
	}
	if p.Quizzes != nil {
		s.Quizzes = p.Quizzes
	}
	s.UpdatedAt = now
}

// UpsertQuiz appends the entry to the history, replacing any existing entry
// with the same id so the list stays unique by id.
func UpsertQuiz(entries []QuizHistoryEntry, entry QuizHistoryEntry) []QuizHistoryEntry {
	for i := range entries {
		if entries[i].ID == entry.ID {
			entries[i] = entry
			return entries
		}
	}
	return append(entries, entry)
}

// QuizHistoryEntry records a completed quiz attempt. Entries are unique by
// ID within a space; a retake rewrites the entry in place.
type QuizHistoryEntry struct {
	ID        string         `json:"id"`
	Questions []QuizQuestion `json:"questions"`
	Score     int            `json:"score"`
	TakenAt   time.Time      `json:"takenAt"`
	Type      QuizScope      `json:"type"`
}

// ResetForRetake clears the answer surface of the entry: every UserAnswer
// and the Score. Question text, options, correct answers and explanations
// are untouched.
func (e *QuizHistoryEntry) ResetForRetake() {
	for i := range e.Questions {
		e.Questions[i].UserAnswer = nil
	}
	e.Score = 0
}

// FreshState builds a new in-progress QuizState from the entry, keyed by the
// same id so that completing the retake replaces the entry rather than
// duplicating it.
func (e QuizHistoryEntry) FreshState() *QuizState {
	questions := make([]QuizQuestion, len(e.Questions))
	copy(questions, e.Questions)
	for i := range questions {
		questions[i].UserAnswer = nil
	}
	return &QuizState{
		ID:              e.ID,
		Questions:       questions,
		CurrentQuestion: 0,
		IsComplete:      false,
		Type:            e.Type,
	}
}

const titleMaxLen = 30

// DeriveTitle returns the default chat title: a 30-character prefix of the
// first message's content, or "New Chat" when the transcript is empty.
func DeriveTitle(messages []Message) string {
	if len(messages) == 0 || strings.TrimSpace(messages[0].Content) == "" {
		return "New Chat"
	}
	content := messages[0].Content
	if utf8.RuneCountInString(content) <= titleMaxLen {
		return content
	}
	runes := []rune(content)
	return string(runes[:titleMaxLen])
}

// WordCount counts whitespace-separated words in a piece of content.
func WordCount(content string) int {
	return len(strings.Fields(content))
}

// Notification is a transient user-visible event pushed over the event
// stream: an error toast, an informational note, or the quiz-available flag.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
}

// NotificationKind classifies a notification.
type NotificationKind string

const (
	NotifyError         NotificationKind = "error"
	NotifyInfo          NotificationKind = "info"
	NotifyQuizAvailable NotificationKind = "quizAvailable"
)
