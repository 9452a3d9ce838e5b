package domain

import "errors"

var (
	// ErrEmptyInput is returned when a submitted message is blank after trimming.
	ErrEmptyInput = errors.New("input cannot be empty")
	// ErrChatNotFound is returned when a chat id has no record in the store.
	ErrChatNotFound = errors.New("chat not found")
	// ErrSpaceNotFound is returned when a space id has no record in the store.
	ErrSpaceNotFound = errors.New("space not found")
	// ErrQuizNotFound indicates the referenced quiz or history entry does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizExists is returned when generating a quiz for a message that has one.
	ErrQuizExists = errors.New("message already has a quiz")
	// ErrQuizComplete is returned when answering a quiz that already finished.
	ErrQuizComplete = errors.New("quiz already complete")
	// ErrQuestionAnswered is returned on a repeated submission for the same question.
	ErrQuestionAnswered = errors.New("question already answered")
	// ErrAnswerOutOfRange is returned when the chosen option index is invalid.
	ErrAnswerOutOfRange = errors.New("answer index out of range")
	// ErrQuizNotEligible is returned when the session-quiz gate rejects generation.
	ErrQuizNotEligible = errors.New("not enough new conversation for a session quiz")
)

// ParseError reports that model output could not be read as a quiz. It aborts
// quiz generation only; no partial quiz is ever created from bad output.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "quiz parse: " + e.Reason
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
