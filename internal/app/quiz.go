package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"learnspace-service/internal/domain"
)

// Session-quiz eligibility thresholds: after a session quiz, the next one
// needs minNewTurns fresh assistant turns, minLongTurns of them substantial.
const (
	minNewTurns   = 3
	minLongTurns  = 2
	longTurnWords = 50
)

// challengeThreshold is the average historical score above which the
// generation prompt asks for harder questions.
const challengeThreshold = 0.8

// questionCountForMessage buckets a single response by word count.
func questionCountForMessage(content string) int {
	words := domain.WordCount(content)
	switch {
	case words < 100:
		return 2
	case words < 200:
		return 3
	case words < 300:
		return 4
	default:
		return 5
	}
}

// questionCountForSession buckets a conversation by assistant turns.
func questionCountForSession(assistantTurns int) int {
	switch {
	case assistantTurns <= 5:
		return 4
	case assistantTurns <= 10:
		return 6
	default:
		return 8
	}
}

func assistantTurnCount(messages []domain.Message) int {
	count := 0
	for _, msg := range messages {
		if msg.Role == domain.RoleAssistant {
			count++
		}
	}
	return count
}

// sessionQuizEligible gates session-quiz generation: always open before the
// first session quiz; afterwards it needs minNewTurns assistant turns since
// the mark, minLongTurns of them over longTurnWords words.
func sessionQuizEligible(messages []domain.Message, assistantMark int, taken bool) bool {
	if !taken {
		return true
	}
	seen, fresh, long := 0, 0, 0
	for _, msg := range messages {
		if msg.Role != domain.RoleAssistant {
			continue
		}
		seen++
		if seen <= assistantMark {
			continue
		}
		fresh++
		if domain.WordCount(msg.Content) > longTurnWords {
			long++
		}
	}
	return fresh >= minNewTurns && long >= minLongTurns
}

// quizOutcome is one finished quiz attempt considered by later generations.
type quizOutcome struct {
	questions []domain.QuizQuestion
	score     int
}

// collectOutcomes merges the completed quizzes still attached to the
// transcript with the space's history entries, unique by quiz id. Session
// quizzes leave the transcript at completion and survive only as history, so
// the history is what keeps them informing later prompts.
func collectOutcomes(messages []domain.Message, history []domain.QuizHistoryEntry) []quizOutcome {
	var outcomes []quizOutcome
	seen := make(map[string]bool)
	for i := range messages {
		q := messages[i].Quiz
		if q == nil || !q.IsComplete {
			continue
		}
		score := 0
		if q.Score != nil {
			score = *q.Score
		}
		outcomes = append(outcomes, quizOutcome{questions: q.Questions, score: score})
		seen[q.ID] = true
	}
	for _, entry := range history {
		if seen[entry.ID] {
			continue
		}
		outcomes = append(outcomes, quizOutcome{questions: entry.Questions, score: entry.Score})
	}
	return outcomes
}

// missedQuestions returns the questions answered incorrectly across the
// collected outcomes.
func missedQuestions(outcomes []quizOutcome) []domain.QuizQuestion {
	var missed []domain.QuizQuestion
	for _, outcome := range outcomes {
		for _, q := range outcome.questions {
			if q.Answered() && !q.Correct() {
				missed = append(missed, q)
			}
		}
	}
	return missed
}

// averageScore is the mean fractional score across outcomes, 0 when there
// are none.
func averageScore(outcomes []quizOutcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	total := 0.0
	for _, outcome := range outcomes {
		if len(outcome.questions) > 0 {
			total += float64(outcome.score) / float64(len(outcome.questions))
		}
	}
	return total / float64(len(outcomes))
}

// spaceHistory fetches the active space's quiz history, best-effort; prompt
// enrichment is not worth failing generation over.
func (s *Service) spaceHistory(ctx context.Context, spaceID string) []domain.QuizHistoryEntry {
	if spaceID == "" {
		return nil
	}
	spaces, err := s.spaces.ListAll(ctx)
	if err != nil {
		s.log.Warn("space history load failed", zap.String("spaceId", spaceID), zap.Error(err))
		return nil
	}
	for _, space := range spaces {
		if space.ID == spaceID {
			return space.Quizzes
		}
	}
	return nil
}

// GenerateQuiz builds a quiz from the given scope and attaches it to the
// transcript: onto the source message for message scope, as a new assistant
// message for session scope. Generation failures leave existing quizzes and
// the transcript untouched.
func (s *Service) GenerateQuiz(ctx context.Context, userID string, scope domain.QuizScope, messageID string) (domain.Message, error) {
	sess := s.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	var target *domain.Message
	var count int
	switch scope {
	case domain.ScopeMessage:
		for i := range sess.messages {
			if sess.messages[i].ID == messageID && sess.messages[i].Role == domain.RoleAssistant {
				target = &sess.messages[i]
				break
			}
		}
		if target == nil {
			return domain.Message{}, domain.ErrChatNotFound
		}
		if target.Quiz != nil {
			return domain.Message{}, domain.ErrQuizExists
		}
		count = questionCountForMessage(target.Content)
	case domain.ScopeSession:
		if !sessionQuizEligible(sess.messages, sess.assistantMark, sess.sessionQuizTaken) {
			return domain.Message{}, domain.ErrQuizNotEligible
		}
		count = questionCountForSession(assistantTurnCount(sess.messages))
	default:
		return domain.Message{}, fmt.Errorf("unknown quiz scope %q", scope)
	}

	turns := contextTurns(sess.messages)
	if scope == domain.ScopeMessage {
		turns = []domain.Turn{{Role: domain.RoleUser, Content: target.Content}}
	}
	outcomes := collectOutcomes(sess.messages, s.spaceHistory(ctx, sess.spaceID))
	instruction := buildQuizInstruction(scope, count, missedQuestions(outcomes), averageScore(outcomes) > challengeThreshold)
	turns = append(turns, domain.Turn{Role: domain.RoleUser, Content: instruction})

	raw, err := s.llm.Generate(ctx, turns)
	if err != nil {
		s.notifier.Error("Quiz generation failed: " + err.Error())
		return domain.Message{}, err
	}
	questions, err := parseQuizQuestions(raw)
	if err != nil {
		s.log.Warn("quiz parse failed", zap.Error(err))
		s.notifier.Error("Failed to generate quiz from the response")
		return domain.Message{}, err
	}

	quiz := &domain.QuizState{
		ID:        s.newID(),
		Questions: questions,
		Type:      scope,
	}

	var carrier domain.Message
	if scope == domain.ScopeMessage {
		target.Quiz = quiz
		carrier = *target
	} else {
		carrier = domain.Message{
			ID:      s.newID(),
			Role:    domain.RoleAssistant,
			Content: "Here's a quiz on our conversation so far. Good luck!",
			Quiz:    quiz,
		}
		sess.messages = append(sess.messages, carrier)
		sess.sessionQuizTaken = true
		sess.assistantMark = assistantTurnCount(sess.messages)
		sess.quizAvailable = false
	}

	s.saveActive(userID, sess)
	s.syncActiveSpaceChat(sess)
	return carrier, nil
}

// SubmitAnswer records the chosen option for the quiz's current question.
// Answers are write-once; answering the last question completes the quiz,
// scores it, and persists the outcome into the active space's history. A
// completed session quiz leaves the transcript and lives on only in history.
func (s *Service) SubmitAnswer(ctx context.Context, userID, messageID string, answer int) (domain.QuizState, error) {
	sess := s.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	var msgIdx = -1
	for i := range sess.messages {
		if sess.messages[i].ID == messageID && sess.messages[i].Quiz != nil {
			msgIdx = i
			break
		}
	}
	if msgIdx < 0 {
		return domain.QuizState{}, domain.ErrQuizNotFound
	}

	quiz := sess.messages[msgIdx].Quiz
	if quiz.IsComplete {
		return domain.QuizState{}, domain.ErrQuizComplete
	}
	question := &quiz.Questions[quiz.CurrentQuestion]
	if question.Answered() {
		return domain.QuizState{}, domain.ErrQuestionAnswered
	}
	if answer < 0 || answer >= len(question.Options) {
		return domain.QuizState{}, domain.ErrAnswerOutOfRange
	}
	chosen := answer
	question.UserAnswer = &chosen

	if quiz.CurrentQuestion < len(quiz.Questions)-1 {
		quiz.CurrentQuestion++
		s.saveActive(userID, sess)
		return *quiz, nil
	}

	score := domain.ScoreOf(quiz.Questions)
	quiz.Score = &score
	quiz.IsComplete = true

	entry := domain.QuizHistoryEntry{
		ID:        quiz.ID,
		Questions: append([]domain.QuizQuestion(nil), quiz.Questions...),
		Score:     score,
		TakenAt:   s.clock(),
		Type:      quiz.Type,
	}
	if sess.spaceID != "" {
		spaceID := sess.spaceID
		s.persist(func() {
			if err := s.spaces.AppendQuiz(context.Background(), spaceID, entry); err != nil {
				s.log.Warn("quiz history save failed", zap.String("spaceId", spaceID), zap.Error(err))
				s.notifier.Error("Failed to save quiz result")
			}
		})
	} else {
		s.log.Debug("quiz completed outside a space; history not persisted", zap.String("quizId", quiz.ID))
	}

	result := *quiz
	if quiz.Type == domain.ScopeSession {
		sess.messages = append(sess.messages[:msgIdx], sess.messages[msgIdx+1:]...)
		// The carrier was an assistant message counted by the mark; removing
		// it without adjusting would leave the eligibility gate one turn short.
		if sess.assistantMark > 0 {
			sess.assistantMark--
		}
	}

	s.saveActive(userID, sess)
	s.syncActiveSpaceChat(sess)
	return result, nil
}

// Retake clears the stored history entry's answers in place and re-injects a
// fresh in-progress quiz as a new chat message, so the user re-answers
// inline. Completing the retake replaces the same entry.
func (s *Service) Retake(ctx context.Context, userID, spaceID, quizID string) (domain.Message, error) {
	spaces, err := s.spaces.ListAll(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	var entry *domain.QuizHistoryEntry
	for i := range spaces {
		if spaces[i].ID != spaceID {
			continue
		}
		for j := range spaces[i].Quizzes {
			if spaces[i].Quizzes[j].ID == quizID {
				entry = &spaces[i].Quizzes[j]
				break
			}
		}
		break
	}
	if entry == nil {
		return domain.Message{}, domain.ErrQuizNotFound
	}

	entry.ResetForRetake()
	if err := s.spaces.AppendQuiz(ctx, spaceID, *entry); err != nil {
		return domain.Message{}, err
	}

	sess := s.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.spaceID = spaceID
	carrier := domain.Message{
		ID:      s.newID(),
		Role:    domain.RoleAssistant,
		Content: "Let's retake this quiz. Fresh start!",
		Quiz:    entry.FreshState(),
	}
	sess.messages = append(sess.messages, carrier)
	s.saveActive(userID, sess)
	return carrier, nil
}
