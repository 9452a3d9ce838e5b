package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"learnspace-service/internal/domain"
)

// ChatStore persists chat sessions per user.
type ChatStore interface {
	LoadAll(ctx context.Context, userID string) ([]domain.ChatSession, error)
	Load(ctx context.Context, userID, chatID string) (domain.ChatSession, error)
	Save(ctx context.Context, userID, chatID string, messages []domain.Message, title string) (domain.ChatSession, error)
	Delete(ctx context.Context, userID, chatID string) error
}

// SpaceStore persists the space collection as one aggregate document.
type SpaceStore interface {
	ListAll(ctx context.Context) ([]domain.Space, error)
	Create(ctx context.Context, space domain.Space) (domain.Space, error)
	Update(ctx context.Context, spaceID string, patch domain.SpacePatch) error
	Delete(ctx context.Context, spaceID string) error
	Sync(ctx context.Context, spaces []domain.Space) error
	AppendQuiz(ctx context.Context, spaceID string, entry domain.QuizHistoryEntry) error
}

// Inference is the generative text boundary: role-tagged turns in, one
// generated turn out.
type Inference interface {
	Generate(ctx context.Context, turns []domain.Turn) (string, error)
}

const welcomeMessage = "Hi! I'm your study assistant. Ask me anything, and when you're ready I can quiz you on what we've covered."

// Service is the conversation controller plus the quiz lifecycle engine.
// The in-memory working copy it holds is authoritative for the current
// session; every mutation is pushed to the stores best-effort, without
// blocking or rolling back on failure.
type Service struct {
	chats    ChatStore
	spaces   SpaceStore
	llm      Inference
	notifier *Notifier
	log      *zap.Logger

	clock   func() time.Time
	newID   func() string
	persist func(fn func())

	mu       sync.Mutex
	sessions map[string]*session
}

// session is the per-user working state. Its own lock serializes operations
// for one user, so a slow inference call stalls only that user's turn.
type session struct {
	mu sync.Mutex

	chatID      string
	spaceID     string
	title       string
	titlePinned bool
	messages    []domain.Message

	sessionQuizTaken bool
	// assistantMark is the assistant-turn count when the last session quiz
	// was generated; the eligibility gate measures growth past it.
	assistantMark int
	quizAvailable bool
}

// Option tweaks Service construction; used by tests for determinism.
type Option func(*Service)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.clock = now }
}

// WithIDGenerator overrides message/quiz id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithSynchronousPersistence runs fire-and-forget store writes inline, so
// tests can observe them deterministically.
func WithSynchronousPersistence() Option {
	return func(s *Service) { s.persist = func(fn func()) { fn() } }
}

func NewService(chats ChatStore, spaces SpaceStore, llm Inference, notifier *Notifier, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		chats:    chats,
		spaces:   spaces,
		llm:      llm,
		notifier: notifier,
		log:      log,
		clock:    time.Now,
		newID:    uuid.NewString,
		persist:  func(fn func()) { go fn() },
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notifier exposes the notification hub for the transport layer.
func (s *Service) Notifier() *Notifier {
	return s.notifier
}

// sessionFor returns the user's working state, seeding a fresh chat with the
// welcome message on first touch.
func (s *Service) sessionFor(userID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess
	}
	sess := &session{
		chatID: s.newID(),
		messages: []domain.Message{
			{ID: s.newID(), Role: domain.RoleAssistant, Content: welcomeMessage},
		},
	}
	s.sessions[userID] = sess
	return sess
}

// saveActive pushes the current transcript to the chat store without
// blocking the caller. Failures are logged and surfaced as a notification;
// the optimistic local state is never rolled back.
func (s *Service) saveActive(userID string, sess *session) {
	chatID := sess.chatID
	title := ""
	if sess.titlePinned {
		title = sess.title
	}
	messages := append([]domain.Message(nil), sess.messages...)
	s.persist(func() {
		if _, err := s.chats.Save(context.Background(), userID, chatID, messages, title); err != nil {
			s.log.Warn("chat save failed", zap.String("chatId", chatID), zap.Error(err))
			s.notifier.Error("Failed to save chat")
		}
	})
}

// Submit appends the user's message, asks the model for a reply, and appends
// the assistant's message. The user's message stays in the transcript even
// when inference fails; there is no automatic retry.
func (s *Service) Submit(ctx context.Context, userID, input string) (domain.Message, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return domain.Message{}, domain.ErrEmptyInput
	}

	sess := s.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.messages = append(sess.messages, domain.Message{
		ID:      s.newID(),
		Role:    domain.RoleUser,
		Content: input,
	})
	s.saveActive(userID, sess)

	reply, err := s.llm.Generate(ctx, contextTurns(sess.messages))
	if err != nil {
		s.notifier.Error(err.Error())
		return domain.Message{}, err
	}

	assistant := domain.Message{
		ID:      s.newID(),
		Role:    domain.RoleAssistant,
		Content: reply,
	}
	sess.messages = append(sess.messages, assistant)
	s.saveActive(userID, sess)
	s.syncActiveSpaceChat(sess)

	s.refreshQuizAvailable(sess)
	return assistant, nil
}

// refreshQuizAvailable raises the quiz-update flag once the eligibility gate
// opens after a session quiz has been taken. The flag clears when the next
// session quiz is generated.
func (s *Service) refreshQuizAvailable(sess *session) {
	if !sess.sessionQuizTaken || sess.quizAvailable {
		return
	}
	if sessionQuizEligible(sess.messages, sess.assistantMark, sess.sessionQuizTaken) {
		sess.quizAvailable = true
		s.notifier.Publish(domain.Notification{
			Kind:    domain.NotifyQuizAvailable,
			Message: "Enough new material for a fresh session quiz",
		})
	}
}

// NewChat persists a fresh chat seeded with the welcome message, then makes
// it the active context.
func (s *Service) NewChat(ctx context.Context, userID string) (domain.ChatSession, error) {
	sess := s.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.newChatLocked(ctx, userID, sess)
}

func (s *Service) newChatLocked(ctx context.Context, userID string, sess *session) (domain.ChatSession, error) {
	chatID := s.newID()
	messages := []domain.Message{
		{ID: s.newID(), Role: domain.RoleAssistant, Content: welcomeMessage},
	}
	chat, err := s.chats.Save(ctx, userID, chatID, messages, "")
	if err != nil {
		return domain.ChatSession{}, err
	}
	sess.chatID = chatID
	sess.messages = messages
	sess.title = chat.Title
	sess.titlePinned = false
	sess.sessionQuizTaken = false
	sess.assistantMark = 0
	sess.quizAvailable = false
	return chat, nil
}

// SelectChat swaps the active transcript to the stored chat. A missing chat
// is treated as an empty transcript rather than an error.
func (s *Service) SelectChat(ctx context.Context, userID, chatID string) (domain.ChatSession, error) {
	chat, err := s.chats.Load(ctx, userID, chatID)
	if errors.Is(err, domain.ErrChatNotFound) {
		chat = domain.ChatSession{ID: chatID, Messages: []domain.Message{}}
	} else if err != nil {
		return domain.ChatSession{}, err
	}

	sess := s.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.chatID = chatID
	sess.messages = append([]domain.Message(nil), chat.Messages...)
	sess.title = chat.Title
	sess.titlePinned = chat.Title != "" && chat.Title != domain.DeriveTitle(chat.Messages)
	sess.sessionQuizTaken = false
	sess.assistantMark = 0
	sess.quizAvailable = false
	return chat, nil
}

// DeleteChat removes the chat from the store. Deleting the active chat
// immediately seeds a new one so the session never lacks an active chat id.
func (s *Service) DeleteChat(ctx context.Context, userID, chatID string) error {
	if err := s.chats.Delete(ctx, userID, chatID); err != nil {
		return err
	}
	sess := s.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.chatID == chatID {
		if _, err := s.newChatLocked(ctx, userID, sess); err != nil {
			return err
		}
	}
	return nil
}

// RenameChat pins an explicit title against future auto-derivation and
// refreshes the stored record.
func (s *Service) RenameChat(_ context.Context, userID, title string) {
	sess := s.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.title = title
	sess.titlePinned = true
	s.saveActive(userID, sess)
}

// ActiveChat returns the active chat id and a copy of the working transcript.
func (s *Service) ActiveChat(userID string) (string, []domain.Message) {
	sess := s.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.chatID, append([]domain.Message(nil), sess.messages...)
}

// CreateSpace persists a new space seeded with a welcome chat, then makes it
// (and its main chat) the active context.
func (s *Service) CreateSpace(ctx context.Context, userID, name, description string) (domain.Space, error) {
	now := s.clock()
	chat := domain.ChatSession{
		ID:    s.newID(),
		Title: name,
		Messages: []domain.Message{
			{ID: s.newID(), Role: domain.RoleAssistant, Content: welcomeMessage},
		},
		UpdatedAt: now,
	}
	space := domain.Space{
		ID:          s.newID(),
		Name:        name,
		Description: description,
		Chats:       []domain.ChatSession{chat},
		Quizzes:     []domain.QuizHistoryEntry{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	created, err := s.spaces.Create(ctx, space)
	if err != nil {
		return domain.Space{}, err
	}

	sess := s.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.spaceID = created.ID
	sess.chatID = chat.ID
	sess.messages = append([]domain.Message(nil), chat.Messages...)
	sess.title = chat.Title
	sess.titlePinned = true
	sess.sessionQuizTaken = false
	sess.assistantMark = 0
	sess.quizAvailable = false
	return created, nil
}

// SelectSpace makes the stored space the active context, swapping in its
// main chat's transcript.
func (s *Service) SelectSpace(ctx context.Context, userID, spaceID string) (domain.Space, error) {
	spaces, err := s.spaces.ListAll(ctx)
	if err != nil {
		return domain.Space{}, err
	}
	for _, space := range spaces {
		if space.ID != spaceID {
			continue
		}
		sess := s.sessionFor(userID)
		sess.mu.Lock()
		sess.spaceID = space.ID
		if len(space.Chats) > 0 {
			main := space.Chats[0]
			sess.chatID = main.ID
			sess.messages = append([]domain.Message(nil), main.Messages...)
			sess.title = main.Title
			sess.titlePinned = true
		}
		sess.sessionQuizTaken = false
		sess.assistantMark = 0
		sess.quizAvailable = false
		sess.mu.Unlock()
		return space, nil
	}
	return domain.Space{}, domain.ErrSpaceNotFound
}

// syncActiveSpaceChat mirrors the working transcript into the active space's
// main chat record, best-effort.
func (s *Service) syncActiveSpaceChat(sess *session) {
	if sess.spaceID == "" {
		return
	}
	spaceID := sess.spaceID
	chat := domain.ChatSession{
		ID:        sess.chatID,
		Title:     sess.title,
		Messages:  append([]domain.Message(nil), sess.messages...),
		UpdatedAt: s.clock(),
	}
	s.persist(func() {
		err := s.spaces.Update(context.Background(), spaceID, domain.SpacePatch{
			Chats: []domain.ChatSession{chat},
		})
		if err != nil {
			s.log.Warn("space chat sync failed", zap.String("spaceId", spaceID), zap.Error(err))
			s.notifier.Error("Failed to sync space")
		}
	})
}
