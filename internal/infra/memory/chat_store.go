package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"learnspace-service/internal/domain"
)

// ChatStore is an in-memory implementation of the chat record store, used
// when Redis is not configured and in tests.
type ChatStore struct {
	clock func() time.Time

	mu    sync.RWMutex
	users map[string]map[string]domain.ChatSession
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		clock: time.Now,
		users: make(map[string]map[string]domain.ChatSession),
	}
}

// NewChatStoreWithClock is for deterministic timestamps in tests.
func NewChatStoreWithClock(now func() time.Time) *ChatStore {
	store := NewChatStore()
	store.clock = now
	return store
}

func (s *ChatStore) Save(_ context.Context, userID, chatID string, messages []domain.Message, title string) (domain.ChatSession, error) {
	if title == "" {
		title = domain.DeriveTitle(messages)
	}
	chat := domain.ChatSession{
		ID:        chatID,
		Title:     title,
		Messages:  append([]domain.Message(nil), messages...),
		UpdatedAt: s.clock(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chats, ok := s.users[userID]
	if !ok {
		chats = make(map[string]domain.ChatSession)
		s.users[userID] = chats
	}
	chats[chatID] = chat
	return chat, nil
}

func (s *ChatStore) Load(_ context.Context, userID, chatID string) (domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.users[userID][chatID]
	if !ok {
		return domain.ChatSession{}, domain.ErrChatNotFound
	}
	return chat, nil
}

func (s *ChatStore) LoadAll(_ context.Context, userID string) ([]domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chats := make([]domain.ChatSession, 0, len(s.users[userID]))
	for _, chat := range s.users[userID] {
		chats = append(chats, chat)
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

func (s *ChatStore) Delete(_ context.Context, userID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users[userID], chatID)
	return nil
}
