package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"learnspace-service/internal/domain"
)

// ChatStore persists chat sessions in a Redis hash per user:
// HSET user:{userID}:chats {chatID} {serialized session}
type ChatStore struct {
	client *redis.Client
	clock  func() time.Time
	log    *zap.Logger
}

func NewChatStore(client *redis.Client, log *zap.Logger) *ChatStore {
	return &ChatStore{client: client, clock: time.Now, log: log}
}

func (s *ChatStore) chatsKey(userID string) string {
	return "user:" + userID + ":chats"
}

// Save upserts one chat under the user's hash. An empty title falls back to
// the derived prefix of the first message. Re-saving identical content only
// refreshes UpdatedAt; the hash field keeps a single entry per chat id.
func (s *ChatStore) Save(ctx context.Context, userID, chatID string, messages []domain.Message, title string) (domain.ChatSession, error) {
	if title == "" {
		title = domain.DeriveTitle(messages)
	}
	chat := domain.ChatSession{
		ID:        chatID,
		Title:     title,
		Messages:  messages,
		UpdatedAt: s.clock(),
	}
	payload, err := json.Marshal(chat)
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("encode chat %s: %w", chatID, err)
	}
	if err := s.client.HSet(ctx, s.chatsKey(userID), chatID, payload).Err(); err != nil {
		return domain.ChatSession{}, fmt.Errorf("save chat %s: %w", chatID, err)
	}
	return chat, nil
}

// Load fetches a single chat. A missing field maps to ErrChatNotFound so the
// caller can decide to treat it as an empty transcript.
func (s *ChatStore) Load(ctx context.Context, userID, chatID string) (domain.ChatSession, error) {
	payload, err := s.client.HGet(ctx, s.chatsKey(userID), chatID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.ChatSession{}, domain.ErrChatNotFound
	}
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("load chat %s: %w", chatID, err)
	}
	var chat domain.ChatSession
	if err := json.Unmarshal([]byte(payload), &chat); err != nil {
		return domain.ChatSession{}, fmt.Errorf("decode chat %s: %w", chatID, err)
	}
	chat.ID = chatID
	return chat, nil
}

// LoadAll returns every chat for the user, newest first by UpdatedAt.
// Undecodable entries are skipped rather than failing the whole listing.
func (s *ChatStore) LoadAll(ctx context.Context, userID string) ([]domain.ChatSession, error) {
	fields, err := s.client.HGetAll(ctx, s.chatsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load chats for %s: %w", userID, err)
	}
	chats := make([]domain.ChatSession, 0, len(fields))
	for chatID, payload := range fields {
		var chat domain.ChatSession
		if err := json.Unmarshal([]byte(payload), &chat); err != nil {
			s.log.Warn("skipping undecodable chat", zap.String("chatId", chatID), zap.Error(err))
			continue
		}
		chat.ID = chatID
		chats = append(chats, chat)
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

// Delete removes one chat field. Deleting a non-existent id is a no-op success.
func (s *ChatStore) Delete(ctx context.Context, userID, chatID string) error {
	if err := s.client.HDel(ctx, s.chatsKey(userID), chatID).Err(); err != nil {
		return fmt.Errorf("delete chat %s: %w", chatID, err)
	}
	return nil
}
