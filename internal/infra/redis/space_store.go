package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"learnspace-service/internal/domain"
)

const spacesKey = "spaces"

// SpaceStore persists the full space collection as one serialized document
// under the "spaces" key. Every mutation is a read-modify-write of the whole
// value, so two concurrent writers can lose updates. That is acceptable for
// the single-user deployment this targets; per-space keys with version
// tokens would be the upgrade path.
type SpaceStore struct {
	client *redis.Client
	clock  func() time.Time
	log    *zap.Logger
	sf     singleflight.Group
}

func NewSpaceStore(client *redis.Client, log *zap.Logger) *SpaceStore {
	return &SpaceStore{client: client, clock: time.Now, log: log}
}

// ListAll returns the stored collection; a missing key is an empty list.
// Concurrent loads collapse into a single Redis round trip.
func (s *SpaceStore) ListAll(ctx context.Context) ([]domain.Space, error) {
	result, err, _ := s.sf.Do(spacesKey, func() (interface{}, error) {
		return s.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Space), nil
}

func (s *SpaceStore) load(ctx context.Context) ([]domain.Space, error) {
	payload, err := s.client.Get(ctx, spacesKey).Result()
	if errors.Is(err, redis.Nil) {
		return []domain.Space{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load spaces: %w", err)
	}
	var spaces []domain.Space
	if err := json.Unmarshal([]byte(payload), &spaces); err != nil {
		return nil, fmt.Errorf("decode spaces: %w", err)
	}
	return spaces, nil
}

func (s *SpaceStore) write(ctx context.Context, spaces []domain.Space) error {
	if spaces == nil {
		spaces = []domain.Space{}
	}
	payload, err := json.Marshal(spaces)
	if err != nil {
		return fmt.Errorf("encode spaces: %w", err)
	}
	if err := s.client.Set(ctx, spacesKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("write spaces: %w", err)
	}
	return nil
}

// Create appends the space to the collection and rewrites it wholesale.
func (s *SpaceStore) Create(ctx context.Context, space domain.Space) (domain.Space, error) {
	spaces, err := s.load(ctx)
	if err != nil {
		return domain.Space{}, err
	}
	spaces = append(spaces, space)
	if err := s.write(ctx, spaces); err != nil {
		return domain.Space{}, err
	}
	return space, nil
}

// Update merges partial fields into the matching space and bumps UpdatedAt.
// An unknown id is a silent no-op.
func (s *SpaceStore) Update(ctx context.Context, spaceID string, patch domain.SpacePatch) error {
	spaces, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := range spaces {
		if spaces[i].ID == spaceID {
			spaces[i].Apply(patch, s.clock())
			break
		}
	}
	return s.write(ctx, spaces)
}

// Delete removes the matching space and rewrites the collection.
func (s *SpaceStore) Delete(ctx context.Context, spaceID string) error {
	spaces, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := spaces[:0]
	for _, space := range spaces {
		if space.ID != spaceID {
			kept = append(kept, space)
		}
	}
	return s.write(ctx, kept)
}

// Sync unconditionally overwrites the remote collection with the local
// snapshot. Last write wins; any concurrent remote change is lost.
func (s *SpaceStore) Sync(ctx context.Context, spaces []domain.Space) error {
	return s.write(ctx, spaces)
}

// AppendQuiz adds a history entry to the space's quiz list, replacing any
// existing entry with the same id, and bumps the space's UpdatedAt. An
// unknown space id is a silent no-op, matching Update.
func (s *SpaceStore) AppendQuiz(ctx context.Context, spaceID string, entry domain.QuizHistoryEntry) error {
	spaces, err := s.load(ctx)
	if err != nil {
		return err
	}
	found := false
	for i := range spaces {
		if spaces[i].ID == spaceID {
			spaces[i].Quizzes = domain.UpsertQuiz(spaces[i].Quizzes, entry)
			spaces[i].UpdatedAt = s.clock()
			found = true
			break
		}
	}
	if !found {
		s.log.Warn("append quiz to unknown space", zap.String("spaceId", spaceID))
	}
	return s.write(ctx, spaces)
}
