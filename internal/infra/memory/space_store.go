package memory

import (
	"context"
	"sync"
	"time"

	"learnspace-service/internal/domain"
)

// SpaceStore keeps the space collection in memory with the same wholesale
// overwrite semantics as the Redis-backed store.
type SpaceStore struct {
	clock func() time.Time

	mu     sync.RWMutex
	spaces []domain.Space
}

func NewSpaceStore() *SpaceStore {
	return &SpaceStore{clock: time.Now, spaces: []domain.Space{}}
}

// NewSpaceStoreWithClock is for deterministic timestamps in tests.
func NewSpaceStoreWithClock(now func() time.Time) *SpaceStore {
	store := NewSpaceStore()
	store.clock = now
	return store
}

func (s *SpaceStore) ListAll(_ context.Context) ([]domain.Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Space(nil), s.spaces...), nil
}

func (s *SpaceStore) Create(_ context.Context, space domain.Space) (domain.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaces = append(s.spaces, space)
	return space, nil
}

func (s *SpaceStore) Update(_ context.Context, spaceID string, patch domain.SpacePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.spaces {
		if s.spaces[i].ID == spaceID {
			s.spaces[i].Apply(patch, s.clock())
			break
		}
	}
	return nil
}

func (s *SpaceStore) Delete(_ context.Context, spaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.spaces[:0]
	for _, space := range s.spaces {
		if space.ID != spaceID {
			kept = append(kept, space)
		}
	}
	s.spaces = kept
	return nil
}

func (s *SpaceStore) Sync(_ context.Context, spaces []domain.Space) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaces = append([]domain.Space{}, spaces...)
	return nil
}

func (s *SpaceStore) AppendQuiz(_ context.Context, spaceID string, entry domain.QuizHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.spaces {
		if s.spaces[i].ID == spaceID {
			s.spaces[i].Quizzes = domain.UpsertQuiz(s.spaces[i].Quizzes, entry)
			s.spaces[i].UpdatedAt = s.clock()
			break
		}
	}
	return nil
}
