package consultation

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRepo struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]Session
}

// NewMemoryRepository keeps sessions in process memory. Nothing survives a
// restart.
func NewMemoryRepository() Repository {
	return &memoryRepo{byID: make(map[uuid.UUID]Session)}
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copySession(s), nil
}

func (r *memoryRepo) Save(_ context.Context, s *Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *copySession(*s)
	if prev, ok := r.byID[s.ID]; ok {
		stored.UserID = prev.UserID
		stored.CreatedAt = prev.CreatedAt
	}
	r.byID[s.ID] = stored
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return ErrSessionNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *memoryRepo) ListByUser(_ context.Context, userID string) ([]Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := []Session{}
	for _, s := range r.byID {
		if s.UserID == userID {
			sessions = append(sessions, *copySession(s))
		}
	}
	sortByRecent(sessions)
	return sessions, nil
}

func sortByRecent(sessions []Session) {
	slices.SortFunc(sessions, func(a, b Session) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

func copySession(s Session) *Session {
	s.State = slices.Clone(s.State)
	return &s
}
