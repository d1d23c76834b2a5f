package consultation

import (
	"context"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2"
	"github.com/samber/oops"
)

// CachedRepository keeps recently used sessions in an LRU in front of another
// Repository. Saves write through; a failed save or a delete evicts the entry
// so a read never returns something the origin does not hold.
type CachedRepository struct {
	origin Repository
	cache  *lru.Cache[uuid.UUID, Session]
}

func NewCachedRepository(origin Repository, size int) (*CachedRepository, error) {
	cache, err := lru.New[uuid.UUID, Session](size)
	if err != nil {
		return nil, oops.In("session-cache").With("size", size).Wrapf(err, "failed to create session cache")
	}
	return &CachedRepository{origin: origin, cache: cache}, nil
}

func (r *CachedRepository) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	if s, ok := r.cache.Get(id); ok {
		return copySession(s), nil
	}

	s, err := r.origin.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// A save may have landed while the origin was read; its entry wins.
	if found, _ := r.cache.ContainsOrAdd(id, *copySession(*s)); found {
		if cached, ok := r.cache.Peek(id); ok {
			return copySession(cached), nil
		}
	}
	return s, nil
}

func (r *CachedRepository) Save(ctx context.Context, s *Session) error {
	if err := r.origin.Save(ctx, s); err != nil {
		r.cache.Remove(s.ID)
		return err
	}
	r.cache.Add(s.ID, *copySession(*s))
	return nil
}

func (r *CachedRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.cache.Remove(id)
	return r.origin.Delete(ctx, id)
}

// ListByUser always reads the origin; listings are not cached.
func (r *CachedRepository) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	return r.origin.ListByUser(ctx, userID)
}

func (r *CachedRepository) Len() int {
	return r.cache.Len()
}
