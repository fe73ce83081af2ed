package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryReadingRepository keeps readings in process memory. It backs the
// service when no database is configured.
type MemoryReadingRepository struct {
	mu       sync.RWMutex
	readings map[uuid.UUID]*Reading
}

// NewMemoryReadingRepository creates an empty in-memory repository
func NewMemoryReadingRepository() *MemoryReadingRepository {
	return &MemoryReadingRepository{readings: make(map[uuid.UUID]*Reading)}
}

func (r *MemoryReadingRepository) Save(ctx context.Context, reading *Reading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := reading.prepare(now); err != nil {
		return err
	}
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = now
	}

	stored := *reading
	r.mu.Lock()
	r.readings[stored.ID] = &stored
	r.mu.Unlock()
	return nil
}

func (r *MemoryReadingRepository) Get(ctx context.Context, userID string, id uuid.UUID) (*Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reading, ok := r.readings[id]
	if !ok || reading.UserID != userID {
		return nil, ErrReadingNotFound
	}
	out := *reading
	return &out, nil
}

func (r *MemoryReadingRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*Reading, error) {
	r.mu.RLock()
	var out []*Reading
	for _, reading := range r.readings {
		if reading.UserID == userID {
			cp := *reading
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
