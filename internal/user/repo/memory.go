package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ovaphlow/pitchfork/service-trader-go/internal/user/entity"
)

// MemoryUserRepo is an in-process credential store with the same contract as
// UserRepo. It backs tests and local tooling; it is not used when serving traffic.
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]entity.User
	byEmail map[string]uuid.UUID
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:    map[uuid.UUID]entity.User{},
		byEmail: map[string]uuid.UUID{},
	}
}

func (r *MemoryUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r *MemoryUserRepo) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[entity.NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	u := r.byID[id]
	return &u, nil
}

func (r *MemoryUserRepo) Create(ctx context.Context, u *entity.User) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := *u
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.Email = entity.NormalizeEmail(row.Email)
	now := time.Now().UTC()
	row.CreatedAt, row.UpdatedAt = now, now

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byEmail[row.Email]; taken {
		return nil, entity.ErrDuplicateEmail
	}
	r.byID[row.ID] = row
	r.byEmail[row.Email] = row.ID
	return &row, nil
}

func (r *MemoryUserRepo) Update(ctx context.Context, u *entity.User) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row := *u
	row.Email = entity.NormalizeEmail(row.Email)
	row.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.byID[row.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if owner, taken := r.byEmail[row.Email]; taken && owner != row.ID {
		return nil, entity.ErrDuplicateEmail
	}
	row.CreatedAt = prev.CreatedAt
	delete(r.byEmail, prev.Email)
	r.byID[row.ID] = row
	r.byEmail[row.Email] = row.ID
	return &row, nil
}
