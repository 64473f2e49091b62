package user

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-trader-go/internal/events"
	"github.com/ovaphlow/pitchfork/service-trader-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-trader-go/internal/user/repo"
)

var (
	ErrInvalidCredentials = entity.ErrInvalidCredentials
	ErrUserNotFound       = entity.ErrUserNotFound
	ErrDuplicateEmail     = entity.ErrDuplicateEmail
	ErrInvalidUserInput   = entity.ErrInvalidUserInput
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), b.cost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NeedsRehash reports whether the stored hash was produced with a different cost.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return c != b.cost()
}

// CredentialStore is the persistence contract the manager depends on.
// repo.UserRepo and repo.MemoryUserRepo both satisfy it.
type CredentialStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	Create(ctx context.Context, u *entity.User) (*entity.User, error)
	Update(ctx context.Context, u *entity.User) (*entity.User, error)
}

// UserManager orchestrates authentication and user lifecycle flows.
type UserManager struct {
	store     CredentialStore
	hasher    PasswordHasher
	publisher events.Publisher
	logger    *zap.SugaredLogger

	dummyOnce sync.Once
	dummyHash string
}

func NewUserManager(store CredentialStore, hasher PasswordHasher, publisher events.Publisher, logger *zap.SugaredLogger) *UserManager {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &UserManager{store: store, hasher: hasher, publisher: publisher, logger: logger}
}

// Authenticate resolves a user by email and checks the password. Unknown
// emails and wrong passwords return the same error.
func (m *UserManager) Authenticate(ctx context.Context, email, password string) (*entity.User, error) {
	email = entity.NormalizeEmail(email)
	if email == "" {
		m.burnHash(password)
		return nil, ErrInvalidCredentials
	}

	u, err := m.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			// avoid user enumeration through response timing
			m.burnHash(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !m.hasher.Verify(u.HashedPassword, password) {
		return nil, ErrInvalidCredentials
	}

	if m.hasher.NeedsRehash(u.HashedPassword) {
		if newHash, hErr := m.hasher.Hash(password); hErr == nil {
			next := *u
			next.HashedPassword = newHash
			updated, uErr := m.store.Update(ctx, &next)
			if uErr == nil {
				return updated, nil
			}
			m.logger.Warnw("password rehash not stored", "user_id", u.ID, "err", uErr)
		}
	}
	return u, nil
}

func hashError(err error) error {
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return fmt.Errorf("%w: password: %v", ErrInvalidUserInput, err)
	}
	return fmt.Errorf("hash password: %w", err)
}

func (m *UserManager) burnHash(password string) {
	m.dummyOnce.Do(func() {
		m.dummyHash, _ = m.hasher.Hash("not-a-real-password")
	})
	_ = m.hasher.Verify(m.dummyHash, password)
}

func (m *UserManager) Get(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	u, err := m.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// Register creates an active, unverified, non-superuser account.
func (m *UserManager) Register(ctx context.Context, in entity.UserCreate) (*entity.User, error) {
	in.Email = entity.NormalizeEmail(in.Email)
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUserInput, err)
	}
	hash, err := m.hasher.Hash(in.Password)
	if err != nil {
		return nil, hashError(err)
	}
	u, err := m.store.Create(ctx, &entity.User{
		Email:          in.Email,
		HashedPassword: hash,
		IsActive:       true,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Infow("user registered", "user_id", u.ID)
	m.publish(ctx, events.TypeUserRegistered, u)
	return u, nil
}

// Update applies a partial update. Safe updates (self-service) only touch
// email and password; the account flags require safe=false.
func (m *UserManager) Update(ctx context.Context, u *entity.User, in entity.UserUpdate, safe bool) (*entity.User, error) {
	if in.Email != nil {
		e := entity.NormalizeEmail(*in.Email)
		in.Email = &e
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUserInput, err)
	}

	next := *u
	if in.Email != nil && *in.Email != u.Email {
		next.Email = *in.Email
		next.IsVerified = false
	}
	if in.Password != nil {
		hash, err := m.hasher.Hash(*in.Password)
		if err != nil {
			return nil, hashError(err)
		}
		next.HashedPassword = hash
	}
	if !safe {
		if in.IsActive != nil {
			next.IsActive = *in.IsActive
		}
		if in.IsSuperuser != nil {
			next.IsSuperuser = *in.IsSuperuser
		}
		if in.IsVerified != nil {
			next.IsVerified = *in.IsVerified
		}
	}

	updated, err := m.store.Update(ctx, &next)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	m.publish(ctx, events.TypeUserUpdated, updated)
	return updated, nil
}

// OnAfterLogin runs after a successful credential login.
func (m *UserManager) OnAfterLogin(ctx context.Context, u *entity.User) {
	m.publish(ctx, events.TypeUserLoggedIn, u)
}

func (m *UserManager) publish(ctx context.Context, typ string, u *entity.User) {
	if err := m.publisher.Publish(ctx, events.New(typ, u.ID.String(), u.Email)); err != nil {
		m.logger.Warnw("publish user event failed", "type", typ, "user_id", u.ID, "err", err)
	}
}
