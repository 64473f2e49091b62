package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-trader-go/internal/user/entity"
)

// Users is the slice of the user manager the auth layer depends on.
type Users interface {
	Authenticate(ctx context.Context, email, password string) (*entity.User, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.User, error)
	Register(ctx context.Context, in entity.UserCreate) (*entity.User, error)
	OnAfterLogin(ctx context.Context, u *entity.User)
}

// Backend pairs a transport with a strategy under a name; the name is the
// route prefix (/auth/<name>).
type Backend struct {
	Name      string
	Transport BearerTransport
	Strategy  Strategy

	users  Users
	logger *zap.SugaredLogger
}

func NewBackend(name string, transport BearerTransport, strategy Strategy, users Users, logger *zap.SugaredLogger) *Backend {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Backend{Name: name, Transport: transport, Strategy: strategy, users: users, logger: logger}
}

// Login checks credentials and issues a token. Unknown email, wrong password
// and inactive accounts all yield entity.ErrInvalidCredentials.
func (b *Backend) Login(ctx context.Context, email, password string) (string, error) {
	u, err := b.users.Authenticate(ctx, email, password)
	if err != nil {
		return "", err
	}
	if !u.IsActive {
		b.logger.Debugw("login rejected for inactive user", "user_id", u.ID)
		return "", entity.ErrInvalidCredentials
	}
	token, err := b.Strategy.Issue(u.ID.String())
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	b.users.OnAfterLogin(ctx, u)
	return token, nil
}

// Logout acknowledges the request. The token stays valid until it expires.
func (b *Backend) Logout(context.Context, string) error {
	return nil
}
