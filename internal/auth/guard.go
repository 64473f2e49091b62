package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-trader-go/internal/user/entity"
)

// State is the point a request reached in the guard before it stopped.
type State int

const (
	Unauthenticated State = iota
	TokenExtracted
	TokenValidated
	UserLoaded
	Accepted
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case TokenExtracted:
		return "token_extracted"
	case TokenValidated:
		return "token_validated"
	case UserLoaded:
		return "user_loaded"
	case Accepted:
		return "accepted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// RejectionError records where and why the guard refused a request.
// Err is ErrUnauthorized or ErrForbidden; Cause is the underlying reason.
type RejectionError struct {
	State State
	Err   error
	Cause error
}

func (e *RejectionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%v at %v", e.Err, e.State)
	}
	return fmt.Sprintf("%v at %v: %v", e.Err, e.State, e.Cause)
}

func (e *RejectionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func (e *RejectionError) Status() int {
	if errors.Is(e.Err, ErrForbidden) {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

func reject(state State, kind, cause error) *RejectionError {
	return &RejectionError{State: state, Err: kind, Cause: cause}
}

var (
	errNoToken      = errors.New("no bearer token")
	errBadSubject   = errors.New("token subject is not a user id")
	errInactive     = errors.New("user is inactive")
	errUnverified   = errors.New("user is not verified")
	errNotSuperuser = errors.New("user is not a superuser")
)

type GuardOption func(*Guard)

func RequireActive() GuardOption    { return func(g *Guard) { g.active = true } }
func RequireVerified() GuardOption  { return func(g *Guard) { g.verified = true } }
func RequireSuperuser() GuardOption { return func(g *Guard) { g.superuser = true } }

// Guard authenticates a request and enforces the configured account flags.
// Each request walks Unauthenticated -> TokenExtracted -> TokenValidated ->
// UserLoaded -> Accepted or stops with a *RejectionError.
type Guard struct {
	transport BearerTransport
	strategy  Strategy
	users     Users
	logger    *zap.SugaredLogger

	active    bool
	verified  bool
	superuser bool
}

func NewGuard(transport BearerTransport, strategy Strategy, users Users, logger *zap.SugaredLogger, opts ...GuardOption) *Guard {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	g := &Guard{transport: transport, strategy: strategy, users: users, logger: logger}
	for _, o := range opts {
		o(g)
	}
	return g
}

// With returns a copy of the guard with extra requirements.
func (g *Guard) With(opts ...GuardOption) *Guard {
	c := *g
	for _, o := range opts {
		o(&c)
	}
	return &c
}

// Authenticate runs the guard for one request. Errors other than
// *RejectionError come from the credential store and mean the request
// could not be decided.
func (g *Guard) Authenticate(r *http.Request) (*Session, error) {
	token, ok := g.transport.Extract(r)
	if !ok {
		return nil, reject(Unauthenticated, ErrUnauthorized, errNoToken)
	}

	subject, err := g.strategy.Validate(token)
	if err != nil {
		return nil, reject(TokenExtracted, ErrUnauthorized, err)
	}
	id, err := uuid.Parse(subject)
	if err != nil {
		return nil, reject(TokenExtracted, ErrUnauthorized, errBadSubject)
	}

	u, err := g.users.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, entity.ErrUserNotFound) {
			return nil, reject(TokenValidated, ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	switch {
	case g.active && !u.IsActive:
		return nil, reject(UserLoaded, ErrForbidden, errInactive)
	case g.verified && !u.IsVerified:
		return nil, reject(UserLoaded, ErrForbidden, errUnverified)
	case g.superuser && !u.IsSuperuser:
		return nil, reject(UserLoaded, ErrForbidden, errNotSuperuser)
	}
	return &Session{User: u, Token: token}, nil
}

// Middleware protects next; accepted requests carry the Session in their context.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.Authenticate(r)
		if err != nil {
			var rej *RejectionError
			if errors.As(err, &rej) {
				g.logger.Debugw("request rejected", "path", r.URL.Path, "state", rej.State.String(), "reason", rej.Error())
				status := rej.Status()
				if status == http.StatusUnauthorized {
					w.Header().Set("WWW-Authenticate", "Bearer")
					writeJSON(w, status, map[string]string{"error": "unauthorized"})
				} else {
					writeJSON(w, status, map[string]string{"error": "forbidden"})
				}
				return
			}
			g.logger.Errorw("guard failed", "path", r.URL.Path, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Session is the identity attached to an accepted request.
type Session struct {
	User  *entity.User
	Token string
}

type sessionKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

func UserFromContext(ctx context.Context) (*entity.User, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return nil, false
	}
	return s.User, s.User != nil
}
