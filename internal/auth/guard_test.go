package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-trader-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-trader-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-trader-go/internal/user/repo"
)

type fixture struct {
	users    *user.UserManager
	strategy *JWTStrategy
	backend  *Backend
	guard    *Guard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := user.NewUserManager(userrepo.NewMemoryUserRepo(), user.BcryptHasher{Cost: bcrypt.MinCost}, nil, nil)
	strategy := NewJWTStrategy(Config{Secret: testSecret})
	transport := NewBearerTransport("")
	return &fixture{
		users:    users,
		strategy: strategy,
		backend:  NewBackend("jwt", transport, strategy, users, nil),
		guard:    NewGuard(transport, strategy, users, nil, RequireActive()),
	}
}

func (f *fixture) register(t *testing.T, email string) *entity.User {
	t.Helper()
	u, err := f.users.Register(context.Background(), entity.UserCreate{Email: email, Password: "s3cret-pass"})
	require.NoError(t, err)
	return u
}

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/protected-route", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestBearerTransport_Extract(t *testing.T) {
	tr := NewBearerTransport("")
	assert.Equal(t, DefaultTokenURL, tr.TokenURL)

	cases := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"BEARER   abc  ", "abc", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer   ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if c.header != "" {
			r.Header.Set("Authorization", c.header)
		}
		tok, ok := tr.Extract(r)
		assert.Equal(t, c.ok, ok, c.header)
		assert.Equal(t, c.token, tok, c.header)
	}
}

func TestBearerTransport_Responses(t *testing.T) {
	tr := NewBearerTransport("")
	rec := httptest.NewRecorder()
	tr.WriteLoginResponse(rec, "tok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"access_token":"tok","token_type":"bearer"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	tr.WriteLogoutResponse(rec)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestBackend_Login(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "alice@example.com")
	ctx := context.Background()

	tok, err := f.backend.Login(ctx, "alice@example.com", "s3cret-pass")
	require.NoError(t, err)
	sub, err := f.strategy.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), sub)

	_, err = f.backend.Login(ctx, "alice@example.com", "wrong")
	require.ErrorIs(t, err, entity.ErrInvalidCredentials)

	no := false
	_, err = f.users.Update(ctx, u, entity.UserUpdate{IsActive: &no}, false)
	require.NoError(t, err)
	_, err = f.backend.Login(ctx, "alice@example.com", "s3cret-pass")
	require.ErrorIs(t, err, entity.ErrInvalidCredentials)

	assert.NoError(t, f.backend.Logout(ctx, tok))
}

func TestGuard_Accepts(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "alice@example.com")
	tok, err := f.strategy.Issue(u.ID.String())
	require.NoError(t, err)

	sess, err := f.guard.Authenticate(bearerRequest(tok))
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.User.ID)
	assert.Equal(t, tok, sess.Token)
}

func TestGuard_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice@example.com")
	aliceTok, err := f.strategy.Issue(alice.ID.String())
	require.NoError(t, err)

	ghostTok, err := f.strategy.Issue(uuid.NewString())
	require.NoError(t, err)
	badSubTok, err := f.strategy.Issue("not-a-uuid")
	require.NoError(t, err)

	t.Run("no token", func(t *testing.T) {
		_, err := f.guard.Authenticate(bearerRequest(""))
		var rej *RejectionError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, Unauthenticated, rej.State)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, http.StatusUnauthorized, rej.Status())
	})

	t.Run("tampered token", func(t *testing.T) {
		_, err := f.guard.Authenticate(bearerRequest(tamper(aliceTok)))
		var rej *RejectionError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, TokenExtracted, rej.State)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unparsable subject", func(t *testing.T) {
		_, err := f.guard.Authenticate(bearerRequest(badSubTok))
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.guard.Authenticate(bearerRequest(ghostTok))
		var rej *RejectionError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, TokenValidated, rej.State)
		assert.ErrorIs(t, err, entity.ErrUserNotFound)
	})

	t.Run("not superuser", func(t *testing.T) {
		_, err := f.guard.With(RequireSuperuser()).Authenticate(bearerRequest(aliceTok))
		var rej *RejectionError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, UserLoaded, rej.State)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Equal(t, http.StatusForbidden, rej.Status())
	})

	t.Run("not verified", func(t *testing.T) {
		_, err := f.guard.With(RequireVerified()).Authenticate(bearerRequest(aliceTok))
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("deactivated after issuance", func(t *testing.T) {
		no := false
		_, err := f.users.Update(ctx, alice, entity.UserUpdate{IsActive: &no}, false)
		require.NoError(t, err)
		_, err = f.guard.Authenticate(bearerRequest(aliceTok))
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestGuard_ExpiredToken(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "alice@example.com")
	tok, err := newTestStrategy(t0).Issue(u.ID.String())
	require.NoError(t, err)

	g := NewGuard(NewBearerTransport(""), newTestStrategy(t0.Add(time.Hour)), f.users, nil)
	_, err = g.Authenticate(bearerRequest(tok))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

type brokenUsers struct{ Users }

func (brokenUsers) Get(context.Context, uuid.UUID) (*entity.User, error) {
	return nil, errors.New("connection refused")
}

func TestGuard_Middleware(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "alice@example.com")
	tok, err := f.strategy.Issue(u.ID.String())
	require.NoError(t, err)

	var seen *entity.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := f.guard.Middleware(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, bearerRequest(tok))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, u.ID, seen.ID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, bearerRequest(""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	f.guard.With(RequireSuperuser()).Middleware(next).ServeHTTP(rec, bearerRequest(tok))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))

	broken := NewGuard(NewBearerTransport(""), f.strategy, brokenUsers{}, nil)
	rec = httptest.NewRecorder()
	broken.Middleware(next).ServeHTTP(rec, bearerRequest(tok))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestContextHelpers(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	assert.False(t, ok)

	u := &entity.User{ID: uuid.New()}
	ctx := WithSession(context.Background(), &Session{User: u, Token: "t"})
	got, ok := UserFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, u, got)
	sess, ok := SessionFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "t", sess.Token)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "state(9)", State(9).String())
}
