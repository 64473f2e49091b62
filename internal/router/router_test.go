package router

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-trader-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-trader-go/internal/coin"
	"github.com/ovaphlow/pitchfork/service-trader-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-trader-go/internal/user/repo"
)

func newTestHandler(logger *zap.SugaredLogger) http.Handler {
	manager := user.NewUserManager(userrepo.NewMemoryUserRepo(), user.BcryptHasher{Cost: bcrypt.MinCost}, nil, logger)
	strategy := auth.NewJWTStrategy(auth.Config{Secret: "router-secret"})
	transport := auth.NewBearerTransport("")
	backend := auth.NewBackend("jwt", transport, strategy, manager, logger)
	return RegisterRoutes(Dependencies{
		Logger:  logger,
		Auth:    auth.NewHandler(backend, manager, logger),
		Users:   user.NewHandler(manager, auth.UserFromContext, logger),
		Coins:   coin.NewHandler(coin.NewService(nil), logger),
		Guard:   auth.NewGuard(transport, strategy, manager, logger, auth.RequireActive()),
		Backend: backend,
	})
}

func TestRoutes_SecurityHeadersAndRequestID(t *testing.T) {
	h := newTestHandler(zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "caller-id-1")
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "caller-id-1", rec.Header().Get(RequestIDHeader))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRoutes_ProtectedWithoutTokenIsUnauthorized(t *testing.T) {
	h := newTestHandler(zap.NewNop().Sugar())
	for _, path := range []string{"/protected-route", "/users/me"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"), path)
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(zap.NewNop().Sugar())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/jwt/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := newTestHandler(zap.New(core).Sugar())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/coin/price/bitcoin", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/coin/price/bitcoin", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.Equal(t, rec.Header().Get(RequestIDHeader), fields["request_id"])
}
