package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-trader-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-trader-go/internal/coin"
	"github.com/ovaphlow/pitchfork/service-trader-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-trader-go/pkg/utilities"
)

const (
	ServiceVersion  = "1.0.0"
	RequestIDHeader = "X-Request-ID"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", w.Header().Get(RequestIDHeader),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// RequestIDMiddleware echoes the caller's X-Request-ID or assigns a snowflake id.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = utilities.NewSnowflakeID()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prevent MIME sniffing
			w.Header().Set("X-Content-Type-Options", "nosniff")

			// Clickjacking protection
			w.Header().Set("X-Frame-Options", "DENY")

			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")

			// allow none for camera, microphone, geolocation
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}

			// HSTS only over TLS, 30 days
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Dependencies are the handlers and guards the route table is built from.
type Dependencies struct {
	Logger *zap.SugaredLogger
	Auth   *auth.Handler
	Users  *user.Handler
	Coins  *coin.Handler
	// Guard must require an active account; superuser routes derive from it.
	Guard *auth.Guard
	// Backend names the /auth/<name> prefix of the login routes.
	Backend *auth.Backend
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(d Dependencies) http.Handler {
	mux := http.NewServeMux()
	active := d.Guard
	superuser := d.Guard.With(auth.RequireSuperuser())
	prefix := "/auth/" + d.Backend.Name

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "Service is running!", "version": ServiceVersion})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /coin/price/{coin_id}", d.Coins.Price)

	mux.HandleFunc("POST "+prefix+"/login", d.Auth.Login)
	mux.Handle("POST "+prefix+"/logout", active.Middleware(http.HandlerFunc(d.Auth.Logout)))
	mux.HandleFunc("POST /auth/register", d.Auth.Register)

	mux.Handle("GET /users/me", active.Middleware(http.HandlerFunc(d.Users.Me)))
	mux.Handle("PATCH /users/me", active.Middleware(http.HandlerFunc(d.Users.UpdateMe)))
	mux.Handle("GET /users/{id}", superuser.Middleware(http.HandlerFunc(d.Users.Get)))
	mux.Handle("PATCH /users/{id}", superuser.Middleware(http.HandlerFunc(d.Users.Update)))

	mux.Handle("GET /protected-route", active.Middleware(http.HandlerFunc(protectedRoute)))

	handler := LoggingMiddleware(d.Logger)(SecurityHeadersMiddleware()(mux))
	return RequestIDMiddleware()(handler)
}

func protectedRoute(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Hello, %s!", u.Email)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
