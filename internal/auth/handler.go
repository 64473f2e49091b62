package auth

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-trader-go/internal/user/entity"
)

const maxBodyBytes = 1 << 20

// Handler exposes the login, logout and registration endpoints.
type Handler struct {
	backend *Backend
	users   Users
	logger  *zap.SugaredLogger
}

func NewHandler(backend *Backend, users Users, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{backend: backend, users: users, logger: logger}
}

// LoginRequest login payload. Username is accepted as an alias of Email so
// OAuth2 password-form clients work unchanged.
type LoginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLogin(w, r)
	if err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	email := req.Email
	if email == "" {
		email = req.Username
	}
	if email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	token, err := h.backend.Login(r.Context(), email, req.Password)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidCredentials) {
			h.logger.Debugw("login failed", "err", err)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		h.logger.Errorw("login failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "login failed"})
		return
	}
	h.backend.Transport.WriteLoginResponse(w, token)
}

func decodeLogin(w http.ResponseWriter, r *http.Request) (LoginRequest, error) {
	var req LoginRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		req.Email = r.PostForm.Get("email")
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	return req, err
}

// Logout must run behind the guard.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	if err := h.backend.Logout(r.Context(), sess.Token); err != nil {
		h.logger.Warnw("logout failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "logout failed"})
		return
	}
	h.backend.Transport.WriteLogoutResponse(w)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req entity.UserCreate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Debugw("invalid register payload", "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	u, err := h.users.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrDuplicateEmail):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email already registered"})
		case errors.Is(err, entity.ErrInvalidUserInput):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			h.logger.Errorw("register failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "register failed"})
		}
		return
	}
	writeJSON(w, http.StatusCreated, u.Read())
}
