package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-trader-go/internal/user/entity"
)

const maxBodyBytes = 1 << 20

// CurrentUserFunc returns the authenticated user attached to a request context.
type CurrentUserFunc func(ctx context.Context) (*entity.User, bool)

// Handler exposes HTTP endpoints for reading and updating accounts. All routes
// are mounted behind the auth guard.
type Handler struct {
	manager *UserManager
	current CurrentUserFunc
	logger  *zap.SugaredLogger
}

func NewHandler(manager *UserManager, current CurrentUserFunc, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{manager: manager, current: current, logger: logger}
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := h.current(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	h.writeJSON(w, http.StatusOK, u.Read())
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	u, ok := h.current(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	h.update(w, r, u, true)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	u, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, u.Read())
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	u, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.update(w, r, u, false)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*entity.User, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		return nil, false
	}
	u, err := h.manager.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return nil, false
		}
		h.logger.Errorw("load user failed", "user_id", id, "err", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return nil, false
	}
	return u, true
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, u *entity.User, safe bool) {
	var req entity.UserUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Debugw("invalid update payload", "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	updated, err := h.manager.Update(r.Context(), u, req, safe)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email already registered"})
		case errors.Is(err, ErrInvalidUserInput):
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrUserNotFound):
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
		default:
			h.logger.Errorw("update user failed", "user_id", u.ID, "err", err)
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "update failed"})
		}
		return
	}
	h.writeJSON(w, http.StatusOK, updated.Read())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
