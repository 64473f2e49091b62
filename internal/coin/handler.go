package coin

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Price serves GET /coin/price/{coin_id}.
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.Quote(r.Context(), r.PathValue("coin_id"))
	if err != nil {
		if errors.Is(err, ErrUnknownCoin) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown coin"})
			return
		}
		h.logger.Warnw("price lookup failed", "coin_id", r.PathValue("coin_id"), "err", err)
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "price unavailable"})
		return
	}
	h.writeJSON(w, http.StatusOK, q)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
