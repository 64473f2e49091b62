package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// BearerTransport carries tokens in the Authorization header.
type BearerTransport struct {
	// TokenURL is where clients obtain a token (the password login route).
	TokenURL string
}

func NewBearerTransport(tokenURL string) BearerTransport {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return BearerTransport{TokenURL: tokenURL}
}

// Extract returns the bearer token, or ok=false when the request carries none.
func (BearerTransport) Extract(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (BearerTransport) WriteLoginResponse(w http.ResponseWriter, token string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(LoginResponse{AccessToken: token, TokenType: "bearer"})
}

func (BearerTransport) WriteLogoutResponse(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
