package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-trader-go/pkg/utilities"
)

// Strategy issues and validates access tokens.
type Strategy interface {
	Issue(userID string) (string, error)
	Validate(token string) (string, error)
}

// JWTStrategy signs HS256 tokens with a shared secret. Tokens are stateless:
// nothing is stored and nothing can be revoked before exp.
type JWTStrategy struct {
	secret   []byte
	lifetime time.Duration
	audience string
	now      func() time.Time
}

func NewJWTStrategy(cfg Config) *JWTStrategy {
	lifetime := cfg.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	aud := cfg.Audience
	if aud == "" {
		aud = DefaultAudience
	}
	return &JWTStrategy{secret: []byte(cfg.Secret), lifetime: lifetime, audience: aud, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (s *JWTStrategy) WithClock(now func() time.Time) *JWTStrategy {
	s.now = now
	return s
}

func (s *JWTStrategy) Lifetime() time.Duration { return s.lifetime }

// Issue creates a signed access token for the given user id.
func (s *JWTStrategy) Issue(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("issue token: empty subject")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		ID:        utilities.NewKSUID(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies the signature first and only then the registered claims,
// so a forged token is always reported as invalid rather than expired.
// It returns the subject of a valid token.
func (s *JWTStrategy) Validate(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return "", ErrInvalidToken
	}

	v := jwt.NewValidator(
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err := v.Validate(claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
