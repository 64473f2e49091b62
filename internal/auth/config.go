package auth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultLifetime = time.Hour
	DefaultAudience = "trader-api:auth"
	DefaultTokenURL = "/auth/jwt/login"
)

type Config struct {
	Secret   string
	Lifetime time.Duration
	Audience string
}

// ConfigFromEnv reads SECRET (required), JWT_LIFETIME_SECONDS and JWT_AUDIENCE.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Secret:   os.Getenv("SECRET"),
		Lifetime: DefaultLifetime,
		Audience: DefaultAudience,
	}
	if cfg.Secret == "" {
		return Config{}, ErrMissingSecret
	}
	if v := strings.TrimSpace(os.Getenv("JWT_LIFETIME_SECONDS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid JWT_LIFETIME_SECONDS %q", v)
		}
		cfg.Lifetime = time.Duration(n) * time.Second
	}
	if v := strings.TrimSpace(os.Getenv("JWT_AUDIENCE")); v != "" {
		cfg.Audience = v
	}
	return cfg, nil
}
