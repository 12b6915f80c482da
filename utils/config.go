// utils/config.go
package utils

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates process configuration read from the environment.
type Config struct {
	Port           string
	DatabaseURL    string
	AllowedOrigins string
	PublicDir      string

	GatewayURL            string
	GatewayToken          string
	GatewayReconnectDelay time.Duration

	GeminiAPIKey    string
	PersonaModel    string
	PersonaName     string
	PersonaPrompt   string
	PersonaFallback string
	PersonaTimeout  time.Duration

	LinkCodeTTL  time.Duration
	AdminWallets string

	LogLevel  string
	LogFormat string
}

// LoadConfig reads the environment, applying defaults. DATABASE_URL is required.
func LoadConfig() (Config, error) {
	cfg := Config{
		Port:            valueOrDefault("PORT", "5200"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		AllowedOrigins:  normalizeOrigins(valueOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")),
		PublicDir:       valueOrDefault("PUBLIC_DIR", "./public"),
		GatewayURL:      os.Getenv("GATEWAY_URL"),
		GatewayToken:    os.Getenv("GATEWAY_TOKEN"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		PersonaModel:    valueOrDefault("PERSONA_MODEL", "gemini-2.0-flash"),
		PersonaName:     valueOrDefault("PERSONA_NAME", "Relay"),
		PersonaPrompt:   os.Getenv("PERSONA_PROMPT"),
		PersonaFallback: os.Getenv("PERSONA_FALLBACK"),
		AdminWallets:    os.Getenv("ADMIN_WALLETS"),
		LogLevel:        valueOrDefault("LOG_LEVEL", "info"),
		LogFormat:       valueOrDefault("LOG_FORMAT", "json"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	var err error
	if cfg.GatewayReconnectDelay, err = durationOrDefault("GATEWAY_RECONNECT_DELAY", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PersonaTimeout, err = durationOrDefault("PERSONA_TIMEOUT", 20*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.LinkCodeTTL, err = durationOrDefault("LINK_CODE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ListenAddr is the address handed to fiber.App.Listen.
func (c Config) ListenAddr() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func valueOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationOrDefault(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return d, nil
}

// normalizeOrigins trims each comma-separated origin for Fiber's CORS config.
func normalizeOrigins(csv string) string {
	parts := strings.Split(csv, ",")
	for i, origin := range parts {
		parts[i] = strings.TrimSpace(origin)
	}
	return strings.Join(parts, ",")
}
