package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	devEnv     = "development"
	defaultEnv = "production"
)

type Config struct {
	Port               string
	Env                string
	GinMode            string
	LogLevel           string
	EnableDB           bool
	DatabaseURL        string
	DBMaxConns         int32
	DBMinConns         int32
	JWTSecret          string
	RulesFile          string
	MaxRecommendations int
	RateLimitRPS       float64
	RateLimitBurst     int
	GeminiAPIKey       string
	GeminiModel        string
	StaticRoot         string
	CORSOrigins        []string
	// TrustedProxies lists proxies whose X-Forwarded-For is honoured. Empty trusts none.
	TrustedProxies []string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		Env:          getEnv("ENV", defaultEnv),
		GinMode:      getEnv("GIN_MODE", "release"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		EnableDB:     strings.EqualFold(getEnv("ENABLE_DB", "false"), "true"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		JWTSecret:    os.Getenv("AUTH_JWT_SECRET"),
		RulesFile:    os.Getenv("RULES_FILE"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		StaticRoot:   os.Getenv("STATIC_ROOT"),
		CORSOrigins:  splitList(getEnv("CORS_ORIGINS", "*")),
	}
	cfg.TrustedProxies = splitList(os.Getenv("TRUSTED_PROXIES"))

	var err error
	if cfg.DBMaxConns, err = getInt32("DB_MAX_CONNS", 10); err != nil {
		return nil, err
	}
	if cfg.DBMinConns, err = getInt32("DB_MIN_CONNS", 2); err != nil {
		return nil, err
	}
	if cfg.MaxRecommendations, err = getInt("MAX_RECOMMENDATIONS", 3); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", 40); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "20"), 64); err != nil {
		return nil, fmt.Errorf("RATE_LIMIT_RPS: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.EnableDB && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}
	if !c.IsDevelopment() && c.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required when ENV=%s", c.Env)
	}
	if c.MaxRecommendations < 1 || c.MaxRecommendations > 10 {
		return fmt.Errorf("MAX_RECOMMENDATIONS must be between 1 and 10, got %d", c.MaxRecommendations)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	for _, proxy := range c.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("TRUSTED_PROXIES: %q is not an IP or CIDR", proxy)
			}
		}
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, devEnv)
}

// AIEnabled reports whether chat replies are reworded by the Gemini composer.
func (c *Config) AIEnabled() bool {
	return c.GeminiAPIKey != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getInt32(key string, fallback int32) (int32, error) {
	v, err := getInt(key, int(fallback))
	return int32(v), err
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
