// Package config parses process configuration from the environment,
// following the teacher's inline getEnvInt/getEnvInt64 helper style
// (originally in main.go), promoted here to a package since configuration
// is this service's focus rather than an afterthought. An optional YAML
// file can overlay defaults before environment variables are applied.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every environment-tunable knob named in spec.md §6.5 and
// its SPEC_FULL.md additions.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	ChainAPIKey string `yaml:"chain_api_key"`
	PollMs      int    `yaml:"poll_ms"`
	NodeEnv     string `yaml:"node_env"`

	WorkerCount       int      `yaml:"worker_count"`
	AggregatorBaseURL string   `yaml:"aggregator_base_url"`
	AggregatorAPIKey  string   `yaml:"aggregator_api_key"`
	NativeAMMBaseURL  string   `yaml:"native_amm_base_url"`
	RiskAPIBaseURL    string   `yaml:"risk_api_base_url"`
	RiskAPIKey        string   `yaml:"risk_api_key"`
	RPCEndpoints      []string `yaml:"rpc_endpoints"`
	QuoteCacheTTL     time.Duration
	BanTTL            time.Duration
	APIRateLimitRPS   float64 `yaml:"api_rate_limit_rps"`
	APIRateLimitBurst int     `yaml:"api_rate_limit_burst"`
	LogLevel          string  `yaml:"log_level"`
	AdminJWTSecret    string  `yaml:"admin_jwt_secret"`
}

// Load reads an optional YAML overlay from path (ignored if path is empty
// or unreadable) and then applies environment variables on top, mirroring
// the teacher's config.Load + main.go env-parsing split.
func Load(path string) *Config {
	cfg := defaults()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(data, cfg)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.ChainAPIKey = getEnv("CHAIN_API_KEY", cfg.ChainAPIKey)
	cfg.PollMs = getEnvInt("POLL_MS", cfg.PollMs)
	cfg.NodeEnv = getEnv("NODE_ENV", cfg.NodeEnv)

	cfg.WorkerCount = getEnvInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.AggregatorBaseURL = getEnv("AGGREGATOR_BASE_URL", cfg.AggregatorBaseURL)
	cfg.AggregatorAPIKey = getEnv("AGGREGATOR_API_KEY", cfg.AggregatorAPIKey)
	cfg.NativeAMMBaseURL = getEnv("NATIVE_AMM_BASE_URL", cfg.NativeAMMBaseURL)
	cfg.RiskAPIBaseURL = getEnv("RISK_API_BASE_URL", cfg.RiskAPIBaseURL)
	cfg.RiskAPIKey = getEnv("RISK_API_KEY", cfg.RiskAPIKey)
	if v := getEnv("RPC_ENDPOINTS", ""); v != "" {
		cfg.RPCEndpoints = splitCSV(v)
	}

	ttlSec := getEnvInt("QUOTE_CACHE_TTL_SECONDS", int(cfg.QuoteCacheTTL/time.Second))
	if ttlSec < 5 {
		ttlSec = 5
	}
	if ttlSec > 60 {
		ttlSec = 60
	}
	cfg.QuoteCacheTTL = time.Duration(ttlSec) * time.Second

	banHours := getEnvInt("BAN_TTL_HOURS", int(cfg.BanTTL/time.Hour))
	cfg.BanTTL = time.Duration(banHours) * time.Hour

	cfg.APIRateLimitRPS = getEnvFloat("API_RATE_LIMIT_RPS", cfg.APIRateLimitRPS)
	cfg.APIRateLimitBurst = getEnvInt("API_RATE_LIMIT_BURST", cfg.APIRateLimitBurst)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.AdminJWTSecret = getEnv("ADMIN_JWT_SECRET", cfg.AdminJWTSecret)

	return cfg
}

func defaults() *Config {
	return &Config{
		Port:              "3305",
		DatabaseURL:       "file:splpulse.db",
		RedisURL:          "localhost:6379",
		PollMs:            2000,
		NodeEnv:           "development",
		WorkerCount:       10,
		RPCEndpoints:      []string{"http://localhost:8899"},
		QuoteCacheTTL:     20 * time.Second,
		BanTTL:            24 * time.Hour,
		APIRateLimitRPS:   10,
		APIRateLimitBurst: 20,
		LogLevel:          "info",
	}
}

func getEnv(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
