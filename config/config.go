// Package config loads service settings from .env files and the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/seo-optimizer/seocheck/analyzer"
)

// Config holds every runtime setting
type Config struct {
	Port          string
	GinMode       string
	DevMode       bool
	DataDir       string
	FetchTimeout  time.Duration
	ProbeTimeout  time.Duration
	ProbeCacheTTL time.Duration
	RateLimit     float64 // requests per second per client
	RateBurst     int
	Render        bool // load pages in headless Chrome
	UserAgent     string
}

// Default returns the settings used when nothing is configured
func Default() Config {
	return Config{
		Port:          "8082",
		GinMode:       gin.ReleaseMode,
		DataDir:       "data",
		FetchTimeout:  15 * time.Second,
		ProbeTimeout:  analyzer.DefaultProbeTimeout,
		ProbeCacheTTL: 10 * time.Minute,
		RateLimit:     2,
		RateBurst:     5,
		UserAgent:     analyzer.DefaultUserAgent,
	}
}

// LoadEnv reads .env.development, falling back to .env
func LoadEnv() {
	if err := godotenv.Load(".env.development"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found, using environment variables")
		}
	}
}

// Load reads .env files and then builds the config from the environment
func Load() Config {
	LoadEnv()
	return FromEnv()
}

// FromEnv builds the config from environment variables only. Invalid values
// keep their defaults.
func FromEnv() Config {
	cfg := Default()

	cfg.Port = stringEnv("PORT", cfg.Port)
	cfg.GinMode = stringEnv("GIN_MODE", cfg.GinMode)
	cfg.DevMode = boolEnv("DEV_MODE", cfg.DevMode)
	cfg.DataDir = stringEnv("DATA_DIR", cfg.DataDir)
	cfg.FetchTimeout = durationEnv("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.ProbeTimeout = durationEnv("PROBE_TIMEOUT", cfg.ProbeTimeout)
	cfg.ProbeCacheTTL = durationEnv("PROBE_CACHE_TTL", cfg.ProbeCacheTTL)
	cfg.RateLimit = floatEnv("RATE_LIMIT", cfg.RateLimit)
	cfg.RateBurst = intEnv("RATE_BURST", cfg.RateBurst)
	cfg.Render = boolEnv("RENDER", cfg.Render)
	cfg.UserAgent = stringEnv("USER_AGENT", cfg.UserAgent)

	return cfg
}

func stringEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Ignoring invalid %s=%q: %v", key, value, err)
		return fallback
	}
	return parsed
}

func intEnv(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		log.Printf("Ignoring invalid %s=%q", key, value)
		return fallback
	}
	return parsed
}

func floatEnv(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		log.Printf("Ignoring invalid %s=%q", key, value)
		return fallback
	}
	return parsed
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		log.Printf("Ignoring invalid %s=%q", key, value)
		return fallback
	}
	return parsed
}
