// Package config loads the server's typed configuration from the
// environment, optionally seeded from a .env file.
//
// Real environment variables always win over values in the file, so a
// deployment can override a checked-in .env without editing it.
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for every setting.
const (
	DefaultPort           = 8080
	DefaultDBPath         = "data/teamrally.db"
	DefaultTokenTTL       = 24 * time.Hour
	DefaultScoreAlpha     = 1.0
	DefaultScoreBeta      = 2.0
	DefaultRankingWorkers = 8
	DefaultRateLimitRPS   = 0.0
	DefaultRateLimitBurst = 100
	DefaultCORSOrigins    = "http://localhost:3000"

	// MinSecretBytes matches the minimum the token service accepts.
	MinSecretBytes = 16

	generatedSecretBytes = 32
)

// Config holds server configuration.
type Config struct {
	Port   int
	DBPath string

	// JWTSecret signs bearer tokens. When JWT_SECRET is unset a random
	// secret is generated and SecretGenerated is true: tokens then die with
	// the process.
	JWTSecret       []byte
	SecretGenerated bool
	TokenTTL        time.Duration

	ScoreAlpha     float64
	ScoreBeta      float64
	RankingWorkers int

	// RateLimitRPS <= 0 disables rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	CORSOrigins []string
	LogLevel    slog.Level
}

// Load reads envFile (usually ".env") if it exists, then the process
// environment. A missing file is not an error.
func Load(envFile string) (*Config, error) {
	fileVals := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileVals = vals
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
		}
	}

	return FromLookup(func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return fileVals[key]
	})
}

// FromLookup builds a Config from a key lookup. An empty value means
// "use the default".
func FromLookup(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Port:           p.intVal("PORT", DefaultPort),
		DBPath:         p.stringVal("DB_PATH", DefaultDBPath),
		TokenTTL:       p.durationVal("TOKEN_TTL", DefaultTokenTTL),
		ScoreAlpha:     p.floatVal("SCORE_ALPHA", DefaultScoreAlpha),
		ScoreBeta:      p.floatVal("SCORE_BETA", DefaultScoreBeta),
		RankingWorkers: p.intVal("RANKING_WORKERS", DefaultRankingWorkers),
		RateLimitRPS:   p.floatVal("RATE_LIMIT_RPS", DefaultRateLimitRPS),
		RateLimitBurst: p.intVal("RATE_LIMIT_BURST", DefaultRateLimitBurst),
		CORSOrigins:    splitList(p.stringVal("CORS_ORIGINS", DefaultCORSOrigins)),
		LogLevel:       p.levelVal("LOG_LEVEL", slog.LevelInfo),
	}

	if p.err != nil {
		return nil, p.err
	}

	switch {
	case cfg.Port < 1 || cfg.Port > 65535:
		return nil, fmt.Errorf("config: PORT must be between 1 and 65535, got %d", cfg.Port)
	case cfg.TokenTTL <= 0:
		return nil, fmt.Errorf("config: TOKEN_TTL must be positive, got %s", cfg.TokenTTL)
	case !(cfg.ScoreAlpha > 0) || math.IsInf(cfg.ScoreAlpha, 0):
		return nil, fmt.Errorf("config: SCORE_ALPHA must be a finite number > 0, got %v", cfg.ScoreAlpha)
	case math.IsNaN(cfg.ScoreBeta) || math.IsInf(cfg.ScoreBeta, 0):
		return nil, fmt.Errorf("config: SCORE_BETA must be finite, got %v", cfg.ScoreBeta)
	case cfg.RankingWorkers < 1:
		return nil, fmt.Errorf("config: RANKING_WORKERS must be at least 1, got %d", cfg.RankingWorkers)
	case cfg.RateLimitBurst < 1:
		return nil, fmt.Errorf("config: RATE_LIMIT_BURST must be at least 1, got %d", cfg.RateLimitBurst)
	}

	if secret := getenv("JWT_SECRET"); secret != "" {
		if len(secret) < MinSecretBytes {
			return nil, fmt.Errorf("config: JWT_SECRET must be at least %d bytes", MinSecretBytes)
		}
		cfg.JWTSecret = []byte(secret)
	} else {
		cfg.JWTSecret = make([]byte, generatedSecretBytes)
		if _, err := rand.Read(cfg.JWTSecret); err != nil {
			return nil, fmt.Errorf("config: generating JWT secret: %w", err)
		}
		cfg.SecretGenerated = true
	}

	return cfg, nil
}

// parser keeps the first parse error so FromLookup can read every key in
// one expression.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: invalid %s %q: %w", key, raw, err)
	}
}

func (p *parser) stringVal(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) intVal(key string, def int) int {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return n
}

func (p *parser) floatVal(key string, def float64) float64 {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return f
}

func (p *parser) durationVal(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return d
}

func (p *parser) levelVal(key string, def slog.Level) slog.Level {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		p.fail(key, raw, err)
		return def
	}
	return lvl
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
