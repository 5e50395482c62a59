// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the bot identity,
// storage path, captcha policy, dispatcher sizing, and transport limits.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the bot.
type Config struct {
	// Telegram
	BotToken string // TELEGRAM_BOT_TOKEN (required)
	GroupID  int64  // GROUP_CHAT_ID (required): the staffed group

	// Storage
	DBPath string // SQLite path

	// Captcha policy
	CaptchaMaxAttempts  int           // wrong answers before lockout
	CaptchaLockout      time.Duration // lockout duration
	CaptchaChallengeTTL time.Duration // how long a challenge stays answerable; 0 disables
	CaptchaDifficulty   string        // easy|medium|hard|extreme

	// Dispatcher
	WorkerPoolSize  int           // concurrent event handlers
	DispatchTimeout time.Duration // whole-event budget; covers several transport calls

	// Transport
	TransportTimeout time.Duration // per-call Telegram API timeout
	SendRate         float64       // outbound calls per second
	SendBurst        int           // outbound burst size

	// Ops / logging
	OpsAddr   string // listen address for /healthz and /metrics; "" disables
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		BotToken: strings.TrimSpace(getenv("TELEGRAM_BOT_TOKEN", "")),
		GroupID:  getint64("GROUP_CHAT_ID", 0),

		DBPath: getenv("DB_PATH", "betterforward.db"),

		CaptchaMaxAttempts:  getint("CAPTCHA_MAX_ATTEMPTS", 3),
		CaptchaLockout:      getdur("CAPTCHA_LOCKOUT", 10*time.Minute),
		CaptchaChallengeTTL: getdur("CAPTCHA_CHALLENGE_TTL", 2*time.Minute),
		CaptchaDifficulty:   strings.ToLower(getenv("CAPTCHA_DIFFICULTY", "hard")),

		WorkerPoolSize:  getint("WORKER_POOL_SIZE", 5),
		DispatchTimeout: getdur("DISPATCH_TIMEOUT", 30*time.Second),

		TransportTimeout: getdur("TRANSPORT_TIMEOUT", 10*time.Second),
		SendRate:         getfloat("SEND_RATE", 25),
		SendBurst:        getint("SEND_BURST", 5),

		OpsAddr:   getenv("OPS_ADDR", ":9090"),
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate rejects configurations the bot cannot run with.
func (c Config) validate() error {
	if c.BotToken == "" {
		return errors.New("config: TELEGRAM_BOT_TOKEN is required")
	}
	if c.GroupID == 0 {
		return errors.New("config: GROUP_CHAT_ID is required")
	}
	if c.CaptchaMaxAttempts < 1 {
		return errors.New("config: CAPTCHA_MAX_ATTEMPTS must be >= 1")
	}
	if c.CaptchaLockout <= 0 {
		return errors.New("config: CAPTCHA_LOCKOUT must be positive")
	}
	if c.CaptchaChallengeTTL < 0 {
		return errors.New("config: CAPTCHA_CHALLENGE_TTL must not be negative")
	}
	switch c.CaptchaDifficulty {
	case "easy", "medium", "hard", "extreme":
	default:
		return errors.New("config: CAPTCHA_DIFFICULTY must be easy, medium, hard, or extreme")
	}
	if c.WorkerPoolSize < 1 {
		return errors.New("config: WORKER_POOL_SIZE must be >= 1")
	}
	if c.TransportTimeout <= 0 {
		return errors.New("config: TRANSPORT_TIMEOUT must be positive")
	}
	if c.DispatchTimeout < c.TransportTimeout {
		return errors.New("config: DISPATCH_TIMEOUT must be at least TRANSPORT_TIMEOUT")
	}
	if c.SendRate <= 0 || c.SendBurst < 1 {
		return errors.New("config: SEND_RATE must be positive and SEND_BURST >= 1")
	}
	return nil
}

// --- env helpers ---

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getint64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
