package server

import (
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 1 << 20
	defaultBurst           = 20
	defaultRefillInterval  = time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultPushTimeout     = 10 * time.Second
	defaultPushWorkers     = 4
	defaultPushQueueSize   = 256
	defaultPushSubject     = "mailto:admin@localhost"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"BURST"`
	RefillInterval time.Duration `env:"REFILL_INTERVAL"`
}

// PushConfig holds the Web Push credentials and dispatcher sizing.
type PushConfig struct {
	VAPIDPublicKey  string        `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `env:"VAPID_PRIVATE_KEY"`
	Subject         string        `env:"SUBJECT"`
	TTL             int           `env:"TTL"`
	Timeout         time.Duration `env:"TIMEOUT"`
	Workers         int           `env:"WORKERS"`
	QueueSize       int           `env:"QUEUE_SIZE"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string          `env:"SERVER_PORT"`
	AllowedOrigins  []string        `env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxMessageSize  int64           `env:"MAX_MESSAGE_SIZE"`
	ShutdownTimeout time.Duration   `env:"SHUTDOWN_TIMEOUT"`
	Debug           bool            `env:"DEBUG"`
	RateLimit       RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Push            PushConfig      `envPrefix:"PUSH_"`
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
			"http://localhost:5173",
		},
		MaxMessageSize:  defaultMaxMessageSize,
		ShutdownTimeout: defaultShutdownTimeout,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		Push: PushConfig{
			Subject:   defaultPushSubject,
			Timeout:   defaultPushTimeout,
			Workers:   defaultPushWorkers,
			QueueSize: defaultPushQueueSize,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}
	if cfg.Push.Subject == "" {
		cfg.Push.Subject = defaultPushSubject
	}
	if cfg.Push.TTL < 0 {
		cfg.Push.TTL = 0
	}
	if cfg.Push.Timeout <= 0 {
		cfg.Push.Timeout = defaultPushTimeout
	}
	if cfg.Push.Workers <= 0 {
		cfg.Push.Workers = defaultPushWorkers
	}
	if cfg.Push.QueueSize <= 0 {
		cfg.Push.QueueSize = defaultPushQueueSize
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration and returns the sanitized
// result. Passing nil resets to defaults.
func SetConfig(cfg *Config) Config {
	if cfg == nil {
		return sanitizeConfig(defaultConfig())
	}

	copied := *cfg
	copied.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return sanitizeConfig(copied)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	return currentConfig()
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from environment variables. Unset
// variables keep their defaults; malformed values are an error.
func NewConfigFromEnv() (*Config, error) {
	cfg := defaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	return &cfg, nil
}

// AllowsAllOrigins reports whether the active configuration contains "*".
func AllowsAllOrigins() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return allowAllOrigins
}
