package linkauth

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DevSecretKey signs tokens when no secret is configured. Never use it in production.
const DevSecretKey = "linkauth-dev-secret-change-me"

// lockTTLFactor covers the find, load and write a broker makes while
// holding a lock, plus password hashing.
const lockTTLFactor = 4

// Config is read from LINKAUTH_* environment variables.
type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	JWTSecret     string        `env:"JWT_SECRET"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"linkauth"`
	JWTSigningAlg string        `env:"JWT_SIGNING_ALG" envDefault:"HS256"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// Store selects the account backend: memory, fs, gorm or gae.
	Store         string `env:"STORE" envDefault:"memory"`
	FSPath        string `env:"FS_PATH" envDefault:"./data"`
	DBDriver      string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN         string `env:"DB_DSN" envDefault:"linkauth.db"`
	GAEProject    string `env:"GAE_PROJECT"`
	GAENamespace  string `env:"GAE_NAMESPACE"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	StoreTimeout      time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	BcryptCost        int           `env:"BCRYPT_COST"`
	MinPasswordLength int           `env:"MIN_PASSWORD_LENGTH" envDefault:"6"`

	// LockTTL bounds how long a distributed lock outlives its holder. It
	// must cover the store calls made under one lock; zero derives it
	// from StoreTimeout.
	LockTTL time.Duration `env:"LOCK_TTL"`

	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

// LoadConfig reads an optional .env file, parses the environment and fills defaults.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "LINKAUTH_"}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.EnsureDefaults()
	return cfg, nil
}

// EnsureDefaults fills values the environment left empty.
func (c *Config) EnsureDefaults() {
	if c.JWTSecret == "" {
		slog.Warn("LINKAUTH_JWT_SECRET not set, using development secret")
		c.JWTSecret = DevSecretKey
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = DefaultTokenExpiry
	}
	if c.StoreTimeout == 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.LockTTL == 0 {
		c.LockTTL = lockTTLFactor * c.StoreTimeout
	}
	if c.LockTTL < lockTTLFactor*c.StoreTimeout {
		slog.Warn("LINKAUTH_LOCK_TTL shorter than the store calls it guards",
			"lock_ttl", c.LockTTL, "store_timeout", c.StoreTimeout)
	}
	if c.MinPasswordLength == 0 {
		c.MinPasswordLength = DefaultMinPasswordLength
	}
	if c.Store == "" {
		c.Store = "memory"
	}
}

// SlogLevel maps LogLevel onto slog.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// TokenService builds the JWT service described by the config.
func (c *Config) TokenService() *JWTService {
	return &JWTService{
		SecretKey:     c.JWTSecret,
		Issuer:        c.JWTIssuer,
		SigningMethod: c.JWTSigningAlg,
		Expiry:        c.TokenTTL,
	}
}

// NewBroker wires a Broker from the config around the given store.
func (c *Config) NewBroker(store AccountStore, locker KeyLocker, metrics Recorder) *Broker {
	b := &Broker{
		Store:        store,
		Tokens:       c.TokenService(),
		Linker:       NewLinker(NewBcryptVerifier(c.BcryptCost)),
		Locker:       locker,
		Validator:    NewSignupValidator(c.MinPasswordLength),
		StoreTimeout: c.StoreTimeout,
		Metrics:      metrics,
	}
	b.EnsureDefaults()
	return b
}
