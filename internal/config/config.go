package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "dev"
	EnvProduction  = "prod"
	EnvTest        = "test"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	LedgerDriverRedis   = "redis"

	TokenFormatPaseto = "paseto"
	TokenFormatJWT    = "jwt"

	HasherArgon2id = "argon2id"
	HasherBcrypt   = "bcrypt"
)

// Minimum hashing cost outside of test configuration.
const (
	minBcryptCost     = 10
	minArgon2MemoryKB = 19 * 1024
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Password  PasswordConfig
	OAuth     OAuthConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port            string
	Env             string // dev, prod or test
	APIPrefix       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedOrigins  []string
}

// StoreConfig selects the persistence backends.
type StoreConfig struct {
	Driver       string // postgres or mongo
	LedgerDriver string // redis, postgres or mongo
	Timeout      time.Duration
}

type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	ChannelBinding string // "require" for Neon DB, empty for local
}

type MongoConfig struct {
	URL    string
	DBName string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AuthConfig struct {
	TokenFormat string
	// PASETO symmetric key (must be 32 bytes for v4.local)
	PasetoKey            []byte
	JWTSecret            []byte
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
}

type PasswordConfig struct {
	Hasher        string
	Argon2Time    int
	Argon2Memory  int // KiB
	Argon2Threads int
	BcryptCost    int
	Concurrency   int64
}

type OAuthConfig struct {
	FacebookProfileURL string
	GoogleProfileURL   string
	Timeout            time.Duration
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("APP_ENV", EnvDevelopment),
			APIPrefix:       getEnv("API_PREFIX", "/v1"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedOrigins:  getSliceEnv("TRUSTED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Store: StoreConfig{
			Driver:       getEnv("STORE_DRIVER", StoreDriverPostgres),
			LedgerDriver: getEnv("LEDGER_DRIVER", LedgerDriverRedis),
			Timeout:      getDurationEnv("STORE_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "todoapi"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			ChannelBinding: getEnv("DB_CHANNEL_BINDING", ""),
		},
		Mongo: MongoConfig{
			URL:    getEnv("MONGO_URL", "mongodb://localhost:27017"),
			DBName: getEnv("MONGO_DB", "todo-api"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			TokenFormat:          getEnv("TOKEN_FORMAT", TokenFormatPaseto),
			PasetoKey:            []byte(getEnv("PASETO_KEY", "")),
			JWTSecret:            []byte(getEnv("JWT_SECRET", "")),
			AccessTokenDuration:  time.Duration(getIntEnv("JWT_EXPIRATION_MINUTES", 15)) * time.Minute,
			RefreshTokenDuration: getDurationEnv("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		},
		Password: PasswordConfig{
			Hasher:        getEnv("PASSWORD_HASHER", HasherArgon2id),
			Argon2Time:    getIntEnv("ARGON2_TIME", 3),
			Argon2Memory:  getIntEnv("ARGON2_MEMORY_KB", 64*1024),
			Argon2Threads: getIntEnv("ARGON2_THREADS", 4),
			BcryptCost:    getIntEnv("BCRYPT_COST", 12),
			Concurrency:   int64(getIntEnv("HASH_CONCURRENCY", runtime.NumCPU())),
		},
		OAuth: OAuthConfig{
			FacebookProfileURL: getEnv("FACEBOOK_PROFILE_URL", "https://graph.facebook.com/me"),
			GoogleProfileURL:   getEnv("GOOGLE_PROFILE_URL", "https://www.googleapis.com/oauth2/v3/userinfo"),
			Timeout:            getDurationEnv("OAUTH_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests: getIntEnv("RATE_LIMIT_REQUESTS", 10),
			Window:   getDurationEnv("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks option combinations that cannot be expressed by defaults.
func (c *Config) Validate() error {
	var errs []error

	switch c.Server.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be one of dev, prod, test, got %q", c.Server.Env))
	}

	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverMongo:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be postgres or mongo, got %q", c.Store.Driver))
	}

	switch c.Store.LedgerDriver {
	case LedgerDriverRedis, StoreDriverPostgres, StoreDriverMongo:
	default:
		errs = append(errs, fmt.Errorf("LEDGER_DRIVER must be redis, postgres or mongo, got %q", c.Store.LedgerDriver))
	}

	switch c.Auth.TokenFormat {
	case TokenFormatPaseto:
		if len(c.Auth.PasetoKey) != 32 {
			errs = append(errs, fmt.Errorf("PASETO_KEY must be exactly 32 bytes, got %d", len(c.Auth.PasetoKey)))
		}
	case TokenFormatJWT:
		if len(c.Auth.JWTSecret) == 0 {
			errs = append(errs, errors.New("JWT_SECRET is required when TOKEN_FORMAT=jwt"))
		}
	default:
		errs = append(errs, fmt.Errorf("TOKEN_FORMAT must be paseto or jwt, got %q", c.Auth.TokenFormat))
	}

	if c.Auth.AccessTokenDuration <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRATION_MINUTES must be positive"))
	}
	if c.Auth.RefreshTokenDuration <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be positive"))
	}

	if c.Password.Concurrency < 1 {
		errs = append(errs, errors.New("HASH_CONCURRENCY must be at least 1"))
	}

	// Cheap hashing is only acceptable in tests.
	lowCostAllowed := c.Server.Env == EnvTest
	switch c.Password.Hasher {
	case HasherArgon2id:
		if !lowCostAllowed && c.Password.Argon2Memory < minArgon2MemoryKB {
			errs = append(errs, fmt.Errorf("ARGON2_MEMORY_KB must be at least %d outside test", minArgon2MemoryKB))
		}
		if c.Password.Argon2Time < 1 || int64(c.Password.Argon2Time) > math.MaxUint32 {
			errs = append(errs, fmt.Errorf("ARGON2_TIME must be between 1 and %d", uint32(math.MaxUint32)))
		}
		if c.Password.Argon2Memory < 1 || int64(c.Password.Argon2Memory) > math.MaxUint32 {
			errs = append(errs, fmt.Errorf("ARGON2_MEMORY_KB must be between 1 and %d", uint32(math.MaxUint32)))
		}
		if c.Password.Argon2Threads < 1 || c.Password.Argon2Threads > math.MaxUint8 {
			errs = append(errs, fmt.Errorf("ARGON2_THREADS must be between 1 and %d", math.MaxUint8))
		}
	case HasherBcrypt:
		if !lowCostAllowed && c.Password.BcryptCost < minBcryptCost {
			errs = append(errs, fmt.Errorf("BCRYPT_COST must be at least %d outside test", minBcryptCost))
		}
	default:
		errs = append(errs, fmt.Errorf("PASSWORD_HASHER must be argon2id or bcrypt, got %q", c.Password.Hasher))
	}

	return errors.Join(errs...)
}

func (c *DatabaseConfig) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)

	if c.ChannelBinding != "" {
		connStr += fmt.Sprintf(" channel_binding=%s", c.ChannelBinding)
	}

	return connStr
}

// Address returns Redis connection address (host:port)
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Store.LedgerDriver == LedgerDriverRedis || c.RateLimit.Requests > 0
}

// UsesPostgres reports whether any component needs a Postgres connection.
func (c *Config) UsesPostgres() bool {
	return c.Store.Driver == StoreDriverPostgres || c.Store.LedgerDriver == StoreDriverPostgres
}

// UsesMongo reports whether any component needs a MongoDB connection.
func (c *Config) UsesMongo() bool {
	return c.Store.Driver == StoreDriverMongo || c.Store.LedgerDriver == StoreDriverMongo
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// getDurationEnv reads a number of seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	seconds, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return time.Duration(seconds) * time.Second
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
