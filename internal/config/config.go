package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// Development-only key used when neither ENCRYPTION_KEY nor
	// ENCRYPTION_PASSPHRASE is set.
	devEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	defaultSQLiteURL = "file:tutor.db?_pragma=foreign_keys(1)"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort      string
	JWTSecret     []byte
	LogLevel      string
	Database      DatabaseConfig
	Redis         RedisConfig
	Encryption    EncryptionConfig
	Provider      ProviderConfig
	RequestLogger RequestLoggerConfig
	UsageQueue    UsageQueueConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // sqlite or postgres
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisConfig holds Redis connection settings. An empty Address disables Redis.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ChatLogSize  int64 // records kept in the Redis chat log buffer
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

// EncryptionConfig selects how the key for API keys at rest is obtained.
type EncryptionConfig struct {
	Key        string // 64 hex characters, or base64 of a 16, 24 or 32 byte key
	Passphrase string // scrypt-derived when Key is empty
	Salt       string
}

// UsesDevKey reports whether neither a key nor a passphrase was configured.
func (c EncryptionConfig) UsesDevKey() bool {
	return c.Key == devEncryptionKey && c.Passphrase == ""
}

// IsHexKey reports whether Key is 64 hex characters.
func (c EncryptionConfig) IsHexKey() bool {
	if len(c.Key) != 64 {
		return false
	}
	_, err := hex.DecodeString(c.Key)
	return err == nil
}

// KeyBytes decodes a hex Key.
func (c EncryptionConfig) KeyBytes() ([]byte, error) {
	if len(c.Key) != 64 {
		return nil, fmt.Errorf("encryption key must be 64 hex characters (32 bytes)")
	}
	key, err := hex.DecodeString(c.Key)
	if err != nil {
		return nil, fmt.Errorf("encryption key must be valid hex: %w", err)
	}
	return key, nil
}

// Validate checks that Key, when set, is hex or base64 of an AES key size.
func (c EncryptionConfig) Validate() error {
	if c.Key == "" || c.IsHexKey() {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(c.Key)
	if err != nil {
		return fmt.Errorf("encryption key must be 64 hex characters or base64: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return nil
	default:
		return fmt.Errorf("encryption key must decode to 16, 24 or 32 bytes, got %d", len(key))
	}
}

// ProviderConfig holds provider-related settings
type ProviderConfig struct {
	ReloadInterval     time.Duration // How often to reload providers from database
	RequestTimeout     time.Duration // Default timeout for provider requests
	CacheSize          int
	MirrorTTL          time.Duration // Lifetime of the Redis provider snapshot, 0 = forever
	GoogleSystemPolicy string        // drop or instruction
	SeedFile           string        // YAML file applied at startup
}

// RequestLoggerConfig configures the JSONL chat log. An empty template disables it.
type RequestLoggerConfig struct {
	FilePathTemplate string
	MaxSize          int64
	MaxFiles         int
	BufferSize       int
	FlushInterval    time.Duration
}

// UsageQueueConfig configures the usage record pipeline
type UsageQueueConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	driver := strings.ToLower(getEnvString("DATABASE_DRIVER", "sqlite"))
	dbURL := os.Getenv("DATABASE_URL")
	switch driver {
	case "sqlite":
		if dbURL == "" {
			dbURL = defaultSQLiteURL
		}
	case "postgres":
		if dbURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", driver)
	}

	encryption := EncryptionConfig{
		Key:        os.Getenv("ENCRYPTION_KEY"),
		Passphrase: os.Getenv("ENCRYPTION_PASSPHRASE"),
		Salt:       getEnvString("ENCRYPTION_SALT", "tutor-gateway"),
	}
	if encryption.Key == "" && encryption.Passphrase == "" {
		encryption.Key = devEncryptionKey
	}
	if err := encryption.Validate(); err != nil {
		return nil, err
	}

	policy := getEnvString("GOOGLE_SYSTEM_POLICY", "drop")
	if policy != "drop" && policy != "instruction" {
		return nil, fmt.Errorf("GOOGLE_SYSTEM_POLICY must be drop or instruction, got %q", policy)
	}

	cfg := &Config{
		HTTPPort:  getEnvString("HTTP_PORT", "8080"),
		JWTSecret: []byte(getEnvString("JWT_SECRET", "supersecretkey")),
		LogLevel:  getEnvString("LOG_LEVEL", "warning"),
		Database: DatabaseConfig{
			Driver:          driver,
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Redis: RedisConfig{
			Address:      os.Getenv("REDIS_ADDRESS"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			ChatLogSize:  getEnvInt64("REDIS_CHAT_LOG_SIZE", 1000),
		},
		Encryption: encryption,
		Provider: ProviderConfig{
			ReloadInterval:     getEnvDuration("PROVIDER_RELOAD_INTERVAL", 5*time.Minute),
			RequestTimeout:     getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
			CacheSize:          getEnvInt("PROVIDER_CACHE_SIZE", 256),
			MirrorTTL:          getEnvDuration("PROVIDER_MIRROR_TTL", 0),
			GoogleSystemPolicy: policy,
			SeedFile:           os.Getenv("PROVIDER_SEED_FILE"),
		},
		RequestLogger: RequestLoggerConfig{
			FilePathTemplate: getEnvString("REQUEST_LOGGER_FILE_PATH_TEMPLATE", ""),
			MaxSize:          getEnvInt64("REQUEST_LOGGER_MAX_SIZE", 10_485_760),              // default 10 MB
			MaxFiles:         getEnvInt("REQUEST_LOGGER_MAX_FILES", 5),                        // default 5
			BufferSize:       getEnvInt("REQUEST_LOGGER_BUFFER_SIZE", 100),                    // default 100
			FlushInterval:    getEnvDuration("REQUEST_LOGGER_FLUSH_INTERVAL", 60*time.Second), // default 60 seconds
		},
		UsageQueue: UsageQueueConfig{
			BatchSize:    getEnvInt("USAGE_QUEUE_BATCH_SIZE", 100),
			BatchTimeout: getEnvDuration("USAGE_QUEUE_BATCH_TIMEOUT", 5*time.Second),
			MaxRetries:   getEnvInt("USAGE_QUEUE_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("USAGE_QUEUE_RETRY_BACKOFF", time.Second),
		},
	}

	return cfg, nil
}
