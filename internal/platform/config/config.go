package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DatabaseTypeMongoDB = "mongodb"
	DatabaseTypeMemory  = "memory"

	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config is the full configuration of a docstore process
type Config struct {
	Database DatabaseConfig `json:"database"`
	Cursor   CursorConfig   `json:"cursor"`
	Cache    CacheConfig    `json:"cache"`
	Log      LogConfig      `json:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Type    string        `json:"type"`
	Name    string        `json:"name"`
	MongoDB MongoDBConfig `json:"mongodb"`
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URI                    string        `json:"uri"`
	Host                   string        `json:"host"`
	Port                   int           `json:"port"`
	Username               string        `json:"username"`
	Password               string        `json:"password"`
	AuthDatabase           string        `json:"authDatabase"`
	ReplicaSet             string        `json:"replicaSet"`
	SSL                    bool          `json:"ssl"`
	MaxPoolSize            int           `json:"maxPoolSize"`
	MinPoolSize            int           `json:"minPoolSize"`
	ConnectTimeout         time.Duration `json:"connectTimeout"`
	SocketTimeout          time.Duration `json:"socketTimeout"`
	ServerSelectionTimeout time.Duration `json:"serverSelectionTimeout"`
}

// CursorConfig holds paging defaults for cursors
type CursorConfig struct {
	DefaultLimit   int `json:"defaultLimit"`
	VisitBatchSize int `json:"visitBatchSize"`
}

// CacheConfig holds compiled-filter cache configuration
type CacheConfig struct {
	Enabled   bool          `json:"enabled"`
	Backend   string        `json:"backend"`
	TTL       time.Duration `json:"ttl"`
	Prefix    string        `json:"prefix"`
	MaxMemory int64         `json:"maxMemory"`
	Redis     RedisConfig   `json:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	Database int    `json:"database"`
	PoolSize int    `json:"poolSize"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Debug bool `json:"debug"`
}

// LoadFromEnv loads configuration from the environment.
// Precedence: explicit environment variables, then values from a .env file,
// then defaults.
func LoadFromEnv() (*Config, error) {
	envPaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	var loadErr error
	for _, envPath := range envPaths {
		loadErr = godotenv.Load(envPath)
		if loadErr == nil {
			break
		}
	}
	if loadErr != nil {
		fmt.Println("INFO: .env file not found, using environment variables and defaults.")
	}

	return load(os.Getenv)
}

// LoadFromMap loads configuration from an in-memory map without touching the
// process environment.
func LoadFromMap(envMap map[string]string) (*Config, error) {
	return load(func(key string) string { return envMap[key] })
}

func load(lookup func(string) string) (*Config, error) {
	env := envReader{lookup: lookup}

	config := &Config{
		Database: DatabaseConfig{
			Type: env.str("DB_TYPE", DatabaseTypeMemory),
			Name: env.str("DB_NAME", "docstore"),
			MongoDB: MongoDBConfig{
				URI:                    env.str("MONGO_URI", ""),
				Host:                   env.str("MONGO_HOST", "localhost"),
				Port:                   env.int("MONGO_PORT", 27017),
				Username:               env.str("MONGO_USERNAME", ""),
				Password:               env.str("MONGO_PASSWORD", ""),
				AuthDatabase:           env.str("MONGO_AUTH_DATABASE", ""),
				ReplicaSet:             env.str("MONGO_REPLICA_SET", ""),
				SSL:                    env.bool("MONGO_SSL", false),
				MaxPoolSize:            env.int("MONGO_MAX_POOL_SIZE", 100),
				MinPoolSize:            env.int("MONGO_MIN_POOL_SIZE", 0),
				ConnectTimeout:         env.duration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
				SocketTimeout:          env.duration("MONGO_SOCKET_TIMEOUT", 30*time.Second),
				ServerSelectionTimeout: env.duration("MONGO_SERVER_SELECTION_TIMEOUT", 10*time.Second),
			},
		},
		Cursor: CursorConfig{
			DefaultLimit:   env.int("CURSOR_DEFAULT_LIMIT", 100),
			VisitBatchSize: env.int("CURSOR_VISIT_BATCH_SIZE", 200),
		},
		Cache: CacheConfig{
			Enabled:   env.bool("FILTER_CACHE_ENABLED", false),
			Backend:   env.str("FILTER_CACHE_BACKEND", CacheBackendMemory),
			TTL:       env.duration("FILTER_CACHE_TTL", 10*time.Minute),
			Prefix:    env.str("FILTER_CACHE_PREFIX", "docstore:filter:"),
			MaxMemory: int64(env.int("FILTER_CACHE_MAX_MEMORY", 16<<20)),
			Redis: RedisConfig{
				Address:  env.str("REDIS_ADDRESS", "localhost:6379"),
				Password: env.str("REDIS_PASSWORD", ""),
				Database: env.int("REDIS_DB", 0),
				PoolSize: env.int("REDIS_POOL_SIZE", 10),
			},
		},
		Log: LogConfig{
			Debug: env.bool("LOG_DEBUG", false),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errors []string

	validDbTypes := []string{DatabaseTypeMongoDB, DatabaseTypeMemory}
	if !contains(validDbTypes, c.Database.Type) {
		errors = append(errors, fmt.Sprintf("DB_TYPE must be one of: %s", strings.Join(validDbTypes, ", ")))
	}
	if strings.TrimSpace(c.Database.Name) == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if c.Cursor.DefaultLimit <= 0 {
		errors = append(errors, "CURSOR_DEFAULT_LIMIT must be positive")
	}
	if c.Cursor.VisitBatchSize <= 0 {
		errors = append(errors, "CURSOR_VISIT_BATCH_SIZE must be positive")
	}
	validBackends := []string{CacheBackendMemory, CacheBackendRedis}
	if c.Cache.Enabled && !contains(validBackends, c.Cache.Backend) {
		errors = append(errors, fmt.Sprintf("FILTER_CACHE_BACKEND must be one of: %s", strings.Join(validBackends, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

type envReader struct {
	lookup func(string) string
}

func (e envReader) str(key, defaultValue string) string {
	if value := e.lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func (e envReader) int(key string, defaultValue int) int {
	if value := e.lookup(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (e envReader) bool(key string, defaultValue bool) bool {
	if value := e.lookup(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// duration accepts Go durations ("30s") or a bare number of seconds
func (e envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := e.lookup(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
