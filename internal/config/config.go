package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Consolidation ConsolidationConfig
	Cache         CacheConfig
	Storage       StorageConfig
	Events        EventsConfig
}

type AppConfig struct {
	Port               string `validate:"required,numeric"`
	Environment        string
	LogFilePath        string `validate:"required"`
	CacheLogFilePath   string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	ConfigFile         string
}

type DatabaseConfig struct {
	Connection string
}

type ConsolidationConfig struct {
	SessionsRoot              string  `validate:"required"`
	SessionBackend            string  `validate:"oneof=file memory"`
	DatasetRoot               string  `validate:"required_if=DatasetBackend file"`
	DatasetBackend            string  `validate:"oneof=file postgres memory"`
	MaxSessionsToConsider     int     `validate:"gte=0"`
	MinQualityForPreservation float64 `validate:"gte=0,lte=1"`
	MaxVersionsPerDestination int     `validate:"gte=0"`
	MaxEvidencePerDomain      int     `validate:"gte=0"`
	MergeWorkers              int     `validate:"gte=1"`
	DefaultStrategy           string  `validate:"oneof=quality_first recency_first quality_based latest_wins"`
	StrategyOverrides         map[string]string
	RegenerateAfter           time.Duration `validate:"gte=0"`
	LockBackend               string        `validate:"oneof=memory redis"`
	LockTTL                   time.Duration `validate:"gt=0"`
	VolatileKeys              []string
}

type CacheConfig struct {
	TTL              time.Duration `validate:"gt=0"`
	MaxMemoryEntries int           `validate:"gte=1"`
	DurableAddress   string
	SessionCacheTTL  time.Duration `validate:"gt=0"`
}

type StorageConfig struct {
	RetryAttempts int           `validate:"gte=1"`
	RetryDelay    time.Duration `validate:"gte=0"`
}

type EventsConfig struct {
	SessionWrittenTopic string `validate:"required"`
	NatsEnabled         bool
	ConsumerDurable     string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CacheLogFilePath:   getEnv("CACHE_LOG_FILE_PATH", "logs/cache.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			ConfigFile:         getEnv("CONFIG_FILE", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Consolidation: ConsolidationConfig{
			SessionsRoot:              getEnv("SESSIONS_ROOT", "data/sessions"),
			SessionBackend:            getEnv("SESSION_BACKEND", "file"),
			DatasetRoot:               getEnv("DATASET_ROOT", "data/datasets"),
			DatasetBackend:            getEnv("DATASET_BACKEND", "file"),
			MaxSessionsToConsider:     getEnvAsInt("MAX_SESSIONS_TO_CONSIDER", 10),
			MinQualityForPreservation: getEnvAsFloat("MIN_QUALITY_FOR_PRESERVATION", 0.6),
			MaxVersionsPerDestination: getEnvAsInt("MAX_VERSIONS_PER_DESTINATION", 5),
			MaxEvidencePerDomain:      getEnvAsInt("MAX_EVIDENCE_PER_DOMAIN", 3),
			MergeWorkers:              getEnvAsInt("MERGE_WORKERS", 8),
			DefaultStrategy:           getEnv("MERGE_STRATEGY", "quality_first"),
			StrategyOverrides:         map[string]string{},
			RegenerateAfter:           getEnvAsDuration("REGENERATE_AFTER", 7*24*time.Hour),
			LockBackend:               getEnv("LOCK_BACKEND", "memory"),
			LockTTL:                   getEnvAsDuration("LOCK_TTL", 5*time.Minute),
			VolatileKeys:              getEnvAsList("HASH_VOLATILE_KEYS", nil),
		},
		Cache: CacheConfig{
			TTL:              getEnvAsDuration("CACHE_TTL", 24*time.Hour),
			MaxMemoryEntries: getEnvAsInt("MAX_MEMORY_CACHE_ENTRIES", 1000),
			DurableAddress:   getEnv("DURABLE_CACHE_BACKEND_ADDRESS", ""),
			SessionCacheTTL:  getEnvAsDuration("SESSION_CACHE_TTL", time.Hour),
		},
		Storage: StorageConfig{
			RetryAttempts: getEnvAsInt("STORAGE_RETRY_ATTEMPTS", 3),
			RetryDelay:    getEnvAsDuration("STORAGE_RETRY_DELAY", 50*time.Millisecond),
		},
		Events: EventsConfig{
			SessionWrittenTopic: getEnv("SESSION_WRITTEN_TOPIC", "SESSION_WRITTEN"),
			NatsEnabled:         getEnvAsBool("NATS_ENABLED", false),
			ConsumerDurable:     getEnv("NATS_CONSUMER_DURABLE", "consolidation-worker"),
		},
	}
}

// overlay is the optional YAML file named by CONFIG_FILE. Only fields that
// are set override the environment.
type overlay struct {
	Consolidation struct {
		DefaultStrategy   string            `yaml:"default_strategy"`
		StrategyOverrides map[string]string `yaml:"strategy_overrides"`
		VolatileKeys      []string          `yaml:"volatile_keys"`
		MaxSessions       *int              `yaml:"max_sessions_to_consider"`
		MinQuality        *float64          `yaml:"min_quality_for_preservation"`
		MaxVersions       *int              `yaml:"max_versions_per_destination"`
		RegenerateAfter   *time.Duration    `yaml:"regenerate_after"`
	} `yaml:"consolidation"`
	Cache struct {
		TTL              *time.Duration `yaml:"ttl"`
		MaxMemoryEntries *int           `yaml:"max_memory_entries"`
		MaxPerDomain     *int           `yaml:"max_evidence_per_domain"`
	} `yaml:"cache"`
}

// ApplyOverlay merges the YAML file at path over c. An empty path is a no-op.
func (c *Config) ApplyOverlay(path string) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read overlay: %w", err)
	}
	var o overlay
	if err := yaml.Unmarshal(b, &o); err != nil {
		return fmt.Errorf("config: parse overlay %s: %w", path, err)
	}

	oc := o.Consolidation
	if oc.DefaultStrategy != "" {
		c.Consolidation.DefaultStrategy = oc.DefaultStrategy
	}
	for dest, strategy := range oc.StrategyOverrides {
		if c.Consolidation.StrategyOverrides == nil {
			c.Consolidation.StrategyOverrides = map[string]string{}
		}
		c.Consolidation.StrategyOverrides[dest] = strategy
	}
	if len(oc.VolatileKeys) > 0 {
		c.Consolidation.VolatileKeys = oc.VolatileKeys
	}
	if oc.MaxSessions != nil {
		c.Consolidation.MaxSessionsToConsider = *oc.MaxSessions
	}
	if oc.MinQuality != nil {
		c.Consolidation.MinQualityForPreservation = *oc.MinQuality
	}
	if oc.MaxVersions != nil {
		c.Consolidation.MaxVersionsPerDestination = *oc.MaxVersions
	}
	if oc.RegenerateAfter != nil {
		c.Consolidation.RegenerateAfter = *oc.RegenerateAfter
	}
	if o.Cache.TTL != nil {
		c.Cache.TTL = *o.Cache.TTL
	}
	if o.Cache.MaxMemoryEntries != nil {
		c.Cache.MaxMemoryEntries = *o.Cache.MaxMemoryEntries
	}
	if o.Cache.MaxPerDomain != nil {
		c.Consolidation.MaxEvidencePerDomain = *o.Cache.MaxPerDomain
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and that every strategy override names a
// known strategy.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for dest, s := range c.Consolidation.StrategyOverrides {
		if err := validate.Var(s, "oneof=quality_first recency_first quality_based latest_wins"); err != nil {
			return fmt.Errorf("config: strategy override for %s: unknown strategy %q", dest, s)
		}
	}
	if c.Consolidation.DatasetBackend == "postgres" && c.Database.Connection == "" {
		return fmt.Errorf("config: DATASET_BACKEND=postgres needs DB_CONNECTION_STRING")
	}
	return nil
}

// StrategyFor returns the operator override for a destination, or the default.
func (c *Config) StrategyFor(destinationID string) string {
	if s, ok := c.Consolidation.StrategyOverrides[destinationID]; ok {
		return s
	}
	return c.Consolidation.DefaultStrategy
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90m") or whole seconds ("5400").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(strValue, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
