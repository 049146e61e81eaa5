package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the GenBridge server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Breaker  BreakerConfig
	Vendors  VendorsConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// StorageConfig configures the durable object store that ingested vendor
// media is written into.
type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Bucket        string
	PublicBaseURL string
	// PartSize is the multipart buffer size for unknown-length bodies.
	// Must stay at or above the backend's 5 MiB minimum.
	PartSize int64
	// ProxyHosts rewrites source hosts that are geo-restricted or
	// rate-limited from this network ("host=proxyhost,host2=proxy2").
	ProxyHosts map[string]string
	// RequireHosting fails the task when ingestion fails instead of
	// degrading to the original vendor URL.
	RequireHosting bool
}

// BreakerConfig controls the shared-credential circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// VendorsConfig carries official endpoints and polling defaults per vendor
// family. Base URLs resolved from the credential store take precedence.
type VendorsConfig struct {
	OpenAI OpenAIConfig
	Kling  KlingConfig
	Ollama OllamaConfig
}

type OpenAIConfig struct {
	OfficialBaseURL string
	ChatModel       string
	ImageModel      string
}

type KlingConfig struct {
	OfficialBaseURL string
	VideoModel      string
	PollInterval    time.Duration
	PollTimeout     time.Duration
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

const minPartSize = 5 * 1024 * 1024

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("GENBRIDGE_PORT", 8080),
			Env:  envString("GENBRIDGE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			Endpoint:       os.Getenv("STORAGE_ENDPOINT"),
			AccessKey:      os.Getenv("STORAGE_ACCESS_KEY"),
			SecretKey:      os.Getenv("STORAGE_SECRET_KEY"),
			UseSSL:         envBool("STORAGE_USE_SSL", true),
			Bucket:         envString("STORAGE_BUCKET", "genbridge-media"),
			PublicBaseURL:  os.Getenv("STORAGE_PUBLIC_BASE_URL"),
			PartSize:       envInt64("STORAGE_PART_SIZE_BYTES", 8*1024*1024),
			ProxyHosts:     parseHostMap(os.Getenv("STORAGE_PROXY_HOSTS")),
			RequireHosting: envBool("STORAGE_REQUIRE_HOSTING", false),
		},
		Breaker: BreakerConfig{
			FailureThreshold: envInt("BREAKER_FAILURE_THRESHOLD", 3),
			Cooldown:         envDuration("BREAKER_COOLDOWN", 10*time.Minute),
		},
		Vendors: VendorsConfig{
			OpenAI: OpenAIConfig{
				OfficialBaseURL: envString("OPENAI_OFFICIAL_BASE_URL", "https://api.openai.com/v1"),
				ChatModel:       envString("OPENAI_CHAT_MODEL", "gpt-4o"),
				ImageModel:      envString("OPENAI_IMAGE_MODEL", "gpt-image-1"),
			},
			Kling: KlingConfig{
				OfficialBaseURL: envString("KLING_OFFICIAL_BASE_URL", "https://api.klingai.com"),
				VideoModel:      envString("KLING_VIDEO_MODEL", "kling-v1-6"),
				PollInterval:    envDuration("KLING_POLL_INTERVAL", 5*time.Second),
				PollTimeout:     envDuration("KLING_POLL_TIMEOUT", 10*time.Minute),
			},
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Storage.Endpoint == "" {
		return fmt.Errorf("STORAGE_ENDPOINT is required")
	}
	if c.Storage.PublicBaseURL == "" {
		return fmt.Errorf("STORAGE_PUBLIC_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Storage.PublicBaseURL, "http://") && !strings.HasPrefix(c.Storage.PublicBaseURL, "https://") {
		return fmt.Errorf("STORAGE_PUBLIC_BASE_URL must start with http:// or https://, got %q", c.Storage.PublicBaseURL)
	}
	if c.Storage.PartSize < minPartSize {
		return fmt.Errorf("STORAGE_PART_SIZE_BYTES must be at least %d, got %d", minPartSize, c.Storage.PartSize)
	}

	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be positive, got %d", c.Breaker.FailureThreshold)
	}

	return nil
}

// parseHostMap parses "host=proxy,host2=proxy2" into a lookup table.
// Malformed entries are skipped.
func parseHostMap(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
