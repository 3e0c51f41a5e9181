package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/proxi-ai/proxi/internal/pkg/logutil"
)

type Config struct {
	Port        int               `json:"port"`
	JWTSecret   string            `json:"jwt_secret"`
	JWTTTLHours int               `json:"jwt_ttl_hours"`
	LogConfig   logutil.LogConfig `json:"log_config"`
	Database    DatabaseConfig    `json:"database"`
	Cache       CacheConfig       `json:"cache"`
	RateLimit   RateLimitConfig   `json:"rate_limit"`
	AI          AIConfig          `json:"ai"`
	Search      SearchConfig      `json:"search"`
	Indexer     IndexerConfig     `json:"indexer"`
	FileStore   FileStoreConfig   `json:"file_store"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type CacheConfig struct {
	Type            string `json:"type"` // redis or memory
	RedisAddr       string `json:"redis_addr"`
	RedisPassword   string `json:"redis_password"`
	RedisDB         int    `json:"redis_db"`
	ResponseTTLSecs int    `json:"response_ttl_secs"`
	SearchTTLSecs   int    `json:"search_ttl_secs"`
	EmbedLRUSize    int    `json:"embed_lru_size"`
	EmbedLRUTTLSecs int    `json:"embed_lru_ttl_secs"`
}

type RateLimitConfig struct {
	DefaultRPM   int `json:"default_rpm"`
	DefaultBurst int `json:"default_burst"`
}

type ProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Chat           ProviderConfig `json:"chat"`
	FallbackChat   ProviderConfig `json:"fallback_chat"`
	Embed          ProviderConfig `json:"embed"`
	Speech         ProviderConfig `json:"speech"`
	EnableFallback bool           `json:"enable_fallback"`
	MaxTokens      int            `json:"max_tokens"`
	TimeoutSecs    int            `json:"timeout_secs"`
}

type SearchConfig struct {
	DefaultK  int     `json:"default_k"`
	MMRLambda float64 `json:"mmr_lambda"`
}

type IndexerConfig struct {
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
	Concurrency  int `json:"concurrency"`
	SweepBatch   int `json:"sweep_batch"`
}

type FileStoreConfig struct {
	Type string   `json:"type"`
	Dir  string   `json:"dir"`
	S3   S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Prefix    string `json:"prefix"`
	UseSSL    bool   `json:"use_ssl"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	switch cfg.Cache.Type {
	case "", "redis":
		cfg.Cache.Type = "redis"
		if cfg.Cache.RedisAddr == "" {
			return nil, fmt.Errorf("cache.redis_addr is required for redis cache")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("cache.type must be redis or memory")
	}
	if cfg.Cache.ResponseTTLSecs == 0 {
		cfg.Cache.ResponseTTLSecs = 86400
	}
	if cfg.Cache.SearchTTLSecs == 0 {
		cfg.Cache.SearchTTLSecs = 3600
	}
	if cfg.Cache.EmbedLRUSize == 0 {
		cfg.Cache.EmbedLRUSize = 10000
	}
	if cfg.Cache.EmbedLRUTTLSecs == 0 {
		cfg.Cache.EmbedLRUTTLSecs = 7200
	}
	if cfg.RateLimit.DefaultRPM == 0 {
		cfg.RateLimit.DefaultRPM = 60
	}
	if cfg.RateLimit.DefaultBurst == 0 {
		cfg.RateLimit.DefaultBurst = 10
	}
	if cfg.AI.Chat.Provider == "" {
		return nil, fmt.Errorf("ai.chat.provider is required")
	}
	if cfg.AI.Embed.Provider == "" {
		return nil, fmt.Errorf("ai.embed.provider is required")
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 1000
	}
	if cfg.AI.TimeoutSecs == 0 {
		cfg.AI.TimeoutSecs = 30
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 8
	}
	if cfg.Search.MMRLambda == 0 {
		cfg.Search.MMRLambda = 0.7
	}
	if cfg.Indexer.ChunkSize == 0 {
		cfg.Indexer.ChunkSize = 800
	}
	if cfg.Indexer.ChunkOverlap == 0 {
		cfg.Indexer.ChunkOverlap = 100
	}
	if cfg.Indexer.Concurrency == 0 {
		cfg.Indexer.Concurrency = 4
	}
	if cfg.Indexer.SweepBatch == 0 {
		cfg.Indexer.SweepBatch = 10
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	switch cfg.FileStore.Type {
	case "local":
		if cfg.FileStore.Dir == "" {
			return nil, fmt.Errorf("file_store.dir is required for local store")
		}
	case "s3":
		if cfg.FileStore.S3.Endpoint == "" || cfg.FileStore.S3.Bucket == "" || cfg.FileStore.S3.SecretID == "" || cfg.FileStore.S3.SecretKey == "" {
			return nil, fmt.Errorf("file_store.s3 endpoint/bucket/secret_id/secret_key are required for s3 store")
		}
		if cfg.FileStore.S3.Region == "" {
			cfg.FileStore.S3.Region = "us-east-1"
		}
	default:
		return nil, fmt.Errorf("file_store.type must be local or s3")
	}
	return &cfg, nil
}
