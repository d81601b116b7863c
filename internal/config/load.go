package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load builds a Config starting from Default, then applying an optional
// YAML file and finally environment variables, in that priority order
// (env wins). .env is loaded with Overload semantics, so a variable in a
// repo-local .env replaces one of the same name already set in the shell.
func Load(yamlPath string) (Config, error) {
	_ = godotenv.Overload()

	cfg := Default()

	if yamlPath == "" {
		yamlPath = firstNonEmpty(os.Getenv("CHRONICLE_CONFIG"), "config.yaml")
	}
	if data, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", yamlPath, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read %s: %w", yamlPath, err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Store.Backend == "" {
		return Config{}, fmt.Errorf("store.backend must be set (memory, qdrant, or postgres)")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_STORE_BACKEND")); v != "" {
		cfg.Store.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_STORE_DSN")); v != "" {
		cfg.Store.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_STORE_COLLECTION")); v != "" {
		cfg.Store.Collection = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_EMBEDDING_BACKEND")); v != "" {
		cfg.Embedding.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_EMBEDDING_BASE_URL")); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_EMBEDDING_API_KEY")); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_EMBEDDING_CACHE_REDIS_ADDR")); v != "" {
		cfg.Embedding.CacheRedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_PROJECT_MAP")); v != "" {
		cfg.ProjectMapPath = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_TOPIC_LEXICON")); v != "" {
		cfg.TopicLexiconPath = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_SOLUTION_PATTERNS")); v != "" {
		cfg.SolutionPatternPath = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_BACKUP_DIR")); v != "" {
		cfg.BackupDir = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_CACHE_BACKEND")); v != "" {
		cfg.Cache.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_CACHE_REDIS_ADDR")); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_CACHE_MAX_ENTRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxEntries = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_CACHE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.TTL = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_ANALYTICS_BACKEND")); v != "" {
		cfg.Analytics.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_ANALYTICS_DSN")); v != "" {
		cfg.Analytics.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_ANALYTICS_TABLE")); v != "" {
		cfg.Analytics.Table = v
	}
	if v := strings.TrimSpace(os.Getenv("CHRONICLE_TOOL_DEADLINE_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ToolDeadline = time.Duration(n) * time.Second
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
