// Package config holds chronicle's runtime configuration: store DSNs,
// the embedding endpoint, project-directory mapping, topic lexicon and
// solution-pattern locations, cache sizing, and performance thresholds.
package config

import "time"

// StoreConfig selects and configures the vector store backend (C4).
type StoreConfig struct {
	Backend    string `yaml:"backend"` // "memory" | "qdrant" | "postgres"
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"` // cosine|l2|ip
}

// EmbeddingConfig configures the pluggable text->vector encoder.
type EmbeddingConfig struct {
	Backend        string            `yaml:"backend"` // "deterministic" | "http"
	BaseURL        string            `yaml:"baseURL"`
	Model          string            `yaml:"model"`
	APIKey         string            `yaml:"apiKey"`
	APIHeader      string            `yaml:"apiHeader"`
	Path           string            `yaml:"path"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeoutSeconds"`
	Dimensions     int               `yaml:"dimensions"`
	// CacheRedisAddr, when non-empty, wraps the embedder in a shared
	// Redis-backed cache of text->vector results (see
	// embedclient.CachingEmbedder). Empty means no embedding cache.
	CacheRedisAddr string        `yaml:"cacheRedisAddr"`
	CacheTTL       time.Duration `yaml:"cacheTTL"`
}

// CacheConfig configures C10's in-process result cache, and optionally
// a Redis channel used to broadcast cache invalidation across multiple
// chronicle processes sharing one store.
type CacheConfig struct {
	Backend    string        `yaml:"backend"` // "memory" | "redis"
	RedisAddr  string        `yaml:"redisAddr"`
	MaxEntries int           `yaml:"maxEntries"`
	TTL        time.Duration `yaml:"ttl"`
}

// AnalyticsConfig optionally configures an off-process sink every tool
// call is recorded to, independent of C10's in-process Monitor window.
type AnalyticsConfig struct {
	Backend        string `yaml:"backend"` // "" | "clickhouse"
	DSN            string `yaml:"dsn"`
	Table          string `yaml:"table"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// OrchestratorConfig tunes C6's bounded worker pool.
type OrchestratorConfig struct {
	WorkerCount     int `yaml:"workerCount"`
	UpsertBatchSize int `yaml:"upsertBatchSize"`
	UpdateBatchSize int `yaml:"updateBatchSize"`
}

// RankingConfig tunes C8's scoring thresholds.
type RankingConfig struct {
	ValidatedQualityThreshold float64 `yaml:"validatedQualityThreshold"`
	MinValidationStrength     float64 `yaml:"minValidationStrength"`
	TopicBoostWeight          float64 `yaml:"topicBoostWeight"`
	RecencyBoostHalfLifeDays  float64 `yaml:"recencyBoostHalfLifeDays"`
}

// LearnerConfig tunes C9's quality-score adjustment.
type LearnerConfig struct {
	PositiveAlpha float64 `yaml:"positiveAlpha"`
	NegativeBeta  float64 `yaml:"negativeBeta"`
	PartialAlpha  float64 `yaml:"partialAlpha"`
	QualityCeil   float64 `yaml:"qualityCeil"`
	QualityFloor  float64 `yaml:"qualityFloor"`
}

// Config is the single configuration struct for the whole module. Every
// tunable is an explicit, enumerated field — no dynamic kwargs maps.
type Config struct {
	Timezone string `yaml:"timezone"`

	ProjectMapPath      string `yaml:"projectMapPath"`
	TopicLexiconPath    string `yaml:"topicLexiconPath"`
	SolutionPatternPath string `yaml:"solutionPatternPath"`

	VectorStoreDir string `yaml:"vectorStoreDir"`
	BackupDir      string `yaml:"backupDir"`

	Store        StoreConfig        `yaml:"store"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Cache        CacheConfig        `yaml:"cache"`
	Analytics    AnalyticsConfig    `yaml:"analytics"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Ranking      RankingConfig      `yaml:"ranking"`
	Learner      LearnerConfig      `yaml:"learner"`

	ToolDeadline time.Duration `yaml:"toolDeadline"`

	LogLevel string `yaml:"logLevel"`
}

// Default returns a Config with every default the teacher-style loader
// applies when no env var or YAML value is present.
func Default() Config {
	return Config{
		Timezone:            "UTC",
		ProjectMapPath:      "project_map.yaml",
		TopicLexiconPath:    "topic_lexicon.yaml",
		SolutionPatternPath: "solution_patterns.yaml",
		VectorStoreDir:      "./chroma_db",
		BackupDir:           "./backups",
		Store: StoreConfig{
			Backend:    "memory",
			Collection: "conversations",
			Dimensions: 768,
			Metric:     "cosine",
		},
		Embedding: EmbeddingConfig{
			Backend:        "deterministic",
			BaseURL:        "http://localhost:8080",
			Model:          "nomic-embed-text-v1.5",
			APIHeader:      "Authorization",
			Path:           "/v1/embeddings",
			TimeoutSeconds: 30,
			Dimensions:     768,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			MaxEntries: 500,
			TTL:        5 * time.Minute,
		},
		Orchestrator: OrchestratorConfig{
			WorkerCount:     8,
			UpsertBatchSize: 64,
			UpdateBatchSize: 100,
		},
		Ranking: RankingConfig{
			ValidatedQualityThreshold: 1.1,
			MinValidationStrength:     0.3,
			TopicBoostWeight:          0.25,
			RecencyBoostHalfLifeDays:  14,
		},
		Learner: LearnerConfig{
			PositiveAlpha: 0.3,
			NegativeBeta:  0.4,
			PartialAlpha:  0.1,
			QualityCeil:   3.0,
			QualityFloor:  0.2,
		},
		ToolDeadline: 20 * time.Second,
		LogLevel:     "info",
	}
}
