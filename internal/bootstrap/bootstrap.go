// Package bootstrap wires the whole module together from a
// config.Config: picks the store backend, the embedder (optionally
// wrapped in a Redis result cache), the enrichment pipeline, and every
// C6-C11 component behind a toolsurface.Surface. Every cmd/ entrypoint
// shares this construction so the wiring logic lives in exactly one
// place.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"chronicle/internal/backfill"
	"chronicle/internal/config"
	"chronicle/internal/embedclient"
	"chronicle/internal/enrich"
	"chronicle/internal/ingest"
	"chronicle/internal/learn"
	"chronicle/internal/obslog"
	"chronicle/internal/orchestrator"
	"chronicle/internal/projectmap"
	"chronicle/internal/reprocess"
	"chronicle/internal/search"
	"chronicle/internal/store"
	"chronicle/internal/toolsurface"
)

// Components is everything bootstrap constructs, available individually
// so a cmd/ binary can use just the pieces it needs (a hook only needs
// Hook; the MCP server needs Surface; chronicle-ctl needs most of it).
type Components struct {
	Store        *store.Adapter
	Embedder     embedclient.Embedder
	Pipeline     *enrich.Pipeline
	Projects     *projectmap.Map
	Backfill     *backfill.Backfill
	Learner      *learn.Learner
	Searcher     *search.Searcher
	Orchestrator *orchestrator.Orchestrator
	Reprocessor  *reprocess.Reprocessor
	Hook         *ingest.Hook
	Surface      *toolsurface.Surface

	closers []closer
}

type closer interface {
	Close() error
}

// Close releases every resource bootstrap opened (database pools, Redis
// clients), in reverse construction order.
func (c *Components) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type poolCloser struct{ pool *pgxpool.Pool }

func (p poolCloser) Close() error { p.pool.Close(); return nil }

// Build constructs every component from cfg. logger is threaded into
// every constructor that accepts one; sessions (may be nil) is handed to
// the Surface for whole-store operations.
func Build(ctx context.Context, cfg config.Config, logger obslog.Logger, sessions toolsurface.SessionSource) (*Components, error) {
	c := &Components{}

	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("build embedder: %w", err)
	}
	c.Embedder = embedder
	if closeable, ok := embedder.(closer); ok {
		c.closers = append(c.closers, closeable)
	}

	backend, err := buildBackend(ctx, cfg.Store, c)
	if err != nil {
		return nil, fmt.Errorf("build store backend: %w", err)
	}
	c.Store = store.New(backend, embedder)

	projects, err := projectmap.Load(cfg.ProjectMapPath)
	if err != nil {
		return nil, fmt.Errorf("load project map: %w", err)
	}
	c.Projects = projects

	topics, err := enrich.LoadTopicLexicon(cfg.TopicLexiconPath)
	if err != nil {
		return nil, fmt.Errorf("load topic lexicon: %w", err)
	}
	patterns, err := enrich.LoadSolutionPatterns(cfg.SolutionPatternPath)
	if err != nil {
		return nil, fmt.Errorf("load solution patterns: %w", err)
	}
	c.Pipeline = enrich.New(topics, patterns, embedder, enrichLoggerAdapter{logger})

	c.Backfill = &backfill.Backfill{
		Store:           c.Store,
		Pipeline:        c.Pipeline,
		UpdateBatchSize: cfg.Orchestrator.UpdateBatchSize,
	}
	c.Learner = learn.New(c.Store, cfg.Learner)
	c.Searcher = &search.Searcher{Store: c.Store, Learner: c.Learner, Ranking: cfg.Ranking}
	c.Orchestrator = &orchestrator.Orchestrator{
		Store:           c.Store,
		Pipeline:        c.Pipeline,
		Projects:        c.Projects,
		Backfill:        c.Backfill,
		WorkerCount:     cfg.Orchestrator.WorkerCount,
		UpsertBatchSize: cfg.Orchestrator.UpsertBatchSize,
		Logger:          logger,
	}
	c.Reprocessor = &reprocess.Reprocessor{
		Store:     c.Store,
		Pipeline:  c.Pipeline,
		Backfill:  c.Backfill,
		BackupDir: cfg.BackupDir,
		Logger:    logger,
	}
	c.Hook = &ingest.Hook{
		Store:    c.Store,
		Pipeline: c.Pipeline,
		Projects: c.Projects,
		Logger:   logger,
	}

	meterProvider := sdkmetric.NewMeterProvider()
	monitor, err := toolsurface.NewMonitor(meterProvider.Meter("chronicle"))
	if err != nil {
		return nil, fmt.Errorf("build monitor: %w", err)
	}

	resultCache := toolsurface.NewCache(toolsurface.CacheConfig{MaxEntries: cfg.Cache.MaxEntries, TTL: cfg.Cache.TTL})

	var invalidator toolsurface.Invalidator
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisAddr != "" {
		ri := toolsurface.NewRedisInvalidator(cfg.Cache.RedisAddr, "")
		invalidator = ri
		c.closers = append(c.closers, ri)
		go func() {
			_ = ri.Listen(context.Background(), resultCache)
		}()
	}

	var analytics toolsurface.AnalyticsSink
	if cfg.Analytics.Backend == "clickhouse" {
		timeout := time.Duration(cfg.Analytics.TimeoutSeconds) * time.Second
		sink, err := toolsurface.NewClickHouseSink(ctx, cfg.Analytics.DSN, cfg.Analytics.Table, timeout, logger)
		if err != nil {
			return nil, fmt.Errorf("build clickhouse analytics sink: %w", err)
		}
		analytics = sink
		c.closers = append(c.closers, sink)
	}

	c.Surface = &toolsurface.Surface{
		Store:        c.Store,
		Searcher:     c.Searcher,
		Orchestrator: c.Orchestrator,
		Backfill:     c.Backfill,
		Learner:      c.Learner,
		Reprocessor:  c.Reprocessor,
		Pipeline:     c.Pipeline,
		Projects:     c.Projects,
		Sessions:     sessions,
		Cache:        resultCache,
		Monitor:      monitor,
		Invalidator:  invalidator,
		Analytics:    analytics,
		Deadline:     cfg.ToolDeadline,
		Logger:       logger,
	}

	return c, nil
}

func buildEmbedder(cfg config.EmbeddingConfig) (embedclient.Embedder, error) {
	var base embedclient.Embedder
	switch cfg.Backend {
	case "", "deterministic":
		base = embedclient.NewDeterministic(cfg.Dimensions, 1)
	case "http":
		base = embedclient.NewHTTP(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
	if cfg.CacheRedisAddr != "" {
		return embedclient.NewCachingEmbedder(base, cfg.CacheRedisAddr, cfg.CacheTTL), nil
	}
	return base, nil
}

func buildBackend(ctx context.Context, cfg config.StoreConfig, c *Components) (store.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return store.NewMemory(), nil
	case "qdrant":
		return store.NewQdrant(cfg.DSN, cfg.Collection, cfg.Dimensions, cfg.Metric)
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		c.closers = append(c.closers, poolCloser{pool})
		pg, err := store.NewPostgres(ctx, pool, cfg.Dimensions, cfg.Metric)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

type enrichLoggerAdapter struct {
	l obslog.Logger
}

func (a enrichLoggerAdapter) Warn(stage string, err error) {
	if a.l == nil {
		return
	}
	a.l.Warn("enrichment stage failed", map[string]any{"stage": stage, "error": err.Error()})
}
