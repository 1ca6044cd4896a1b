// Package main implements the docuchat API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"

	"github.com/docuchat/docuchat/engine/annotate"
	"github.com/docuchat/docuchat/engine/catalog"
	"github.com/docuchat/docuchat/engine/ingest"
	"github.com/docuchat/docuchat/engine/retrieve"
	"github.com/docuchat/docuchat/engine/semantic"
	"github.com/docuchat/docuchat/pkg/metrics"
	"github.com/docuchat/docuchat/pkg/mid"
	"github.com/docuchat/docuchat/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	ModelURL   string
	EmbedModel string
	EmbedDims  int
	Neo4jURL   string
	Neo4jUser  string
	Neo4jPass  string
	QdrantURL  string
	RedisURL   string // empty: in-process annotation cache
	NATSURL    string // empty: uploads are synchronous only
	CORSOrigin string
	ModelRate  float64
}

func loadConfig() Config {
	return Config{
		Port:       envOr("PORT", "8080"),
		ModelURL:   envOr("MODEL_URL", "http://localhost:9090"),
		EmbedModel: envOr("EMBED_MODEL", "all-mpnet-base-v2"),
		EmbedDims:  envIntOr("EMBED_DIMS", 768),
		Neo4jURL:   envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:  envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:  envOr("NEO4J_PASS", "password"),
		QdrantURL:  envOr("QDRANT_URL", "localhost:6334"),
		RedisURL:   os.Getenv("REDIS_URL"),
		NATSURL:    os.Getenv("NATS_URL"),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
		ModelRate:  envFloatOr("MODEL_RATE", 20),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(loadConfig(), logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Neo4j catalog ---
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)
	store := catalog.NewNeo4jStore(driver)

	// --- Qdrant vector index ---
	vectors, err := semantic.New(cfg.QdrantURL, cfg.EmbedDims)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectors.Close()

	// --- Model service client ---
	client := annotate.NewClient(cfg.ModelURL, cfg.EmbedModel,
		annotate.WithLimiter(resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.ModelRate, Burst: 5})),
		annotate.WithBreaker(resilience.NewBreaker(resilience.DefaultBreakerOpts)),
	)

	// --- Annotation cache ---
	var cache annotate.Cache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		cache = annotate.NewRedisCache(rdb, 24*time.Hour)
	} else {
		cache = annotate.NewMemoryCache()
	}

	taggers := annotate.NewRegistry()
	for _, lang := range []string{"de", "en"} {
		taggers.Register(lang, annotate.Cached(client.Tagger(lang), cache, lang))
	}

	reg := metrics.New()
	templates := retrieve.NewTemplateStore()

	ingestSvc := ingest.New(client, taggers, store, vectors, ingest.DefaultOptions(), logger, reg)
	chatSvc := retrieve.New(client, taggers, vectors, store, templates, retrieve.DefaultOptions(), logger, reg)

	a := &api{
		chat:      chatSvc,
		ingest:    ingestSvc,
		users:     store.Users,
		docs:      store.Documents,
		templates: templates,
		log:       logger,
	}

	// --- Optional async upload path ---
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		a.enqueue = func(ctx context.Context, job ingest.Job) error {
			return ingest.Enqueue(ctx, nc, job)
		}
	}

	mux := a.routes()
	mux.Handle("GET /metrics", reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.OTel("docuchat-api"),
		mid.Logger(logger),
		mid.Metrics(reg),
		mid.CORS(cfg.CORSOrigin),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
