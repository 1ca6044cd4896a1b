// Command ingest-worker consumes upload jobs from NATS and runs them
// through the ingestion pipeline into Neo4j and Qdrant.
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

	"github.com/docuchat/docuchat/engine/annotate"
	"github.com/docuchat/docuchat/engine/catalog"
	"github.com/docuchat/docuchat/engine/ingest"
	"github.com/docuchat/docuchat/engine/semantic"
	"github.com/docuchat/docuchat/pkg/metrics"
	"github.com/docuchat/docuchat/pkg/resilience"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dims := 768
	if v := os.Getenv("EMBED_DIMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			dims = n
		}
	}

	driver, err := neo4j.NewDriverWithContext(
		envOr("NEO4J_URL", "neo4j://localhost:7687"),
		neo4j.BasicAuth(envOr("NEO4J_USER", "neo4j"), envOr("NEO4J_PASS", "password"), ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j verify: %w", err)
	}
	store := catalog.NewNeo4jStore(driver)

	vectors, err := semantic.New(envOr("QDRANT_URL", "localhost:6334"), dims)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectors.Close()

	client := annotate.NewClient(
		envOr("MODEL_URL", "http://localhost:9090"),
		envOr("EMBED_MODEL", "all-mpnet-base-v2"),
		annotate.WithBreaker(resilience.NewBreaker(resilience.DefaultBreakerOpts)),
	)

	taggers := annotate.NewRegistry()
	cache := annotate.NewMemoryCache()
	for _, lang := range []string{"de", "en"} {
		taggers.Register(lang, annotate.Cached(client.Tagger(lang), cache, lang))
	}

	reg := metrics.New()
	svc := ingest.New(client, taggers, store, vectors, ingest.DefaultOptions(), logger, reg)

	nc, err := nats.Connect(envOr("NATS_URL", nats.DefaultURL))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := svc.StartConsumer(nc)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	metricsSrv := &http.Server{
		Addr:    ":" + envOr("METRICS_PORT", "9091"),
		Handler: reg.Handler(),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("ingest worker running", "subject", ingest.Subject, "queue", ingest.Queue)
	<-ctx.Done()
	logger.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return metricsSrv.Shutdown(shutCtx)
}
