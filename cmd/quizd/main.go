// Quizd is the content-retrieval and question-generation daemon.
//
// It serves the search and generate pipeline over HTTP: relevance search
// against the sharded content corpus, and question generation through an
// ordered chain of LLM backends with retry and fallback.
//
// Usage:
//
//	# Start with defaults
//	quizd
//
//	# Point at a config file
//	quizd -config /etc/quizd/config.yaml
//
//	# Configure via environment
//	SERVER_PORT=9180 SHARDS_BASE_URL=https://storage.example.com/shards quizd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quizd/internal/config"
	"github.com/fyrsmithlabs/quizd/internal/httpapi"
	"github.com/fyrsmithlabs/quizd/internal/llm"
	"github.com/fyrsmithlabs/quizd/internal/logging"
	"github.com/fyrsmithlabs/quizd/internal/pipeline"
	"github.com/fyrsmithlabs/quizd/internal/search"
	"github.com/fyrsmithlabs/quizd/internal/shardstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("quizd %s (commit %s, built %s)\n", version, gitCommit, buildDate)
		return
	}

	if err := run(*configPath); err != nil {
		log.Fatalf("quizd: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logging.Sync(logger)

	logger.Info("quizd starting",
		zap.String("version", version),
		zap.String("shard_source", cfg.Shards.Source),
		zap.Int("backends", len(cfg.Models.Chain)))

	// Shard store over the configured source.
	var source shardstore.Source
	var dirSource *shardstore.DirSource
	switch cfg.Shards.Source {
	case "dir":
		dirSource = shardstore.NewDirSource(cfg.Shards.Dir)
		source = dirSource
	default:
		source = shardstore.NewHTTPSource(cfg.Shards.BaseURL, cfg.Shards.FetchTimeout, cfg.Shards.FetchRetries)
	}
	store := shardstore.NewStore(source, cfg.Shards.CacheTTL, logger)

	if dirSource != nil && cfg.Shards.Watch {
		watcher, err := shardstore.NewWatcher(dirSource, store, logger)
		if err != nil {
			return fmt.Errorf("starting shard watcher: %w", err)
		}
		defer watcher.Close()
	}

	// Search engine.
	selector := search.NewSelector(cfg.Search.GeneralShard, cfg.Search.MaxShards)
	engine := search.NewEngine(store, selector, cfg.Search, logger)

	// Generation chain.
	chain, err := llm.NewChain(cfg.Models)
	if err != nil {
		return fmt.Errorf("building backend chain: %w", err)
	}
	orch := llm.NewOrchestrator(chain, cfg.Models, logger)

	p := pipeline.New(engine, store, orch, llm.CallParams{
		Temperature: cfg.Models.Temperature,
		MaxTokens:   cfg.Models.MaxTokens,
	}, logger)

	server, err := httpapi.NewServer(p, httpapi.NewMetrics(), logger, cfg.Server)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("quizd stopped")
	return nil
}
