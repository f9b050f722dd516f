// Package main is the kioku CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/chunker"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/engine"
	"github.com/hyperjump/kioku/internal/eviction"
	"github.com/hyperjump/kioku/internal/ranking"
	"github.com/hyperjump/kioku/internal/server"
	"github.com/hyperjump/kioku/internal/session"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/internal/watcher"
	"github.com/hyperjump/kioku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kioku/config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch command := os.Args[1]; command {
	case "server":
		runServer()
	case "version", "--version", "-v":
		fmt.Printf("kioku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`kioku - local retrieval engine

Usage:
  kioku server [-config path] [-debug]   start the HTTP server
  kioku version                          print the version
  kioku help                             show this help`)
}

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence (for development).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newEmbedder(cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case "mock":
		return embedding.NewMockEmbedder(cfg.Dimensions), nil
	case "onnx", "":
		return embedding.NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedPath),
		zap.Bool("debug", debugMode),
	)

	retention := time.Duration(cfg.Storage.RetentionDays) * 24 * time.Hour
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath, retention)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	embedder, err := newEmbedder(&cfg.Embedding)
	if err != nil {
		logger.Fatal("failed to create embedder", zap.Error(err))
	}
	defer embedder.Close()

	evictor := eviction.NewManager(store, eviction.Policy{
		MaxEntries:   cfg.Eviction.MaxEntries,
		RecencyDecay: cfg.Eviction.RecencyDecay,
		AccessDecay:  cfg.Eviction.AccessDecay,
		Weights: eviction.Weights{
			Recency:  cfg.Eviction.WeightRecency,
			Intent:   cfg.Eviction.WeightIntent,
			Access:   cfg.Eviction.WeightAccess,
			Category: cfg.Eviction.WeightCategory,
		},
		CategoryWeights:       cfg.Eviction.CategoryWeights,
		DefaultCategoryWeight: cfg.Eviction.DefaultCategoryWeight,
	}, nil, logger)

	eng := engine.New(engine.Options{
		Store:    store,
		Embedder: embedder,
		Chunker: chunker.New(chunker.Params{
			MinSourceLen: cfg.Chunking.MinSourceLen,
			TargetSize:   cfg.Chunking.TargetSize,
			MaxSize:      cfg.Chunking.MaxSize,
			Overlap:      cfg.Chunking.Overlap,
			MinIntent:    cfg.Chunking.MinIntent,
		}),
		Ranker: ranking.NewRanker(&cfg.Ranking, nil, logger),
		Clusterer: session.NewClusterer(session.Config{
			MaxGap:       time.Duration(cfg.Session.MaxGapMinutes) * time.Minute,
			MinCoherence: cfg.Session.MinCoherence,
			MinSize:      cfg.Session.MinSize,
			MaxAge:       time.Duration(cfg.Session.MaxAgeHours) * time.Hour,
		}, nil, logger),
		Evictor:           evictor,
		Logger:            logger,
		EmbedTimeout:      time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
		SessionWindowSize: cfg.Session.WindowSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Periodic prune keeps the store bounded between ingestion bursts.
	pruneInterval := time.Duration(cfg.Eviction.PruneIntervalMinutes) * time.Minute
	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed, err := eng.Prune(ctx); err != nil {
					logger.Warn("periodic prune failed", zap.Error(err))
				} else if removed > 0 {
					logger.Info("periodic prune", zap.Int("removed", removed))
				}
			}
		}
	}()

	if len(cfg.Watch.Directories) > 0 {
		w := watcher.New(eng, cfg.Watch.Directories, cfg.Watch.Extensions, logger)
		go func() {
			if err := w.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("watcher stopped", zap.Error(err))
			}
		}()
	}

	srv := server.NewServer(eng, &cfg.Server, logger)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}
