package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dgallion1/docchunk/internal/api"
	"github.com/dgallion1/docchunk/internal/chunker"
	"github.com/dgallion1/docchunk/internal/config"
	"github.com/dgallion1/docchunk/internal/embed"
	"github.com/dgallion1/docchunk/internal/metrics"
	"github.com/dgallion1/docchunk/internal/parser"
	"github.com/dgallion1/docchunk/internal/pipeline"
	"github.com/dgallion1/docchunk/internal/store"
	"github.com/dgallion1/docchunk/internal/structure"
)

func main() {
	bootLog := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error("load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		bootLog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage.
	st, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Error("open store", "path", cfg.StorePath, "error", err)
		os.Exit(1)
	}

	// Initialize chunking.
	ch, err := chunker.New(chunker.Config{ChunkSize: cfg.ChunkSize, OverlapRatio: cfg.OverlapRatio},
		tokenCounter(cfg, log), chunker.UAX29Segmenter{}, log)
	if err != nil {
		log.Error("create chunker", "error", err)
		os.Exit(1)
	}

	// Embeddings are optional.
	var (
		embedder embed.Embedder
		stats    *embed.Stats
	)
	if cfg.EmbeddingsEnabled() {
		stats = embed.NewStats(time.Hour)
		embedder = embed.NewOpenAIEmbedder(embed.OpenAIConfig{
			APIKey:          cfg.OpenAIAPIKey,
			BaseURL:         cfg.OpenAIBaseURL,
			Model:           cfg.EmbeddingModel,
			TokensPerMinute: cfg.EmbedTokensPerMinute,
		}, stats)
	} else {
		log.Info("OPENAI_API_KEY not set, embeddings and search disabled")
	}

	m := metrics.New()

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(pipeline.Options{
		WorkerCount:        cfg.WorkerCount,
		MaxQueueSize:       cfg.MaxQueueSize,
		MaxConcurrentEmbed: cfg.MaxConcurrentEmbed,
		JobTTL:             cfg.JobTTL,
	}, pipeline.Deps{
		Store:          st,
		Analyzer:       structure.NewAnalyzer(log),
		Chunker:        ch,
		Embedder:       embedder,
		Metrics:        m,
		Log:            log,
		ParserOptions:  parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext},
		EmbedBatchSize: cfg.EmbedBatchSize,
		Retry: pipeline.Retry{
			MaxRetries: cfg.EmbedMaxRetries,
			BaseDelay:  cfg.EmbedRetryBase,
			MaxDelay:   cfg.EmbedRetryMax,
		},
	})
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(api.Deps{
		Orchestrator: orch,
		Store:        st,
		Embedder:     embedder,
		EmbedStats:   stats,
		Metrics:      m,
		Log:          log,
		Config:       cfg,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		st.Close()
	}()

	log.Info("starting docchunk", "port", cfg.Port, "store", cfg.StorePath,
		"chunk_size", cfg.ChunkSize, "overlap_ratio", cfg.OverlapRatio, "embeddings", embedder != nil)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
	log.Info("shutdown complete")
}

// tokenCounter picks the configured tokenizer, falling back to the estimate
// when the tiktoken vocabulary cannot be loaded.
func tokenCounter(cfg config.Config, log *slog.Logger) chunker.TokenCounter {
	if cfg.Tokenizer == config.TokenizerEstimate {
		return chunker.EstimateCounter{}
	}
	tc, err := chunker.NewTiktokenCounter(cfg.TokenizerModel)
	if err != nil {
		log.Warn("tiktoken unavailable, using estimate", "error", err)
		return chunker.EstimateCounter{}
	}
	return tc
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
