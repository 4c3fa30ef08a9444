package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/ragserve/internal/api"
	"github.com/dgallion1/ragserve/internal/chunker"
	"github.com/dgallion1/ragserve/internal/config"
	"github.com/dgallion1/ragserve/internal/engine"
	"github.com/dgallion1/ragserve/internal/index"
	"github.com/dgallion1/ragserve/internal/provider"
)

func main() {
	godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Error("create data dir", "error", err)
		os.Exit(1)
	}

	store, err := index.Open(cfg.IndexPath(), index.Options{Dimension: cfg.EmbedDimension})
	if err != nil {
		log.Error("open index", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Provider clients.
	embedder := provider.NewOpenAIEmbedder(cfg.EmbedBaseURL, cfg.EmbedAPIKey, cfg.EmbedModel, cfg.EmbedDimension)
	generator := provider.NewClaudeGenerator(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	var reranker provider.Reranker
	if cfg.RerankAPIKey != "" {
		reranker = provider.NewCohereReranker(cfg.RerankBaseURL, cfg.RerankAPIKey, cfg.RerankModel)
	} else {
		log.Info("reranking disabled, RERANK_API_KEY not set")
	}

	// Pipelines.
	ingestor := engine.NewIngestor(store, embedder, engine.IngestConfig{
		Chunking:         chunker.Config{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap},
		EmbedBatchSize:   cfg.EmbedBatchSize,
		EmbedConcurrency: cfg.EmbedConcurrency,
		EmbedTimeout:     cfg.EmbedTimeout,
		MaxRetries:       cfg.MaxRetries,
	}, log)

	retriever := engine.NewRetriever(store, embedder, engine.RetrieveConfig{
		TopK:         cfg.RetrieveTopK,
		RRFConstant:  cfg.RRFConstant,
		EmbedTimeout: cfg.EmbedTimeout,
	}, log)

	chat := engine.NewOrchestrator(retriever, reranker, generator, engine.ChatConfig{
		TopN:            cfg.RerankTopN,
		RerankTimeout:   cfg.RerankTimeout,
		GenerateTimeout: cfg.GenerateTimeout,
		MaxRetries:      cfg.MaxRetries,
	}, log)

	srv := api.NewServer(ingestor, chat, log, api.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigin:     cfg.CORSOrigin,
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting ragserve", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
