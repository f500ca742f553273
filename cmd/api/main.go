package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/josinaldojr/weather-docs-agent/internal/agent"
	"github.com/josinaldojr/weather-docs-agent/internal/config"
	apphttp "github.com/josinaldojr/weather-docs-agent/internal/http"
	"github.com/josinaldojr/weather-docs-agent/internal/ingest"
	"github.com/josinaldojr/weather-docs-agent/internal/llm"
	"github.com/josinaldojr/weather-docs-agent/internal/store"
	"github.com/josinaldojr/weather-docs-agent/internal/weather"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	if _, err := os.Stat(cfg.StorePath); err == nil {
		logger.Info("database detected on disk", zap.String("path", cfg.StorePath))
	} else {
		logger.Warn("no database found; ingest a document before asking about it",
			zap.String("path", cfg.StorePath))
	}

	// Single shared store handle for the whole process.
	st, err := store.Open(cfg.StorePath, logger)
	if err != nil {
		logger.Fatal("failed to open vector store", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	coll, err := st.EnsureCollection(cfg.Collection, cfg.EmbedDim)
	if err != nil {
		logger.Fatal("failed to ensure collection", zap.Error(err))
	}
	logger.Info("collection ready",
		zap.String("collection", coll.Name()),
		zap.Int("chunks", coll.Count()),
	)

	rt := &runtime{coll: coll, logger: logger}
	if err := rt.rebuild(ctx, cfg); err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}

	transcript := apphttp.NewTranscript()
	reload := func() {
		newCfg := config.Reload()
		if err := rt.rebuild(context.Background(), newCfg); err != nil {
			logger.Error("reload failed; keeping previous configuration", zap.Error(err))
		}
	}

	// One run makes at most four external calls (route, extract, fetch,
	// generate), so the request budget is a multiple of the call timeout.
	h := apphttp.NewHandler(rt, rt, transcript, cfg.DataDir, 4*cfg.CallTimeout, reload, logger)
	router := apphttp.NewRouter(h)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: corsMiddleware(router),
	}

	go func() {
		logger.Info("API listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// runtime holds the rebuildable parts of the app. The reset action swaps in
// clients built from freshly loaded configuration while the store handle
// stays shared.
type runtime struct {
	coll   *store.Collection
	logger *zap.Logger

	mu       sync.RWMutex
	pipeline *agent.Pipeline
	ingestor *ingest.Ingestor
}

func (rt *runtime) rebuild(ctx context.Context, cfg *config.Config) error {
	gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, rate.NewLimiter(rate.Limit(1), 2))
	if err != nil {
		return err
	}
	weatherClient := weather.NewClient(cfg.WeatherAPIKey, cfg.CallTimeout)

	pipeline := agent.NewPipeline(gemini, gemini, weatherClient, rt.coll.Retriever(), cfg.TopK, rt.logger)
	ingestor := ingest.New(
		gemini,
		rt.coll,
		rate.NewLimiter(rate.Every(cfg.BatchInterval), 1),
		ingest.Options{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
			BatchSize:    cfg.BatchSize,
		},
		rt.logger,
	)

	rt.mu.Lock()
	rt.pipeline = pipeline
	rt.ingestor = ingestor
	rt.mu.Unlock()
	return nil
}

func (rt *runtime) Stream(ctx context.Context, question string) (<-chan agent.Event, <-chan error) {
	rt.mu.RLock()
	p := rt.pipeline
	rt.mu.RUnlock()
	return p.Stream(ctx, question)
}

func (rt *runtime) IngestFile(ctx context.Context, path string) (int, error) {
	rt.mu.RLock()
	ing := rt.ingestor
	rt.mu.RUnlock()
	return ing.IngestFile(ctx, path)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin == "http://localhost:3000" || origin == "http://127.0.0.1:3000" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
