package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/josinaldojr/weather-docs-agent/internal/config"
	"github.com/josinaldojr/weather-docs-agent/internal/ingest"
	"github.com/josinaldojr/weather-docs-agent/internal/llm"
	"github.com/josinaldojr/weather-docs-agent/internal/store"
)

func main() {
	_ = godotenv.Load()

	pathFlag := flag.String("path", "", "file or directory to ingest (.pdf/.md/.txt/.html)")
	collectionFlag := flag.String("collection", "", "collection name (default from COLLECTION_NAME)")
	flag.Parse()

	if *pathFlag == "" {
		log.Fatal("required: --path")
	}

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	cfg := config.Load()
	if *collectionFlag != "" {
		cfg.Collection = *collectionFlag
	}

	st, err := store.Open(cfg.StorePath, logger)
	if err != nil {
		logger.Fatal("failed to open vector store", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	coll, err := st.EnsureCollection(cfg.Collection, cfg.EmbedDim)
	if err != nil {
		logger.Fatal("failed to ensure collection", zap.Error(err))
	}

	gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, rate.NewLimiter(rate.Limit(1), 2))
	if err != nil {
		logger.Fatal("failed to init Gemini client", zap.Error(err))
	}

	ingestor := ingest.New(
		gemini,
		coll,
		rate.NewLimiter(rate.Every(cfg.BatchInterval), 1),
		ingest.Options{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
			BatchSize:    cfg.BatchSize,
		},
		logger,
	)

	total := 0
	for _, path := range collectFiles(*pathFlag, logger) {
		chunks, err := ingestor.IngestFile(ctx, path)
		if err != nil {
			logger.Fatal("ingestion failed",
				zap.String("file", path),
				zap.Int("committed", chunks),
				zap.Error(err),
			)
		}
		total += chunks
	}

	logger.Info("done", zap.Int("chunks", total), zap.String("collection", coll.Name()))
}

func collectFiles(root string, logger *zap.Logger) []string {
	info, err := os.Stat(root)
	if err != nil {
		logger.Fatal("cannot stat path", zap.String("path", root), zap.Error(err))
	}
	if !info.IsDir() {
		return []string{root}
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		logger.Fatal("walking directory", zap.Error(err))
	}
	return files
}

func supported(path string) bool {
	l := strings.ToLower(path)
	return strings.HasSuffix(l, ".pdf") ||
		strings.HasSuffix(l, ".md") ||
		strings.HasSuffix(l, ".txt") ||
		strings.HasSuffix(l, ".html") ||
		strings.HasSuffix(l, ".htm")
}
