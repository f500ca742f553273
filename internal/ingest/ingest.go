// Package ingest loads source documents, splits them into overlapping
// chunks, and pushes embedded chunks into the vector store in rate-limited
// batches.
//
// Ingestion is not atomic: a failing batch leaves previously committed
// batches persisted and aborts the rest. Re-ingesting the same file adds a
// second copy of every chunk; the store does not deduplicate by content.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/josinaldojr/weather-docs-agent/internal/store"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Upserter interface {
	Upsert(ctx context.Context, chunks []store.Chunk) error
}

// Waiter paces the batches. *rate.Limiter satisfies it; tests inject a
// no-op so they run without real delays.
type Waiter interface {
	Wait(ctx context.Context) error
}

type nopWaiter struct{}

func (nopWaiter) Wait(context.Context) error { return nil }

// IngestError reports a mid-ingestion failure. Committed counts the chunks
// already persisted by earlier batches; they stay in the store.
type IngestError struct {
	Committed int
	Batch     int
	Err       error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingestion failed at batch %d after committing %d chunks: %v",
		e.Batch, e.Committed, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

func (o *Options) applyDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1000
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = 0
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
}

type Ingestor struct {
	embedder Embedder
	dest     Upserter
	limiter  Waiter
	opts     Options
	logger   *zap.Logger
}

func New(embedder Embedder, dest Upserter, limiter Waiter, opts Options, logger *zap.Logger) *Ingestor {
	opts.applyDefaults()
	if limiter == nil {
		limiter = nopWaiter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		embedder: embedder,
		dest:     dest,
		limiter:  limiter,
		opts:     opts,
		logger:   logger,
	}
}

// IngestFile chunks one source file and stores every chunk with its
// embedding. It returns the number of chunks committed, which on error is
// less than the file's total.
func (ing *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("source file: %w", err)
	}
	if !isSupportedFile(path) {
		return 0, fmt.Errorf("unsupported file type: %s", path)
	}

	pages, err := extractPages(path)
	if err != nil {
		return 0, err
	}

	source := filepath.Base(path)
	var chunks []store.Chunk
	for _, page := range pages {
		for _, text := range splitText(page.Text, ing.opts.ChunkSize, ing.opts.ChunkOverlap) {
			chunks = append(chunks, store.Chunk{
				ID:      uuid.NewString(),
				Content: text,
				Metadata: map[string]string{
					"source": source,
					"page":   strconv.Itoa(page.Number),
				},
			})
		}
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	ing.logger.Info("starting batched ingestion",
		zap.String("source", source),
		zap.Int("chunks", len(chunks)),
		zap.Int("batch_size", ing.opts.BatchSize),
	)

	committed := 0
	batchNum := 0
	for start := 0; start < len(chunks); start += ing.opts.BatchSize {
		batchNum++
		end := start + ing.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if err := ing.limiter.Wait(ctx); err != nil {
			return committed, &IngestError{Committed: committed, Batch: batchNum, Err: err}
		}

		for i := range batch {
			vec, err := ing.embedder.Embed(ctx, batch[i].Content)
			if err != nil {
				return committed, &IngestError{Committed: committed, Batch: batchNum, Err: err}
			}
			batch[i].Embedding = vec
		}

		if err := ing.dest.Upsert(ctx, batch); err != nil {
			return committed, &IngestError{Committed: committed, Batch: batchNum, Err: err}
		}
		committed += len(batch)

		ing.logger.Debug("batch committed",
			zap.Int("batch", batchNum),
			zap.Int("committed", committed),
		)
	}

	ing.logger.Info("ingestion complete", zap.String("source", source), zap.Int("chunks", committed))
	return committed, nil
}
