// Package store wraps an embedded on-disk vector database (chromem-go).
//
// The backing database holds an exclusive handle on its directory, so the
// process keeps at most one live Store per path: a second Open for the same
// path fails until the first handle is closed.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

var (
	ErrAlreadyOpen        = errors.New("store already open for this path")
	ErrClosed             = errors.New("store is closed")
	ErrDimensionMismatch  = errors.New("embedding dimensionality does not match the collection")
	ErrCollectionNotFound = errors.New("collection not found")
)

var (
	openMu    sync.Mutex
	openPaths = map[string]bool{}
)

// Chunk is one stored document slice with its precomputed embedding.
// Chunks are never mutated after ingestion; re-ingesting the same source
// duplicates them (no content dedup).
type Chunk struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// Result is one query match, ranked by cosine similarity (highest first).
type Result struct {
	ID         string
	Content    string
	Similarity float32
	Metadata   map[string]string
}

type Store struct {
	db     *chromem.DB
	path   string
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Open creates or reopens the on-disk database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	openMu.Lock()
	defer openMu.Unlock()
	if openPaths[path] {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, path)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening vector database: %w", err)
	}

	openPaths[path] = true
	logger.Info("vector store opened", zap.String("path", path))

	return &Store{db: db, path: path, logger: logger}, nil
}

// Close releases the handle so the path can be opened again.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	openMu.Lock()
	delete(openPaths, s.path)
	openMu.Unlock()

	s.logger.Info("vector store closed", zap.String("path", s.path))
	return nil
}

// noEmbed guards the collection against implicit embedding: every vector in
// this store is computed by the caller and passed in explicitly.
func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("store does not embed; pass precomputed embeddings")
}

// EnsureCollection creates the named collection if absent and returns a
// handle bound to it. Calling it again with the same parameters is a no-op
// on the underlying database.
func (s *Store) EnsureCollection(name string, dim int) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimensionality %d", dim)
	}

	c, err := s.db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("ensuring collection %s: %w", name, err)
	}

	return &Collection{store: s, inner: c, name: name, dim: dim}, nil
}

// Collections returns the names of the collections currently on disk.
func (s *Store) Collections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	var names []string
	for name := range s.db.ListCollections() {
		names = append(names, name)
	}
	return names
}

// Collection is a named partition holding chunks of one fixed vector
// dimensionality under cosine similarity.
type Collection struct {
	store *Store
	inner *chromem.Collection
	name  string
	dim   int
}

func (c *Collection) Name() string { return c.name }

// Count reports the number of stored chunks.
func (c *Collection) Count() int { return c.inner.Count() }

// Upsert adds chunks with their embeddings. A dimensionality mismatch fails
// fast before anything is written. Content is not deduplicated.
func (c *Collection) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		if len(ch.Embedding) != c.dim {
			return fmt.Errorf("%w: chunk %s has %d values, want %d",
				ErrDimensionMismatch, ch.ID, len(ch.Embedding), c.dim)
		}
		docs[i] = chromem.Document{
			ID:        ch.ID,
			Content:   ch.Content,
			Embedding: ch.Embedding,
			Metadata:  ch.Metadata,
		}
	}

	if err := c.inner.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding chunks to %s: %w", c.name, err)
	}

	c.store.logger.Debug("chunks upserted",
		zap.String("collection", c.name),
		zap.Int("count", len(chunks)),
	)
	return nil
}

// Query returns up to k chunks ranked by cosine similarity to vector.
// Tie order between equal similarities follows the database's native order.
func (c *Collection) Query(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if len(vector) != c.dim {
		return nil, fmt.Errorf("%w: query vector has %d values, want %d",
			ErrDimensionMismatch, len(vector), c.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	// chromem requires nResults <= stored count.
	count := c.inner.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	matches, err := c.inner.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", c.name, err)
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			ID:         m.ID,
			Content:    m.Content,
			Similarity: m.Similarity,
			Metadata:   m.Metadata,
		}
	}
	return results, nil
}
