package store

import (
	"context"

	"github.com/josinaldojr/weather-docs-agent/internal/agent"
)

// Retriever exposes a Collection as the pipeline's document store.
type Retriever struct {
	c *Collection
}

func (c *Collection) Retriever() *Retriever {
	return &Retriever{c: c}
}

func (r *Retriever) Query(ctx context.Context, vector []float32, k int) ([]agent.Passage, error) {
	results, err := r.c.Query(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	passages := make([]agent.Passage, len(results))
	for i, res := range results {
		passages[i] = agent.Passage{
			ID:         res.ID,
			Content:    res.Content,
			Similarity: res.Similarity,
		}
	}
	return passages, nil
}

var _ agent.DocumentStore = (*Retriever)(nil)
