package agent

import "context"

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CompletionClient covers the two call shapes the pipeline needs from the
// language model: free-form generation and structured extraction. The
// extraction methods return the model's raw field value; validation against
// the closed enumerations happens in the pipeline.
type CompletionClient interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	ExtractRoute(ctx context.Context, question string) (string, error)
	ExtractCity(ctx context.Context, question string) (string, error)
}

type WeatherClient interface {
	Current(ctx context.Context, city string) (string, error)
}

// Passage is one retrieved document chunk, ranked by similarity.
type Passage struct {
	ID         string
	Content    string
	Similarity float32
}

type DocumentStore interface {
	Query(ctx context.Context, vector []float32, k int) ([]Passage, error)
}
