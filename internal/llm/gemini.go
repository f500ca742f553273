package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/josinaldojr/weather-docs-agent/internal/agent"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	embeddingModel = "models/text-embedding-004"
	chatModel      = "gemini-2.5-flash"
	embedDim       = 768
)

type GeminiClient struct {
	client  *genai.Client
	limiter *rate.Limiter
}

// NewGeminiClient builds the shared Gemini client. The limiter paces every
// model call; pass nil to run unpaced.
func NewGeminiClient(ctx context.Context, apiKey string, limiter *rate.Limiter) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}

	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{client: c, limiter: limiter}, nil
}

func (g *GeminiClient) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}

func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	clean := normalizeWhitespace(text)
	if clean == "" {
		return nil, fmt.Errorf("empty text for embedding")
	}

	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := g.client.Models.EmbedContent(
		ctx,
		embeddingModel,
		genai.Text(clean),
		&genai.EmbedContentConfig{
			OutputDimensionality: genai.Ptr(int32(embedDim)),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini embed error: %w", err)
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	values := resp.Embeddings[0].Values
	if len(values) != embedDim {
		return nil, fmt.Errorf("unexpected embedding size %d (expected %d)", len(values), embedDim)
	}

	out := make([]float32, embedDim)
	copy(out, values)
	return out, nil
}

func (g *GeminiClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := g.wait(ctx); err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0)),
	}
	if system != "" {
		cfg.SystemInstruction = genai.Text(system)[0]
	}

	resp, err := g.client.Models.GenerateContent(ctx, chatModel, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generateContent error: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("empty response from gemini")
	}

	txt := strings.TrimSpace(resp.Text())
	if txt == "" {
		return "", fmt.Errorf("model returned empty text")
	}
	return txt, nil
}

// ExtractRoute asks the model to classify the question into a datasource
// label. The raw label is returned as-is; the pipeline validates it against
// the known routes.
func (g *GeminiClient) ExtractRoute(ctx context.Context, question string) (string, error) {
	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"datasource": {
				Type: genai.TypeString,
				Description: "Given a user question, choose to route it to 'weather' or 'rag'. " +
					"Use 'weather' for current temperature/forecast. Use 'rag' for document questions.",
			},
		},
		Required: []string{"datasource"},
	}

	var out struct {
		Datasource string `json:"datasource"`
	}
	if err := g.extract(ctx, question, schema, &out); err != nil {
		return "", err
	}
	return out.Datasource, nil
}

// ExtractCity pulls the city name mentioned in the question, or an empty
// string when none is identifiable.
func (g *GeminiClient) ExtractCity(ctx context.Context, question string) (string, error) {
	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"city": {
				Type: genai.TypeString,
				Description: "The name of the city mentioned in the query. " +
					"Leave empty if the query names no city.",
			},
		},
		Required: []string{"city"},
	}

	var out struct {
		City string `json:"city"`
	}
	if err := g.extract(ctx, question, schema, &out); err != nil {
		return "", err
	}
	return out.City, nil
}

// extract runs a structured-output call and decodes the JSON response into v.
func (g *GeminiClient) extract(ctx context.Context, question string, schema *genai.Schema, v any) error {
	if err := g.wait(ctx); err != nil {
		return err
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0)),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	resp, err := g.client.Models.GenerateContent(ctx, chatModel, genai.Text(question), cfg)
	if err != nil {
		return fmt.Errorf("gemini structured output error: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("empty response from gemini")
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return fmt.Errorf("model returned empty structured output")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decoding structured output %q: %w", raw, err)
	}
	return nil
}

// -------- helpers --------

func normalizeWhitespace(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			if !space {
				b.WriteRune(' ')
				space = true
			}
		} else {
			b.WriteRune(r)
			space = false
		}
	}
	return b.String()
}

var _ agent.EmbeddingClient = (*GeminiClient)(nil)
var _ agent.CompletionClient = (*GeminiClient)(nil)
