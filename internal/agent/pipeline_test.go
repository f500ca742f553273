package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLLM struct {
	route    string
	routeErr error
	city     string
	cityErr  error

	answer      string
	generateErr error

	lastSystem    string
	lastPrompt    string
	generateCalls int
}

func (m *mockLLM) Generate(ctx context.Context, system, prompt string) (string, error) {
	m.generateCalls++
	m.lastSystem = system
	m.lastPrompt = prompt
	if m.generateErr != nil {
		return "", m.generateErr
	}
	if m.answer != "" {
		return m.answer, nil
	}
	return "mocked answer", nil
}

func (m *mockLLM) ExtractRoute(ctx context.Context, question string) (string, error) {
	return m.route, m.routeErr
}

func (m *mockLLM) ExtractCity(ctx context.Context, question string) (string, error) {
	return m.city, m.cityErr
}

type mockEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.vec != nil {
		return m.vec, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type mockWeather struct {
	report  string
	err     error
	calls   int
	gotCity string
}

func (m *mockWeather) Current(ctx context.Context, city string) (string, error) {
	m.calls++
	m.gotCity = city
	return m.report, m.err
}

type mockDocs struct {
	passages []Passage
	err      error
	calls    int
	gotK     int
}

func (m *mockDocs) Query(ctx context.Context, vector []float32, k int) ([]Passage, error) {
	m.calls++
	m.gotK = k
	return m.passages, m.err
}

func newTestPipeline(llm *mockLLM, embed *mockEmbedder, w *mockWeather, docs *mockDocs) *Pipeline {
	return NewPipeline(llm, embed, w, docs, 10, nil)
}

func TestPipeline_WeatherRouteNeverQueriesStore(t *testing.T) {
	llm := &mockLLM{route: "weather", city: "Paris", answer: "Sunny in Paris."}
	embed := &mockEmbedder{}
	w := &mockWeather{report: "In Paris, the current weather is as follows: clear sky"}
	docs := &mockDocs{}

	res, err := newTestPipeline(llm, embed, w, docs).Run(context.Background(), "weather in Paris?")

	require.NoError(t, err)
	assert.Equal(t, RouteWeather, res.Route)
	assert.Equal(t, "Paris", w.gotCity)
	assert.Equal(t, "Sunny in Paris.", res.Answer)
	assert.Zero(t, docs.calls, "document store must not be queried on the weather route")
	assert.Zero(t, embed.calls)
}

func TestPipeline_DocumentsRouteNeverCallsWeather(t *testing.T) {
	llm := &mockLLM{route: "rag", answer: "From the docs."}
	embed := &mockEmbedder{}
	w := &mockWeather{}
	docs := &mockDocs{passages: []Passage{
		{ID: "a", Content: "first passage", Similarity: 0.9},
		{ID: "b", Content: "second passage", Similarity: 0.8},
	}}

	res, err := newTestPipeline(llm, embed, w, docs).Run(context.Background(), "what does the PDF say?")

	require.NoError(t, err)
	assert.Equal(t, RouteDocuments, res.Route)
	assert.Zero(t, w.calls, "weather client must not be called on the documents route")
	assert.Equal(t, 1, embed.calls)
	assert.Equal(t, 10, docs.gotK)
	assert.Equal(t, "first passage\n\nsecond passage", res.Context)
}

func TestPipeline_EmptyRetrievalUsesSentinel(t *testing.T) {
	llm := &mockLLM{route: "rag", answer: "Nothing ingested yet."}
	docs := &mockDocs{passages: nil}

	res, err := newTestPipeline(llm, &mockEmbedder{}, &mockWeather{}, docs).
		Run(context.Background(), "anything in the docs?")

	require.NoError(t, err)
	assert.Equal(t, NoDocumentsSentinel, res.Context)
	assert.Contains(t, llm.lastPrompt, NoDocumentsSentinel,
		"the generator must see the sentinel, never an empty context")
}

func TestPipeline_WeatherFailureSoftFails(t *testing.T) {
	llm := &mockLLM{route: "weather", city: "Berlin", answer: "Could not retrieve the weather."}
	w := &mockWeather{err: errors.New("503 from provider")}

	res, err := newTestPipeline(llm, &mockEmbedder{}, w, &mockDocs{}).
		Run(context.Background(), "weather in Berlin")

	require.NoError(t, err, "a provider failure must not abort the run")
	assert.Contains(t, res.Context, "Error fetching weather for Berlin")
	assert.Contains(t, res.Context, "503 from provider")
	assert.Contains(t, llm.lastPrompt, "Error fetching weather for Berlin")
	assert.Equal(t, "Could not retrieve the weather.", res.Answer)
}

func TestPipeline_CityExtractionFailurePropagates(t *testing.T) {
	llm := &mockLLM{route: "weather", cityErr: errors.New("model unavailable")}
	w := &mockWeather{}

	_, err := newTestPipeline(llm, &mockEmbedder{}, w, &mockDocs{}).
		Run(context.Background(), "weather?")

	require.Error(t, err)
	assert.Zero(t, w.calls)
	assert.Zero(t, llm.generateCalls)
}

func TestPipeline_NoCityFound(t *testing.T) {
	llm := &mockLLM{route: "weather", city: "  "}

	_, err := newTestPipeline(llm, &mockEmbedder{}, &mockWeather{}, &mockDocs{}).
		Run(context.Background(), "is it raining?")

	require.ErrorIs(t, err, ErrNoCityFound)
}

func TestPipeline_AmbiguousRouteFails(t *testing.T) {
	llm := &mockLLM{route: "sports"}
	w := &mockWeather{}
	docs := &mockDocs{}

	_, err := newTestPipeline(llm, &mockEmbedder{}, w, docs).
		Run(context.Background(), "who won yesterday?")

	require.ErrorIs(t, err, ErrAmbiguousRoute)
	assert.Zero(t, w.calls)
	assert.Zero(t, docs.calls)
}

func TestPipeline_RouteLabelCaseInsensitive(t *testing.T) {
	llm := &mockLLM{route: "Weather", city: "Oslo"}
	w := &mockWeather{report: "cold"}

	res, err := newTestPipeline(llm, &mockEmbedder{}, w, &mockDocs{}).
		Run(context.Background(), "weather in Oslo")

	require.NoError(t, err)
	assert.Equal(t, RouteWeather, res.Route)
	assert.Equal(t, 1, w.calls)
}

func TestPipeline_GenerationFailureAborts(t *testing.T) {
	llm := &mockLLM{route: "rag", generateErr: errors.New("quota exceeded")}
	docs := &mockDocs{passages: []Passage{{ID: "a", Content: "text"}}}

	events, errc := newTestPipeline(llm, &mockEmbedder{}, &mockWeather{}, docs).
		Stream(context.Background(), "question")

	var answered bool
	for ev := range events {
		if ev.Stage == StageGenerator && ev.Key == "answer" {
			answered = true
		}
	}

	var errs []error
	for err := range errc {
		errs = append(errs, err)
	}

	assert.False(t, answered, "no answer event may be emitted when generation fails")
	require.Len(t, errs, 1, "exactly one error must surface")
	assert.Contains(t, errs[0].Error(), "quota exceeded")
}

func TestPipeline_StreamEventSequence(t *testing.T) {
	llm := &mockLLM{route: "rag", answer: "done"}
	docs := &mockDocs{passages: []Passage{{ID: "a", Content: "text"}}}

	events, errc := newTestPipeline(llm, &mockEmbedder{}, &mockWeather{}, docs).
		Stream(context.Background(), "question")

	var stages []string
	var answer string
	for ev := range events {
		stages = append(stages, ev.Stage)
		if ev.Key == "answer" {
			answer = ev.Value
		}
	}
	require.NoError(t, <-errc)

	assert.Equal(t, []string{StageRouter, StageRetriever, StageGenerator}, stages)
	assert.Equal(t, "done", answer)
}

func TestPipeline_RetrievalStoreErrorPropagates(t *testing.T) {
	llm := &mockLLM{route: "rag"}
	docs := &mockDocs{err: errors.New("store connection refused")}

	_, err := newTestPipeline(llm, &mockEmbedder{}, &mockWeather{}, docs).
		Run(context.Background(), "question")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "store connection refused")
	assert.Zero(t, llm.generateCalls, "no soft-fail for store errors")
}

func TestPipeline_EmptyQuestionRejected(t *testing.T) {
	_, err := newTestPipeline(&mockLLM{}, &mockEmbedder{}, &mockWeather{}, &mockDocs{}).
		Run(context.Background(), "   ")
	require.Error(t, err)
}

func TestPipeline_GenerationPromptCarriesContextAndQuestion(t *testing.T) {
	llm := &mockLLM{route: "rag", answer: "ok"}
	docs := &mockDocs{passages: []Passage{{ID: "a", Content: "the payload"}}}

	_, err := newTestPipeline(llm, &mockEmbedder{}, &mockWeather{}, docs).
		Run(context.Background(), "what is the payload?")

	require.NoError(t, err)
	assert.Contains(t, llm.lastSystem, "based ONLY on the provided context")
	assert.Contains(t, llm.lastPrompt, "the payload")
	assert.True(t, strings.Contains(llm.lastPrompt, "what is the payload?"))
}
