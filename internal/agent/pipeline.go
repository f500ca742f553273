package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	wl "github.com/abadojack/whatlanggo"
	"go.uber.org/zap"
)

// Pipeline runs one query through router -> context fetch -> generation.
// Exactly one of the weather or retrieval paths runs per query; stages are
// strictly sequential and a stage failure aborts the run. The only local
// recovery is the weather call itself: a provider failure becomes a
// diagnostic context so the generator can still explain what went wrong.
type Pipeline struct {
	llm     CompletionClient
	embed   EmbeddingClient
	weather WeatherClient
	docs    DocumentStore
	topK    int
	logger  *zap.Logger
}

func NewPipeline(
	llm CompletionClient,
	embed EmbeddingClient,
	weather WeatherClient,
	docs DocumentStore,
	topK int,
	logger *zap.Logger,
) *Pipeline {
	if topK <= 0 {
		topK = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		llm:     llm,
		embed:   embed,
		weather: weather,
		docs:    docs,
		topK:    topK,
		logger:  logger,
	}
}

// RunResult is the terminal state of a successful run.
type RunResult struct {
	Question string
	Route    Route
	Context  string
	Answer   string
}

// Run executes the pipeline to completion and returns the terminal state.
func (p *Pipeline) Run(ctx context.Context, question string) (*RunResult, error) {
	return p.run(ctx, question, nil)
}

// Stream executes the pipeline, emitting a stage-keyed event after each
// stage. The event channel is closed when the run ends; the error channel
// receives at most one error.
func (p *Pipeline) Stream(ctx context.Context, question string) (<-chan Event, <-chan error) {
	events := make(chan Event, 4)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		emit := func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
		if _, err := p.run(ctx, question, emit); err != nil {
			errc <- err
		}
	}()

	return events, errc
}

func (p *Pipeline) run(ctx context.Context, question string, emit func(Event)) (*RunResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("question is required")
	}
	if emit == nil {
		emit = func(Event) {}
	}

	ps := newPipelineState(question)

	if err := p.routeStage(ctx, ps); err != nil {
		return nil, err
	}
	emit(Event{Stage: StageRouter, Key: "route", Value: string(ps.Route)})

	switch ps.Route {
	case RouteWeather:
		if err := p.weatherStage(ctx, ps); err != nil {
			return nil, err
		}
		emit(Event{Stage: StageWeather, Key: "context", Value: ps.Context})
	case RouteDocuments:
		if err := p.retrieveStage(ctx, ps); err != nil {
			return nil, err
		}
		emit(Event{Stage: StageRetriever, Key: "context", Value: ps.Context})
	}

	if err := p.generateStage(ctx, ps); err != nil {
		return nil, err
	}
	emit(Event{Stage: StageGenerator, Key: "answer", Value: ps.Answer})

	return &RunResult{
		Question: ps.Question,
		Route:    ps.Route,
		Context:  ps.Context,
		Answer:   ps.Answer,
	}, nil
}

func (p *Pipeline) routeStage(ctx context.Context, ps *PipelineState) error {
	raw, err := p.llm.ExtractRoute(ctx, ps.Question)
	if err != nil {
		return fmt.Errorf("routing query: %w", err)
	}

	route, err := ParseRoute(raw)
	if err != nil {
		return err
	}
	ps.Route = route

	p.logger.Debug("query routed", zap.String("route", string(route)))
	return ps.advance(StateRouted)
}

func (p *Pipeline) weatherStage(ctx context.Context, ps *PipelineState) error {
	// Extraction failures propagate; only the provider call soft-fails.
	city, err := p.llm.ExtractCity(ctx, ps.Question)
	if err != nil {
		return fmt.Errorf("extracting city: %w", err)
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return ErrNoCityFound
	}

	report, err := p.weather.Current(ctx, city)
	if err != nil {
		p.logger.Warn("weather lookup failed", zap.String("city", city), zap.Error(err))
		report = fmt.Sprintf("Error fetching weather for %s: %v", city, err)
	}
	ps.Context = report

	return ps.advance(StateContextGathered)
}

func (p *Pipeline) retrieveStage(ctx context.Context, ps *PipelineState) error {
	vec, err := p.embed.Embed(ctx, ps.Question)
	if err != nil {
		return fmt.Errorf("embedding query: %w", err)
	}

	passages, err := p.docs.Query(ctx, vec, p.topK)
	if err != nil {
		return fmt.Errorf("searching documents: %w", err)
	}

	if len(passages) == 0 {
		ps.Context = NoDocumentsSentinel
	} else {
		parts := make([]string, len(passages))
		for i, pa := range passages {
			parts[i] = pa.Content
		}
		ps.Context = strings.Join(parts, "\n\n")
	}

	p.logger.Debug("documents retrieved", zap.Int("passages", len(passages)))
	return ps.advance(StateContextGathered)
}

func (p *Pipeline) generateStage(ctx context.Context, ps *PipelineState) error {
	system := "You are a helpful assistant. Answer the user's question based ONLY on the provided context. " +
		"If the context does not contain the answer, say so instead of guessing. " +
		"Respond in " + answerLanguage(ps.Question) + "."

	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", ps.Context, ps.Question)

	answer, err := p.llm.Generate(ctx, system, prompt)
	if err != nil {
		return fmt.Errorf("generating answer: %w", err)
	}
	ps.Answer = answer

	return ps.advance(StateAnswered)
}

// answerLanguage picks the reply language from the question itself.
func answerLanguage(question string) string {
	info := wl.Detect(question)
	switch wl.LangToString(info.Lang) {
	case "por":
		return "Portuguese"
	case "spa":
		return "Spanish"
	default:
		return "English"
	}
}
