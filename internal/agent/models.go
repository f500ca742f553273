package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Route identifies which context-fetch path a query takes.
// The wire labels match what the classifier is instructed to emit.
type Route string

const (
	RouteWeather   Route = "weather"
	RouteDocuments Route = "rag"
)

var (
	// ErrAmbiguousRoute is returned when the classifier emits a label
	// outside the known routes. The model's output is never trusted blindly.
	ErrAmbiguousRoute = errors.New("router returned a label outside the known routes")

	// ErrNoCityFound is returned when city extraction yields an empty city
	// on the weather path.
	ErrNoCityFound = errors.New("no city could be identified in the query")
)

// ParseRoute maps raw classifier output onto the closed route enumeration.
// Matching is case-insensitive after trimming; anything else fails with
// ErrAmbiguousRoute.
func ParseRoute(raw string) (Route, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(RouteWeather):
		return RouteWeather, nil
	case string(RouteDocuments):
		return RouteDocuments, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrAmbiguousRoute, raw)
	}
}

// NoDocumentsSentinel is the context handed to the generator when retrieval
// returns zero matches, so the answer can say the database is empty instead
// of being derived from an empty string.
const NoDocumentsSentinel = "No relevant documents found in the database. (Is the PDF ingested?)"

// State is a stage of one pipeline run. Transitions are strictly forward:
// StateStart -> StateRouted -> StateContextGathered -> StateAnswered.
type State string

const (
	StateStart           State = "start"
	StateRouted          State = "routed"
	StateContextGathered State = "context_gathered"
	StateAnswered        State = "answered"
)

// transitions is the full transition table. No cycles, no re-routing,
// no state is ever revisited.
var transitions = map[State]State{
	StateStart:           StateRouted,
	StateRouted:          StateContextGathered,
	StateContextGathered: StateAnswered,
}

// PipelineState carries one query through the stages. It is owned by a
// single run and discarded once the answer is produced.
type PipelineState struct {
	Question string
	Route    Route
	Context  string
	Answer   string

	state State
}

func newPipelineState(question string) *PipelineState {
	return &PipelineState{Question: question, state: StateStart}
}

// advance moves to the next stage, enforcing the transition table.
func (ps *PipelineState) advance(to State) error {
	if transitions[ps.state] != to {
		return fmt.Errorf("invalid pipeline transition %s -> %s", ps.state, to)
	}
	ps.state = to
	return nil
}

// Current returns the stage the run is in.
func (ps *PipelineState) Current() State { return ps.state }

// Event is one stage-keyed partial output of a pipeline run. The chat
// boundary displays the "generator" stage's value under key "answer".
type Event struct {
	Stage string `json:"stage"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Names of the stages as they appear in emitted events.
const (
	StageRouter    = "router"
	StageWeather   = "weather"
	StageRetriever = "retriever"
	StageGenerator = "generator"
)
