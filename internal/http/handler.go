package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/josinaldojr/weather-docs-agent/internal/agent"
	"github.com/josinaldojr/weather-docs-agent/internal/ingest"
)

// noAnswerNotice is shown when the pipeline finishes without ever yielding
// an answer event, so the chat never blocks on a missing reply.
const noAnswerNotice = "No answer generated. Check the server logs."

type PipelineStreamer interface {
	Stream(ctx context.Context, question string) (<-chan agent.Event, <-chan error)
}

type Ingestor interface {
	IngestFile(ctx context.Context, path string) (int, error)
}

type Handler struct {
	pipeline   PipelineStreamer
	ingestor   Ingestor
	transcript *Transcript
	dataDir    string
	timeout    time.Duration
	reload     func()
	logger     *zap.Logger
}

func NewHandler(
	pipeline PipelineStreamer,
	ingestor Ingestor,
	transcript *Transcript,
	dataDir string,
	timeout time.Duration,
	reload func(),
	logger *zap.Logger,
) *Handler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		pipeline:   pipeline,
		ingestor:   ingestor,
		transcript: transcript,
		dataDir:    dataDir,
		timeout:    timeout,
		reload:     reload,
		logger:     logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Answer string        `json:"answer"`
	Route  string        `json:"route,omitempty"`
	Events []agent.Event `json:"events,omitempty"`
}

// Chat runs one query through the pipeline and appends both turns to the
// transcript. Pipeline failures surface as a single inline error; the user
// has to resend the query.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.transcript.Append("user", question)

	events, errc := h.pipeline.Stream(ctx, question)

	var collected []agent.Event
	var answer, route string
	for ev := range events {
		collected = append(collected, ev)
		if ev.Stage == agent.StageRouter && ev.Key == "route" {
			route = ev.Value
		}
		if ev.Stage == agent.StageGenerator && ev.Key == "answer" {
			answer = ev.Value
		}
	}
	if err := <-errc; err != nil {
		h.logger.Error("pipeline run failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if answer == "" {
		answer = noAnswerNotice
	}
	h.transcript.Append("assistant", answer)

	writeJSON(w, http.StatusOK, chatResponse{Answer: answer, Route: route, Events: collected})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"messages": h.transcript.Messages()})
}

type ingestResponse struct {
	File   string `json:"file"`
	Chunks int    `json:"chunks"`
}

// UploadDocument accepts a multipart PDF, stores it under the data dir keyed
// by its original filename (re-uploading overwrites), and ingests it.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	if err := os.MkdirAll(h.dataDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "creating data dir: "+err.Error())
		return
	}

	savePath := filepath.Join(h.dataDir, name)
	dst, err := os.Create(savePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "saving upload: "+err.Error())
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "saving upload: "+err.Error())
		return
	}
	dst.Close()

	chunks, err := h.ingestor.IngestFile(r.Context(), savePath)
	if err != nil {
		var ingErr *ingest.IngestError
		if errors.As(err, &ingErr) {
			// Earlier batches stay committed; tell the caller how far it got.
			writeError(w, http.StatusInternalServerError,
				fmt.Sprintf("ingestion aborted after %d chunks: %v", ingErr.Committed, ingErr.Err))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("document ingested", zap.String("file", name), zap.Int("chunks", chunks))
	writeJSON(w, http.StatusOK, ingestResponse{File: name, Chunks: chunks})
}

// Reset clears the session transcript and re-reads environment config.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.transcript.Clear()
	if h.reload != nil {
		h.reload()
	}
	h.logger.Info("session reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
