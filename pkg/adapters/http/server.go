package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
)

//go:embed openapi.yaml
var rawSpec []byte

// MaxBodySize bounds request bodies.
const MaxBodySize = 1 << 20

// Engine is the part of the ason client exposed over HTTP.
type Engine interface {
	Send(ctx context.Context, task string) (string, error)
	ExecuteScript(ctx context.Context, script string, validate bool) (string, error)
	Signatures() string
}

// Event is published on /events whenever a task or script finishes.
type Event struct {
	Kind   string    `json:"kind"`
	Input  string    `json:"input"`
	Result string    `json:"result,omitempty"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

type taskRequest struct {
	Task string `json:"task"`
}

type scriptRequest struct {
	Script   string `json:"script"`
	Validate *bool  `json:"validate"`
}

type reply struct {
	Result string `json:"result"`
}

type problem struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the build version reported by /info.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = strings.TrimSpace(version)
	}
}

// Server serves an Engine over HTTP.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	logger  *slog.Logger
	version string
	spec    *openapi3.T
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) (http.Handler, error) {
	s := &Server{
		Engine:  engine,
		Streams: NewStreamManager(),
		logger:  logging.NewNop(),
		version: "unknown",
	}
	for _, opt := range opts {
		opt(s)
	}

	spec, err := openapi3.NewLoader().LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := spec.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	s.spec = spec

	r := chi.NewRouter()
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	r.Post("/tasks", s.RunTask)
	r.Post("/scripts", s.ExecuteScript)
	r.Get("/signatures", s.GetSignatures)
	r.Get("/events", s.SubscribeEvents)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	return enableCORS(r), nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Ason API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// RunTask handles the POST /tasks request.
func (s *Server) RunTask(w http.ResponseWriter, r *http.Request) {
	var body taskRequest
	if err := decode(w, r, &body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("RunTask: Invalid request body", "error", err)
		return
	}
	if strings.TrimSpace(body.Task) == "" {
		http.Error(w, "task is required", http.StatusBadRequest)
		return
	}

	out, err := s.Engine.Send(r.Context(), body.Task)
	s.publish("task", body.Task, out, err)
	if err != nil {
		s.fail(w, "RunTask", err)
		return
	}
	writeJSON(w, http.StatusOK, reply{Result: out}, s.logger)
}

// ExecuteScript handles the POST /scripts request.
func (s *Server) ExecuteScript(w http.ResponseWriter, r *http.Request) {
	var body scriptRequest
	if err := decode(w, r, &body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("ExecuteScript: Invalid request body", "error", err)
		return
	}
	validate := body.Validate == nil || *body.Validate

	out, err := s.Engine.ExecuteScript(r.Context(), body.Script, validate)
	s.publish("script", body.Script, out, err)
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, problem{Error: err.Error(), Kind: "validation"}, s.logger)
	case errors.Is(err, domain.ErrExecution):
		writeJSON(w, http.StatusUnprocessableEntity, problem{Error: err.Error(), Kind: "execution"}, s.logger)
	case err != nil:
		s.fail(w, "ExecuteScript", err)
	default:
		writeJSON(w, http.StatusOK, reply{Result: out}, s.logger)
	}
}

// GetSignatures handles the GET /signatures request.
func (s *Server) GetSignatures(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(s.Engine.Signatures()))
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if s.spec.Info != nil {
		apiVersion = s.spec.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "ason-http",
		"version":     s.version,
		"api_version": apiVersion,
	}, s.logger)
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	http.Error(w, fmt.Sprintf("%s error: %v", op, err), http.StatusInternalServerError)
	s.logger.Error(op+" failed", "error", err)
}

func (s *Server) publish(kind, input, result string, err error) {
	ev := Event{Kind: kind, Input: input, Result: result, At: time.Now().UTC()}
	if err != nil {
		ev.Error = err.Error()
	}
	bytes, mErr := json.Marshal(ev)
	if mErr != nil {
		return
	}
	s.Streams.Broadcast(string(bytes))
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}

// StreamManager fans events out to active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan string]struct{}
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan string]struct{}),
		logger:      logging.NewNop(),
	}
}

func (sm *StreamManager) Subscribe() (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	sm.subscribers[ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if _, ok := sm.subscribers[ch]; ok {
			delete(sm.subscribers, ch)
			close(ch)
		}
	}
}

// Len reports the number of subscribers.
func (sm *StreamManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

func (sm *StreamManager) Broadcast(msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			// slow client
			sm.logger.Warn("SSE: Client buffer full, dropping message")
		}
	}
}

// SubscribeEvents handles the GET /events request (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE Client Disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
