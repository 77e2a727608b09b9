// Package gemini implements ports.Generator on top of the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/ports"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Option configures the Generator.
type Option func(*Generator)

// WithModel selects the model name.
func WithModel(model string) Option {
	return func(g *Generator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(g *Generator) {
		g.temperature = &t
	}
}

// WithBaseURL points the client at a proxy or a test server.
func WithBaseURL(url string) Option {
	return func(g *Generator) {
		g.baseURL = url
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// Generator asks a Gemini model for completions.
type Generator struct {
	client      *genai.Client
	model       string
	temperature *float32
	baseURL     string
	logger      *slog.Logger
}

var _ ports.Generator = (*Generator)(nil)

// New creates a Generator for the Gemini API.
func New(ctx context.Context, apiKey string, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	g := &Generator{model: DefaultModel, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(g)
	}

	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if g.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	g.client = client
	return g, nil
}

// Generate sends the prompt input with the instructions as system instruction.
func (g *Generator) Generate(ctx context.Context, p ports.Prompt) (string, error) {
	config := &genai.GenerateContentConfig{Temperature: g.temperature}
	if p.Instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(p.Instructions, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(p.Input), config)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := resp.Text()
	g.logger.Debug("generated", "model", g.model, "chars", len(text))
	return text, nil
}
