package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/ason"
	"github.com/aretw0/ason/internal/config"
	"github.com/aretw0/ason/internal/demo"
	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/adapters/gemini"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/operator"
	"github.com/aretw0/ason/pkg/ports"
)

// ErrNoGenerator is returned by Unconfigured.
var ErrNoGenerator = errors.New("no generator configured: set the API key environment variable")

// Options are the flags shared by the ason commands. Non-zero values
// override the configuration file.
type Options struct {
	ConfigPath string
	Mode       string
	Remote     string
	Debug      bool
}

// LoadConfig reads the configuration file and applies flag overrides.
func LoadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if opts.Mode != "" {
		mode, err := domain.ParseExecutionMode(opts.Mode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}
	if opts.Remote != "" {
		cfg.Remote.Enabled = true
		cfg.Remote.URL = opts.Remote
	}
	if opts.Debug {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Validate()
}

// NewLogger writes to stderr; stdout belongs to replies and protocols.
func NewLogger(cfg config.Config, extra ...slog.Handler) *slog.Logger {
	return logging.NewWithFormat(os.Stderr, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level), extra...)
}

// ClientOptions maps the configuration onto client options.
func ClientOptions(cfg config.Config, logger *slog.Logger) []ason.Option {
	opts := []ason.Option{
		ason.WithLogger(logger),
		ason.WithMode(cfg.Mode),
		ason.WithMaxAttempts(cfg.MaxAttempts),
		ason.WithExecutorPath(cfg.ExecutorPath),
		ason.WithContainerRuntime(cfg.Container.Runtime),
		ason.WithContainerImage(cfg.Container.Image),
	}
	if len(cfg.Denylist) > 0 {
		opts = append(opts, ason.WithDenylist(cfg.Denylist...))
	}
	if cfg.Remote.Enabled {
		opts = append(opts, ason.WithRemote(cfg.Remote.URL))
	}
	return opts
}

// NewGenerator builds the configured generator. Without an API key it
// returns Unconfigured so commands that never generate still work.
func NewGenerator(ctx context.Context, cfg config.Generator, logger *slog.Logger) (ports.Generator, error) {
	key := cfg.APIKey()
	if key == "" {
		return Unconfigured, nil
	}
	return gemini.New(ctx, key,
		gemini.WithModel(cfg.Model),
		gemini.WithBaseURL(cfg.BaseURL),
		gemini.WithLogger(logger),
	)
}

type unconfigured struct{}

func (unconfigured) Generate(ctx context.Context, p ports.Prompt) (string, error) {
	return "", ErrNoGenerator
}

// Unconfigured fails every generation with ErrNoGenerator.
var Unconfigured ports.Generator = unconfigured{}

// NewDemoClient wires a client to the demo back office.
func NewDemoClient(ctx context.Context, cfg config.Config, logger *slog.Logger) (*demo.App, *ason.Client, error) {
	gen, err := NewGenerator(ctx, cfg.Generator, logger)
	if err != nil {
		return nil, nil, err
	}

	app := demo.New(logger, operator.WithReloadTimeout(cfg.ReloadTimeout), operator.WithLogger(logger))
	opts := ClientOptions(cfg, logger)
	opts = append(opts, ason.WithCapabilities(app.Capabilities()...))
	if cfg.Generator.Explain && cfg.Generator.APIKey() != "" {
		opts = append(opts, ason.WithExplainer(gen))
	}

	client, err := ason.New(app.Tree(), gen, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing ason: %w", err)
	}
	return app, client, nil
}
