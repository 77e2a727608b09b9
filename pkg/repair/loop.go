package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/domain"
	"github.com/aretw0/ason/pkg/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxAttempts is the number of repairs after the first attempt.
const DefaultMaxAttempts = 2

// impossiblePrefix marks a generator reply declaring the task unscriptable.
const impossiblePrefix = "cannot"

// Option configures the Loop.
type Option func(*Loop)

// WithValidator overrides the default KeywordValidator.
func WithValidator(v ports.Validator) Option {
	return func(l *Loop) {
		l.validator = v
	}
}

// WithInstructions sets the system instructions sent with every prompt.
func WithInstructions(instructions string) Option {
	return func(l *Loop) {
		l.instructions = instructions
	}
}

// WithTracer records one span per run and per attempt.
func WithTracer(t trace.Tracer) Option {
	return func(l *Loop) {
		l.tracer = t
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// Loop is the generate, validate, execute, repair cycle.
type Loop struct {
	generator    ports.Generator
	executor     ports.Executor
	validator    ports.Validator
	instructions string
	tracer       trace.Tracer
	logger       *slog.Logger
}

// New creates a Loop.
func New(gen ports.Generator, exec ports.Executor, opts ...Option) *Loop {
	l := &Loop{
		generator: gen,
		executor:  exec,
		validator: NewKeywordValidator(nil),
		tracer:    otel.Tracer("github.com/aretw0/ason/pkg/repair"),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetInstructions replaces the system instructions, typically after the
// surface was rebuilt.
func (l *Loop) SetInstructions(instructions string) {
	l.instructions = instructions
}

// Run drives up to maxAttempts+1 attempts. Only context cancellation and
// generator failures are returned as errors; everything else is an Outcome.
func (l *Loop) Run(ctx context.Context, task string, maxAttempts int, prelude string) (domain.Outcome, error) {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	ctx, span := l.tracer.Start(ctx, "repair.run", trace.WithAttributes(
		attribute.Int("ason.max_attempts", maxAttempts),
	))
	defer span.End()

	var lastScript, lastError string
	for attempt := 0; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return domain.Outcome{}, err
		}

		outcome, done, err := l.attempt(ctx, task, attempt, maxAttempts, prelude, &lastScript, &lastError)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return domain.Outcome{}, err
		}
		if done {
			span.SetAttributes(
				attribute.Int("ason.attempts", outcome.Attempts),
				attribute.Bool("ason.success", outcome.Success),
			)
			if !outcome.Success {
				span.SetStatus(codes.Error, outcome.Error)
			}
			return outcome, nil
		}
	}
	return domain.Failed("Unknown error", "", maxAttempts+1), nil
}

func (l *Loop) attempt(ctx context.Context, task string, attempt, maxAttempts int, prelude string, lastScript, lastError *string) (domain.Outcome, bool, error) {
	ctx, span := l.tracer.Start(ctx, "repair.attempt", trace.WithAttributes(
		attribute.Int("ason.attempt", attempt+1),
	))
	defer span.End()
	n := attempt + 1
	last := attempt == maxAttempts

	prompt := BuildPrompt(task, *lastScript, *lastError, attempt)
	l.logger.Debug("generator input", "attempt", n, "prompt", prompt)
	reply, err := l.generator.Generate(ctx, ports.Prompt{Instructions: l.instructions, Input: prompt})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Outcome{}, false, ctxErr
		}
		return domain.Outcome{}, false, fmt.Errorf("generate script: %w", err)
	}

	trimmed := strings.TrimSpace(reply)
	if strings.HasPrefix(strings.ToLower(trimmed), impossiblePrefix) {
		l.logger.Info("generator reported impossibility; returning message directly")
		span.SetAttributes(attribute.String("ason.stage", "impossible"))
		return domain.FailedWith(domain.ErrGenerationImpossible, trimmed, "", n), true, nil
	}

	body := Clean(reply)
	l.logger.Debug("generator output", "attempt", n, "script", body)

	if err := l.validator.Validate(body); err != nil {
		msg := validationMessage(err)
		*lastError, *lastScript = msg, body
		l.logger.Warn("Validation failed: "+msg, "attempt", n)
		span.SetAttributes(attribute.String("ason.stage", "validation"))
		span.SetStatus(codes.Error, msg)
		if last {
			return domain.FailedWith(err, msg, body, n), true, nil
		}
		return domain.Outcome{}, false, nil
	}

	if strings.TrimSpace(prelude) == "" {
		return domain.FailedWith(domain.ErrProxiesNotInitialized, domain.ErrProxiesNotInitialized.Error(), body, n), true, nil
	}

	raw, err := l.executor.Execute(ctx, prelude+"\n"+body)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Outcome{}, false, err
		}
		if errors.Is(err, domain.ErrInvocationCancelled) || strings.Contains(strings.ToLower(err.Error()), strings.ToLower(domain.ErrInvocationCancelled.Error())) {
			return domain.FailedWith(domain.ErrInvocationCancelled, domain.ErrInvocationCancelled.Error(), body, n), true, nil
		}
		*lastError, *lastScript = err.Error(), body
		l.logger.Error("Execution error", "attempt", n, "error", err)
		span.RecordError(err)
		span.SetAttributes(attribute.String("ason.stage", "execution"))
		span.SetStatus(codes.Error, err.Error())
		if last {
			return domain.FailedWith(err, err.Error(), body, n), true, nil
		}
		return domain.Outcome{}, false, nil
	}

	shown := raw
	if strings.TrimSpace(raw) == "" {
		shown = "null"
	}
	l.logger.Info("Execution success. RawResult=" + shown)
	span.SetAttributes(attribute.String("ason.stage", "success"))

	var result *string
	if strings.TrimSpace(raw) != "" && raw != "null" {
		result = &raw
	}
	return domain.Succeeded(result, body, n), true, nil
}

// BuildPrompt returns task on the first attempt, otherwise a regeneration
// request carrying the previous failure.
func BuildPrompt(task, previousScript, lastError string, attempt int) string {
	if attempt == 0 {
		return task
	}
	var b strings.Builder
	b.WriteString("Regenerate the script to accomplish the task, correcting the previous failure.\n")
	b.WriteString("<task>\n" + task + "\n</task>\n")
	if strings.TrimSpace(lastError) != "" {
		b.WriteString("<lastError>\n" + lastError + "\n</lastError>\n")
	}
	if strings.TrimSpace(previousScript) != "" {
		b.WriteString("<previousScript>\n" + previousScript + "\n</previousScript>\n")
	}
	b.WriteString("Output ONLY executable Go statements as per your instructions, or a single sentence starting with 'Cannot' if impossible.\n")
	return b.String()
}
