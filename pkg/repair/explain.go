package repair

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aretw0/ason/internal/logging"
	"github.com/aretw0/ason/pkg/ports"
)

// ExplainerInstructions is the system prompt of the summarizer.
const ExplainerInstructions = `You explain results of executed tasks back to the user.
Input will include:
<task>the user task</task>
<result>the raw JSON/text result returned by the task (may be empty)</result>

Guidelines:
- If <result> is empty or null, say the task executed but returned no data.
- Otherwise summarize the outcome in 1-3 short sentences focusing on the most important parts.
- If the result is a plain user-facing string, return it verbatim without quotes.
- Do NOT mention scripts, code internals, or agents.`

// Explainer turns a raw result into a user-facing answer.
type Explainer struct {
	generator ports.Generator
	logger    *slog.Logger
}

// NewExplainer creates an Explainer. logger may be nil.
func NewExplainer(gen ports.Generator, logger *slog.Logger) *Explainer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Explainer{generator: gen, logger: logger}
}

// Explain asks the generator to summarize raw. A blank reply falls back to raw,
// or "Task completed" when raw is empty too.
func (e *Explainer) Explain(ctx context.Context, task, raw string) (string, error) {
	input := "<task>\n" + task + "\n</task>\n<result>\n" + raw + "\n</result>"
	reply, err := e.generator.Generate(ctx, ports.Prompt{Instructions: ExplainerInstructions, Input: input})
	if err != nil {
		return "", err
	}
	full := strings.TrimSpace(reply)
	if full == "" {
		e.logger.Info("explanation empty, using fallback")
		if strings.TrimSpace(raw) == "" {
			return "Task completed", nil
		}
		return raw, nil
	}
	e.logger.Debug("explanation generated")
	return full, nil
}
