package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/ason/internal/presentation/tui"
)

// Sender performs one natural-language task.
type Sender interface {
	Send(ctx context.Context, task string) (string, error)
}

// Chat reads tasks line by line and prints the replies.
type Chat struct {
	In     io.Reader
	Out    io.Writer
	Render tui.Renderer
	// Prompt is printed before each read; "> " when empty.
	Prompt string
}

// Run loops until EOF, "exit"/"quit" or ctx cancellation. Task failures are
// printed and the loop continues.
func (c *Chat) Run(ctx context.Context, s Sender) error {
	render := c.Render
	if render == nil {
		render = tui.Plain
	}
	prompt := c.Prompt
	if prompt == "" {
		prompt = "> "
	}

	scanner := bufio.NewScanner(NewInterruptibleReader(c.In, ctx.Done()))
	for {
		fmt.Fprint(c.Out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(c.Out)
			if err := scanner.Err(); err != nil && !isInterrupted(err) {
				return err
			}
			return nil
		}

		task := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(task) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		reply, err := s.Send(ctx, task)
		if err != nil {
			if isInterrupted(err) {
				fmt.Fprintln(c.Out, "[CTRL+C]")
				return nil
			}
			printSystemMessage(c.Out, "error: %v", err)
			continue
		}

		out, err := render(reply)
		if err != nil {
			out = reply
		}
		fmt.Fprintln(c.Out, strings.TrimRight(out, "\n"))
	}
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}
