package main

import (
	"context"
	"os"

	"github.com/aretw0/ason"
	"github.com/aretw0/ason/internal/cli"
	"github.com/aretw0/ason/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Give the demo application tasks in natural language",
	Long: `Starts an interactive session. Each line is a task; ason generates a script,
runs it against the demo application and prints the answer.

Requires an API key in the environment variable named by generator.api_key_env
(GEMINI_API_KEY by default).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(cliOptions(cmd))
		if err != nil {
			return err
		}
		logger := cli.NewLogger(cfg)

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		_, client, err := cli.NewDemoClient(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer client.Close(context.Background())

		if tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(os.Stdout, ason.Version)
		}
		chat := &cli.Chat{
			In:     os.Stdin,
			Out:    os.Stdout,
			Render: tui.NewRenderer(os.Stdout),
		}
		return chat.Run(ctx, client)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
