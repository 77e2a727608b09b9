package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/ason/internal/cli"
	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec [file]",
	Short: "Run a script body against the demo application",
	Long: `Runs a script without a generator. The script is read from the file
argument, or from stdin when the argument is "-" or missing. The raw result is
printed on stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noValidate, _ := cmd.Flags().GetBool("no-validate")

		var src io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			src = f
		}
		code, err := io.ReadAll(src)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}

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

		out, err := client.ExecuteScript(ctx, string(code), !noValidate)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().Bool("no-validate", false, "Skip the forbidden-usage check")
}
