package main

import (
	"context"
	"log"
	"os"

	"github.com/aretw0/ason"
	"github.com/aretw0/ason/internal/cli"
	"github.com/aretw0/ason/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the demo application as an MCP server on stdin/stdout.
Agents can call run_task, execute_script and get_signatures.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(cliOptions(cmd))
		if err != nil {
			return err
		}
		// stdout carries JSON-RPC
		log.SetOutput(os.Stderr)
		logger := cli.NewLogger(cfg)

		_, client, err := cli.NewDemoClient(context.Background(), cfg, logger)
		if err != nil {
			return err
		}
		defer client.Close(context.Background())

		srv := mcp.NewServer(client, ason.Version, mcp.WithLogger(logger))
		logger.Info("Starting ason MCP Server (Stdio)...")
		if err := srv.ServeStdio(); err != nil {
			logger.Error("MCP Server execution failed", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
