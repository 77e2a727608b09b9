package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aretw0/ason"
	"github.com/aretw0/ason/internal/cli"
	asonhttp "github.com/aretw0/ason/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var httpCmd = &cobra.Command{
	Use:   "http",
	Short: "Serve the demo application over a REST API",
	Long: `Starts an HTTP server in front of the demo application.

Endpoints: POST /tasks, POST /scripts, GET /signatures, GET /events (SSE),
GET /openapi.yaml and GET /swagger.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

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

		handler, err := asonhttp.NewHandler(client, asonhttp.WithLogger(logger), asonhttp.WithVersion(ason.Version))
		if err != nil {
			return err
		}
		srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		logger.Info("Starting ason HTTP server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(httpCmd)
	httpCmd.Flags().String("addr", ":8081", "Listen address")
}
