package main

import (
	"context"

	"github.com/aretw0/ason"
	"github.com/aretw0/ason/internal/cli"
	"github.com/aretw0/ason/pkg/adapters/process"
	"github.com/aretw0/ason/pkg/adapters/redis"
	"github.com/aretw0/ason/pkg/adapters/remote"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the remote execution hub",
	Long: `Starts the hub that hosts script sessions for remote clients over websocket.

Endpoints:
  /runner   websocket, one session per connection
  /sessions JSON list of live sessions
  /metrics  Prometheus metrics
  /healthz  liveness probe

With hub.redis_addr set, sessions are also published to Redis so several hub
replicas share one session directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(cliOptions(cmd))
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Hub.Addr = addr
		}
		logger := cli.NewLogger(cfg)

		image := cfg.Container.Image
		if image == "" {
			image = ason.DefaultImage()
		}
		opts := []remote.Option{
			remote.WithLogger(logger),
			remote.WithIdleTimeout(cfg.Remote.IdleTimeout),
			remote.WithProcessConfig(process.Config{
				ExecutorPath: cfg.ExecutorPath,
				Runtime:      cfg.Container.Runtime,
				Image:        image,
			}),
		}
		if cfg.Hub.RedisAddr != "" {
			dir := redis.New(cfg.Hub.RedisAddr, "", 0, redis.WithTTL(2*cfg.Remote.IdleTimeout))
			defer dir.Close()
			opts = append(opts, remote.WithDirectory(dir))
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		hub := remote.NewHub(opts...)
		if err := hub.ListenAndServe(ctx, cfg.Hub.Addr); err != nil {
			return err
		}
		logger.Info("hub stopped", "signal", ctx.Signal())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides hub.addr)")
}
