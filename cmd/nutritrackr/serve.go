package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/nutritrackr/common/version"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/app"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the WhatsApp webhook server and the Matrix channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closer, err := opts.loadConfig(true)
			if err != nil {
				return err
			}
			defer closer.Close()
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			slog.Info("nutritrackr: starting", "version", version.Version, "commit", version.GitCommit)
			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := a.Run(ctx); err != nil {
				return err
			}
			slog.Info("nutritrackr: stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "listen", "", "override HTTP_ADDR")
	return cmd
}
