package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bdobrica/nutritrackr/common/environment"
	"github.com/bdobrica/nutritrackr/common/version"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/app"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/observability"
)

const rootLongDesc = `NutriTrackr is a nutrition and meal-planning assistant for WhatsApp
and Matrix.

  nutritrackr serve     Run the webhook server and chat channels
  nutritrackr chat      Talk to the bot from the terminal
  nutritrackr version   Print build information`

type rootOptions struct {
	envFile string
	debug   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "nutritrackr",
		Short:        "NutriTrackr - nutrition & meal-planning assistant",
		Long:         rootLongDesc,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug logging")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newChatCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// loadConfig reads .env and the environment, then configures logging. The
// returned closer flushes the log file.
func (o *rootOptions) loadConfig(serve bool) (*app.Config, io.Closer, error) {
	if err := environment.Load(o.envFile); err != nil {
		return nil, nil, err
	}
	cfg := app.LoadConfig()
	if o.debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(serve); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	closer := observability.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	return cfg, closer, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
