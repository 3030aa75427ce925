package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdobrica/nutritrackr/internal/nutritrackr/app"
	"github.com/bdobrica/nutritrackr/internal/nutritrackr/bot"
)

const defaultChatSession = "local"

type chatResponder interface {
	Respond(ctx context.Context, sessionKey, userText string) (string, error)
	ResetSession(ctx context.Context, sessionKey string) error
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the bot from the terminal",
		Long:  "Reads one message per line and prints the reply. Type /reset to restart the conversation, /quit to leave.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closer, err := opts.loadConfig(false)
			if err != nil {
				return err
			}
			defer closer.Close()

			core, err := app.NewCore(cfg)
			if err != nil {
				return err
			}
			defer core.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), core.Responder, core.Replies(), session)
		},
	}
	cmd.Flags().StringVar(&session, "session", defaultChatSession, "session key for the conversation")
	return cmd
}

// runChat is the REPL loop: one line in, one reply out.
func runChat(ctx context.Context, in io.Reader, out io.Writer, r chatResponder, replies bot.Replies, session string) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "you> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit" || line == "/exit":
			return nil
		case bot.IsResetCommand(line):
			if err := r.ResetSession(ctx, session); err != nil {
				return err
			}
			fmt.Fprintf(out, "nutritrackr> %s\n", replies.Reset)
		default:
			reply, err := r.Respond(ctx, session, line)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				fmt.Fprintf(out, "nutritrackr> %s\n(error: %v)\n", replies.Fallback, err)
			} else {
				fmt.Fprintf(out, "nutritrackr> %s\n", reply)
			}
		}
		fmt.Fprint(out, "you> ")
	}
	return scanner.Err()
}
