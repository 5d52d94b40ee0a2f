package main

import (
	"context"
	"os"
	"strings"

	"github.com/fwojciec/agentstream"
	bt "github.com/fwojciec/agentstream/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [question]",
	Short: "Ask a question, or open the interactive UI when none is given",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(opts, cmd.Flags().Changed, os.Getenv)
	if err != nil {
		return err
	}
	logger := newLogger()
	ctx := cmd.Context()

	if len(args) > 0 {
		p := newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
		req := newRequest(cfg, strings.Join(args, " "))
		return ask(ctx, cfg, logger, req, p.Sinks())
	}

	askFn := func(ctx context.Context, req agentstream.Request, sinks agentstream.Sinks) error {
		return ask(ctx, cfg, logger, req, sinks)
	}
	// Every turn of the conversation shares one id.
	base := newRequest(cfg, "")
	base.ConversationID = uuid.NewString()
	m := bt.New(askFn, base, agentstream.DefaultTheme())
	return bt.Run(ctx, m)
}
