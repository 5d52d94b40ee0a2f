package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fwojciec/agentstream"
	"github.com/fwojciec/agentstream/lorem"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveOpts struct {
	addr       string
	deltas     int
	delay      time.Duration
	fragment   int
	errorEvent string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lorem ipsum demo agent server",
	Long: `serve answers agent runs on /api/v1/agent/run (HTTP streaming) and
/api/v1/agent/ws (websocket) with lorem ipsum text, using the configured
framing.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.addr, "addr", "127.0.0.1:7001", "Listen address")
	f.IntVar(&serveOpts.deltas, "deltas", 40, "Message events per answer")
	f.DurationVar(&serveOpts.delay, "delay", 30*time.Millisecond, "Pause between written fragments")
	f.IntVar(&serveOpts.fragment, "fragment", 7, "Bytes per written fragment")
	f.StringVar(&serveOpts.errorEvent, "error-event", "", "Insert an error event with this message")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(opts, cmd.Flags().Changed, os.Getenv)
	if err != nil {
		return err
	}
	strategy, err := agentstream.ParseStrategy(cfg.Framing)
	if err != nil {
		return err
	}
	logger := newLogger()
	srv := lorem.New(
		lorem.WithStrategy(strategy),
		lorem.WithDeltas(serveOpts.deltas),
		lorem.WithDelay(serveOpts.delay),
		lorem.WithFragmentSize(serveOpts.fragment),
		lorem.WithErrorEvent(serveOpts.errorEvent),
		lorem.WithLogger(logger),
	)
	httpSrv := &http.Server{
		Addr:              serveOpts.addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx := cmd.Context()
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	logger.Info("serving", "addr", serveOpts.addr, "framing", strategy)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
