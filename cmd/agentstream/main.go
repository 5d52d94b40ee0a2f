// Command agentstream talks to an agent server and streams its answers.
//
// Usage:
//
//	agentstream run [question]     ask once, or open the TUI without a question
//	agentstream replay <glob>...   run captured streams through the engine
//	agentstream serve              start the lorem demo agent server
//
// Settings come from flags, then the environment (AGENTSTREAM_AK,
// AGENTSTREAM_BASE_URL, optionally loaded from a .env file), then the
// YAML config file (.agentstream.yaml by default).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	opts    flags
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "agentstream",
	Short: "Stream agent answers",
	Long: `agentstream sends questions to an agent server and turns its streaming
response into incremental content, a single completion, or an error.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.config, "config", defaultConfigPath, "Path to YAML config file")
	pf.StringVar(&opts.baseURL, "base-url", "", "Agent server base URL")
	pf.StringVar(&opts.websocket, "ws", "", "Websocket endpoint; used instead of HTTP when set")
	pf.StringVar(&opts.workerID, "worker-id", "", "Worker id sent with every request")
	pf.StringVar(&opts.framing, "framing", "", "Wire framing: delimited or embedded")
	pf.StringVar(&opts.payload, "payload", "", "Payload shape: json or text-delta")
	pf.StringVar(&opts.tag, "tag", "", "Frame tag (default \"data\")")
	pf.DurationVar(&opts.throttle, "throttle", 0, "Interval update window (default 500ms)")
	pf.StringVar(&opts.ak, "ak", "", "Access key (overrides AGENTSTREAM_AK)")
	pf.StringVar(&opts.model, "model", "", "Model name sent to the server")
	pf.StringVar(&opts.transcripts, "transcripts", "", "Directory to save session transcripts in")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd, replayCmd, serveCmd)
}

func main() {
	loadEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "agentstream: %v\n", err)
		os.Exit(1)
	}
}

// loadEnv loads the nearest .env file walking up from the working
// directory. Variables already set are not overridden.
func loadEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// newLogger creates a structured logger with the configured verbosity.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
