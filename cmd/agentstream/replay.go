package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"
	"github.com/fwojciec/agentstream"
	"github.com/rivo/uniseg"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var replayOpts struct {
	chunk int
	jobs  int
	show  bool
}

var replayCmd = &cobra.Command{
	Use:   "replay <pattern>...",
	Short: "Run captured wire streams through the session engine",
	Long: `replay reads raw captured responses matching the given glob patterns
("**" is supported) and runs each through a session, reporting content
length, errors and final state per file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().IntVar(&replayOpts.chunk, "chunk", 64, "Bytes read per chunk")
	replayCmd.Flags().IntVar(&replayOpts.jobs, "jobs", 4, "Files replayed in parallel")
	replayCmd.Flags().BoolVar(&replayOpts.show, "show", false, "Print each file's content")
}

// replayResult is the outcome of one replayed capture.
type replayResult struct {
	Path    string
	Content string
	Errors  []string
	State   agentstream.SessionState
	Err     error
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(opts, cmd.Flags().Changed, os.Getenv)
	if err != nil {
		return err
	}
	paths, err := expandPatterns(args)
	if err != nil {
		return err
	}
	results, err := replayAll(cmd.Context(), cfg, newLogger(), paths, replayOpts.chunk, replayOpts.jobs)
	if err != nil {
		return err
	}
	if failed := printReplay(cmd.OutOrStdout(), results, replayOpts.show); failed > 0 {
		return fmt.Errorf("%d of %d replays failed", failed, len(results))
	}
	return nil
}

// expandPatterns resolves glob patterns into a sorted, deduplicated file
// list. A pattern matching nothing is an error.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// replayAll replays every path with at most jobs sessions running at once.
// Results are returned in path order.
func replayAll(ctx context.Context, cfg Config, logger *slog.Logger, paths []string, chunk, jobs int) ([]replayResult, error) {
	results := make([]replayResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(jobs, 1))
	for i, path := range paths {
		g.Go(func() error {
			r, err := replayFile(ctx, cfg, logger, path, chunk)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// replayFile runs one capture through a session. Only setup failures are
// returned as errors; stream failures are part of the result.
func replayFile(ctx context.Context, cfg Config, logger *slog.Logger, path string, chunk int) (replayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return replayResult{}, err
	}
	res := replayResult{Path: path}
	sinks := agentstream.Sinks{
		OnError:    func(err error) { res.Errors = append(res.Errors, err.Error()) },
		OnComplete: func(r agentstream.Result) { res.Content = r.Full },
	}
	sess, err := newSession(cfg, sinks, logger.With("file", path))
	if err != nil {
		f.Close()
		return replayResult{}, err
	}
	// Run closes the source, and with it the file.
	res.Err = sess.Run(ctx, agentstream.NewReaderSource(f, chunk))
	res.State = sess.State()
	return res, nil
}

// printReplay writes one line per result and returns the number of failed
// replays.
func printReplay(w io.Writer, results []replayResult, show bool) int {
	failed := 0
	for _, r := range results {
		n := uniseg.GraphemeClusterCount(r.Content)
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(w, "%s %s: %v\n", color.RedString("✗"), r.Path, r.Err)
		case len(r.Errors) > 0:
			fmt.Fprintf(w, "%s %s: %d chars, %d errors (%s)\n", color.YellowString("!"), r.Path, n, len(r.Errors), r.Errors[0])
		default:
			fmt.Fprintf(w, "%s %s: %d chars\n", color.GreenString("✓"), r.Path, n)
		}
		if show && r.Content != "" {
			fmt.Fprintln(w, r.Content)
		}
	}
	return failed
}
