package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tickfeed/internal/config"
	"github.com/JonMunkholm/tickfeed/internal/core"
	"github.com/JonMunkholm/tickfeed/internal/pipeline"
	"github.com/JonMunkholm/tickfeed/internal/store"
)

type runOptions struct {
	feed        string
	concurrency int
	failFast    bool
	persist     bool
	symbols     []string
	from, to    string
	format      string
}

func newRunCmd(cfg *config.Config) *cobra.Command {
	opts := runOptions{
		feed:        cfg.Ingest.DefaultFeed,
		concurrency: cfg.Ingest.MaxConcurrent,
	}

	cmd := &cobra.Command{
		Use:   "run [flags] FILE...",
		Short: "Ingest one or more files through a feed",
		Long: `Ingest one or more files through a feed. Files are processed
concurrently, each with its own decoder. Use "-" to read standard input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd.OutOrStdout(), cmd.InOrStdin(), cfg, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.feed, "feed", "f", opts.feed, "feed layout key (see 'ingest feeds')")
	f.IntVarP(&opts.concurrency, "concurrency", "c", opts.concurrency, "files processed in parallel")
	f.BoolVar(&opts.failFast, "fail-fast", false, "stop remaining files after the first failure")
	f.BoolVar(&opts.persist, "store", false, "write accepted observations to DATABASE_URL")
	f.StringSliceVar(&opts.symbols, "symbols", nil, "accept only these symbols")
	f.StringVar(&opts.from, "from", "", "accept records at or after this date (YYYY-MM-DD)")
	f.StringVar(&opts.to, "to", "", "accept records before this date (YYYY-MM-DD)")
	f.StringVarP(&opts.format, "format", "o", "table", "output format (table or json)")
	return cmd
}

func runIngest(ctx context.Context, out io.Writer, stdin io.Reader, cfg *config.Config, opts runOptions, args []string) error {
	def, ok := core.Get(opts.feed)
	if !ok {
		return fmt.Errorf("unknown feed %q (see 'ingest feeds')", opts.feed)
	}

	from, err := parseDay(opts.from)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parseDay(opts.to)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	runID := uuid.New()
	var db store.DB
	var sink *store.Sink
	if opts.persist {
		if !cfg.Database.Enabled() {
			return errors.New("--store requires DATABASE_URL")
		}
		pool, err := store.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		db = pool
		sink = store.NewSink(pool, runID, def.Info.Key)
	}

	sources := make([]pipeline.Source, len(args))
	for i, arg := range args {
		if arg == "-" {
			sources[i] = pipeline.Source{
				Name: "stdin",
				Open: func() (io.ReadCloser, error) { return io.NopCloser(stdin), nil },
			}
			continue
		}
		sources[i] = pipeline.FileSource(arg)
	}

	logger := slog.Default().With("run_id", runID)
	started := time.Now()

	results, runErr := pipeline.RunAll(ctx, def, sources, pipeline.RunConfig{
		MaxConcurrent: opts.concurrency,
		FailFast:      opts.failFast,
		Options: pipeline.Options{
			ContextCheckInterval: cfg.Ingest.ContextCheckInterval,
			MaxLineBytes:         cfg.Ingest.MaxLineBytes,
			MaxFailedLines:       cfg.Ingest.MaxFailedLines,
			FlushEvery:           cfg.Ingest.FlushEvery,
			Logger:               logger,
		},
		Setup: func(p *core.LineParser) {
			if len(opts.symbols) > 0 {
				p.AddFilter(pipeline.SymbolFilter(opts.symbols))
			}
			if !from.IsZero() || !to.IsZero() {
				p.AddFilter(pipeline.WindowFilter(from, to))
			}
			if sink != nil {
				p.AddListener(sink)
			}
		},
	})

	if db != nil {
		// Failed sources skip their final flush.
		if sink.Pending() > 0 {
			if err := sink.Flush(context.WithoutCancel(ctx)); err != nil {
				logger.Error("failed to flush pending observations", "pending", sink.Pending(), "error", err)
			}
		}
		run := store.Run{
			ID:         runID,
			Feed:       def.Info.Key,
			Source:     strings.Join(args, ","),
			Err:        runErr,
			StartedAt:  started,
			FinishedAt: time.Now(),
		}
		for _, r := range results {
			run.Lines += r.Summary.Lines
			run.Accepted += r.Summary.Accepted
			run.Invalid += r.Summary.Invalid
			run.Rejected += r.Summary.Rejected
		}
		run.Stored = sink.Written()
		if err := store.InsertRun(context.WithoutCancel(ctx), db, run); err != nil {
			logger.Error("failed to record run", "error", err)
		} else {
			logger.Info("run stored", "observations", sink.Written())
		}
	}

	if err := writeResults(out, opts.format, results); err != nil {
		return err
	}
	return runErr
}

func writeResults(out io.Writer, format string, results []pipeline.Result) error {
	if format == "json" {
		type jsonResult struct {
			pipeline.Result
			Error string `json:"error,omitempty"`
		}
		rows := make([]jsonResult, len(results))
		for i, r := range results {
			rows[i] = jsonResult{Result: r}
			if r.Err != nil {
				rows[i].Error = r.Err.Error()
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tLINES\tACCEPTED\tINVALID\tREJECTED\tDURATION\tERROR")
	for _, r := range results {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		s := r.Summary
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.Source, s.Lines, s.Accepted, s.Invalid, s.Rejected, s.Duration.Round(time.Millisecond), errText)
	}
	return tw.Flush()
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(time.DateOnly, s, time.UTC)
}
