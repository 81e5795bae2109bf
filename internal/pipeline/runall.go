package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/tickfeed/internal/core"
)

// Source is one stream to ingest.
type Source struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FileSource returns a Source reading the file at path.
func FileSource(path string) Source {
	return Source{
		Name: path,
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// SetupFunc registers filters and listeners on a freshly built parser.
// It runs once per source, possibly from several goroutines at once, so
// anything it shares between parsers must be safe for concurrent use.
type SetupFunc func(p *core.LineParser)

// RunConfig controls RunAll.
type RunConfig struct {
	// MaxConcurrent caps parallel sources; zero or less means one at a time.
	MaxConcurrent int

	// FailFast cancels the remaining sources after the first failure.
	FailFast bool

	Options Options
	Setup   SetupFunc
}

// Result is the outcome of one source.
type Result struct {
	Source  string  `json:"source"`
	Summary Summary `json:"summary"`
	Err     error   `json:"-"`
}

// RunAll processes sources concurrently, each with its own parser built from
// def. Results are returned in source order; the error joins every source
// failure.
func RunAll(ctx context.Context, def core.FeedDefinition, sources []Source, cfg RunConfig) ([]Result, error) {
	opts := cfg.Options
	if opts.Feed == "" {
		opts.Feed = def.Info.Key
	}
	if opts.HeaderLines == 0 {
		opts.HeaderLines = def.HeaderLines
	}

	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}

	var g *errgroup.Group
	runCtx := ctx
	if cfg.FailFast {
		g, runCtx = errgroup.WithContext(ctx)
	} else {
		g = new(errgroup.Group)
	}
	g.SetLimit(limit)

	results := make([]Result, len(sources))
	for i, src := range sources {
		results[i].Source = src.Name
		g.Go(func() error {
			summary, err := runSource(runCtx, def, src, opts, cfg.Setup)
			results[i].Summary = summary
			if err != nil {
				results[i].Err = fmt.Errorf("%s: %w", src.Name, err)
				if cfg.FailFast {
					return results[i].Err
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

func runSource(ctx context.Context, def core.FeedDefinition, src Source, opts Options, setup SetupFunc) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{Feed: opts.Feed}, err
	}

	parser, err := def.NewParser()
	if err != nil {
		return Summary{Feed: opts.Feed}, err
	}
	if setup != nil {
		setup(parser)
	}

	rc, err := src.Open()
	if err != nil {
		return Summary{Feed: opts.Feed}, fmt.Errorf("open: %w", err)
	}
	defer rc.Close()

	opts.Logger = opts.withDefaults().Logger.With("source", src.Name)
	return NewProcessor(parser, opts).Run(ctx, rc)
}
