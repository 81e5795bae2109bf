// Package pipeline drives line parsers over streams and runs the accept and
// notification steps the core engine leaves to its callers.
//
// For every valid record a Processor evaluates the parser's registered
// filters in order. The first filter that returns false rejects the record.
// Accepted records are fanned out to every registered listener, one call per
// decoded field, in sorted field order.
//
// A Processor owns exactly one core.LineParser and inherits its threading
// rules: one Processor per stream. Use RunAll to process several streams
// concurrently, each with its own parser.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/tickfeed/internal/core"
	"github.com/JonMunkholm/tickfeed/internal/metrics"
)

// ErrLineTooLong is returned by Run when a line exceeds Options.MaxLineBytes.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// Default option values.
const (
	DefaultContextCheckInterval = 100
	DefaultMaxLineBytes         = 64 * 1024
	DefaultMaxFailedLines       = 100
)

// Outcome classifies what happened to one line.
type Outcome string

const (
	OutcomeBlank    Outcome = "blank"
	OutcomeHeader   Outcome = "header"
	OutcomeInvalid  Outcome = "invalid"
	OutcomeRejected Outcome = "rejected"
	OutcomeAccepted Outcome = "accepted"
)

// Flusher is implemented by listeners that buffer notifications.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Options configures a Processor. Zero values select the defaults.
type Options struct {
	Feed        string // label for logs and metrics
	HeaderLines int

	// ContextCheckInterval is how often (in lines) Run checks for
	// cancellation.
	ContextCheckInterval int
	MaxLineBytes         int
	MaxFailedLines       int

	// FlushEvery flushes Flusher listeners after this many accepted lines.
	// Zero flushes only at the end of a run.
	FlushEvery int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.ContextCheckInterval <= 0 {
		o.ContextCheckInterval = DefaultContextCheckInterval
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = DefaultMaxLineBytes
	}
	if o.MaxFailedLines < 0 {
		o.MaxFailedLines = 0
	} else if o.MaxFailedLines == 0 {
		o.MaxFailedLines = DefaultMaxFailedLines
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// FailedLine describes a line that did not produce an accepted record.
type FailedLine struct {
	LineNumber int     `json:"line"`
	Outcome    Outcome `json:"outcome"`
	Reason     string  `json:"reason"`
	Text       string  `json:"text"`
}

// Summary is the result of one Run.
type Summary struct {
	Feed          string        `json:"feed"`
	Lines         int           `json:"lines"`
	Header        int           `json:"header"`
	Blank         int           `json:"blank"`
	Invalid       int           `json:"invalid"`
	Rejected      int           `json:"rejected"`
	Accepted      int           `json:"accepted"`
	Notifications int           `json:"notifications"`
	FailedLines   []FailedLine  `json:"failedLines,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Processor applies one parser and its collaborators to a stream of lines.
type Processor struct {
	parser *core.LineParser
	opts   Options
}

// NewProcessor returns a processor around parser.
func NewProcessor(parser *core.LineParser, opts Options) *Processor {
	return &Processor{parser: parser, opts: opts.withDefaults()}
}

// Parser returns the underlying parser, for registering collaborators.
func (p *Processor) Parser() *core.LineParser { return p.parser }

// Process decodes one line and, if it is valid and passes every filter,
// notifies the listeners. The record is nil for blank lines.
func (p *Processor) Process(line string) (Outcome, *core.Record) {
	outcome, rec, _ := p.process(line)
	return outcome, rec
}

func (p *Processor) process(line string) (Outcome, *core.Record, int) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return OutcomeBlank, nil, 0
	}

	rec := p.parser.Decode(line)
	if !rec.Valid() {
		return OutcomeInvalid, rec, 0
	}

	ts, _ := rec.Timestamp()
	symbol, _ := rec.Symbol(0)
	fields := rec.Fields()

	for _, accept := range p.parser.Filters() {
		if !accept(ts, symbol, fields) {
			return OutcomeRejected, rec, 0
		}
	}

	listeners := p.parser.Listeners()
	sent := 0
	for _, name := range rec.FieldNames() {
		for _, l := range listeners {
			l.Notify(name, ts, symbol, fields[name])
			sent++
		}
	}
	return OutcomeAccepted, rec, sent
}

// Run processes every line of r. It returns the summary so far together with
// any error: cancellation, an over-long line, a read failure, or a listener
// flush failure.
func (p *Processor) Run(ctx context.Context, r io.Reader) (summary Summary, err error) {
	start := time.Now()
	logger := p.opts.Logger.With("feed", p.opts.Feed)
	summary.Feed = p.opts.Feed

	logger.Debug("run started")
	defer func() {
		summary.Duration = time.Since(start)
		p.opts.Metrics.ObserveRun(p.opts.Feed, summary.Duration, err)
		logger.Info("run finished",
			"lines", summary.Lines,
			"accepted", summary.Accepted,
			"invalid", summary.Invalid,
			"rejected", summary.Rejected,
			"duration_ms", summary.Duration.Milliseconds(),
			"error", err,
		)
	}()

	sc := NewLineScanner(r, p.opts.MaxLineBytes)
	for i := 0; sc.Scan(); i++ {
		lineNum := i + 1

		// Check context periodically to allow cancellation
		if i%p.opts.ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return summary, fmt.Errorf("run cancelled at line %d: %w", lineNum, err)
			}
		}

		summary.Lines++
		text := sc.Text()

		if lineNum <= p.opts.HeaderLines {
			summary.Header++
			p.opts.Metrics.ObserveLine(p.opts.Feed, string(OutcomeHeader))
			continue
		}

		outcome, rec, sent := p.process(text)
		p.opts.Metrics.ObserveLine(p.opts.Feed, string(outcome))

		switch outcome {
		case OutcomeBlank:
			summary.Blank++
		case OutcomeInvalid:
			summary.Invalid++
			p.recordFailure(&summary, logger, lineNum, outcome, failureReason(p.parser.Table(), rec), text)
		case OutcomeRejected:
			summary.Rejected++
			p.recordFailure(&summary, logger, lineNum, outcome, "rejected by filter", text)
		case OutcomeAccepted:
			summary.Accepted++
			summary.Notifications += sent
			p.opts.Metrics.ObserveNotifications(p.opts.Feed, sent)
			if p.opts.FlushEvery > 0 && summary.Accepted%p.opts.FlushEvery == 0 {
				if err := p.flush(ctx); err != nil {
					return summary, fmt.Errorf("flush at line %d: %w", lineNum, err)
				}
			}
		}
	}

	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return summary, fmt.Errorf("line %d: %w (max %d bytes)", summary.Lines+1, ErrLineTooLong, p.opts.MaxLineBytes)
		}
		return summary, fmt.Errorf("reading line %d: %w", summary.Lines+1, err)
	}

	if err := p.flush(ctx); err != nil {
		return summary, fmt.Errorf("final flush: %w", err)
	}
	return summary, nil
}

func (p *Processor) recordFailure(s *Summary, logger *slog.Logger, lineNum int, outcome Outcome, reason, text string) {
	logger.Debug("line not accepted", "line", lineNum, "outcome", outcome, "reason", reason)
	if len(s.FailedLines) >= p.opts.MaxFailedLines {
		return
	}
	s.FailedLines = append(s.FailedLines, FailedLine{
		LineNumber: lineNum,
		Outcome:    outcome,
		Reason:     reason,
		Text:       text,
	})
}

func (p *Processor) flush(ctx context.Context) error {
	for _, l := range p.parser.Listeners() {
		f, ok := l.(Flusher)
		if !ok {
			continue
		}
		err := f.Flush(ctx)
		p.opts.Metrics.ObserveFlush(p.opts.Feed, err)
		if err != nil {
			return err
		}
	}
	return nil
}

// failureReason explains why rec is not valid.
func failureReason(table *core.RuleTable, rec *core.Record) string {
	var reasons []string
	for _, col := range rec.FailedColumns() {
		reasons = append(reasons, fmt.Sprintf("column %d (%s) failed to decode", col, table.Field(col)))
	}
	if _, ok := rec.Symbol(0); !ok {
		reasons = append(reasons, "missing symbol")
	}
	if _, ok := rec.Timestamp(); !ok {
		reasons = append(reasons, "missing timestamp")
	}
	if len(reasons) == 0 {
		return "invalid record"
	}
	return strings.Join(reasons, "; ")
}
