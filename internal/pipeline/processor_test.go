package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/tickfeed/internal/core"
)

// barTable is SYMBOL,yyyyMMdd,OPEN,CLOSE.
func barTable() *core.RuleTable {
	return core.MustRuleTable(
		[]core.Decoder{core.SymbolRule(), core.DateRule("yyyyMMdd"), core.NumberRule(), core.NumberRule()},
		[]core.Field{"SYMBOL", "DATE", "OPEN", "CLOSE"},
		0, []int{1},
	)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type notification struct {
	field  core.Field
	ts     time.Time
	symbol string
	value  float64
}

// recordingListener captures notifications and counts flushes.
type recordingListener struct {
	mu       sync.Mutex
	calls    []notification
	flushes  int
	flushErr error
}

func (l *recordingListener) Notify(field core.Field, ts time.Time, symbol string, value float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, notification{field, ts, symbol, value})
}

func (l *recordingListener) Flush(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushes++
	return l.flushErr
}

func newTestProcessor(opts Options) (*Processor, *recordingListener) {
	opts.Logger = quietLogger()
	p := NewProcessor(core.NewLineParser(barTable()), opts)
	l := &recordingListener{}
	p.Parser().AddListener(l)
	return p, l
}

// ----------------------------------------------------------------------------
// Process
// ----------------------------------------------------------------------------

func TestProcess_AcceptedNotifiesSortedFields(t *testing.T) {
	p, l := newTestProcessor(Options{})

	outcome, rec := p.Process("AAPL,20240102,187.15,185.64")

	if outcome != OutcomeAccepted {
		t.Fatalf("outcome = %s, want %s", outcome, OutcomeAccepted)
	}
	if rec == nil || !rec.Valid() {
		t.Fatal("record missing or invalid")
	}
	if len(l.calls) != 2 {
		t.Fatalf("notifications = %d, want 2", len(l.calls))
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	first, second := l.calls[0], l.calls[1]
	if first.field != "CLOSE" || first.value != 185.64 || second.field != "OPEN" || second.value != 187.15 {
		t.Errorf("notifications = %+v, want CLOSE then OPEN", l.calls)
	}
	if first.symbol != "AAPL" || !first.ts.Equal(want) {
		t.Errorf("notification symbol/ts = %s/%v, want AAPL/%v", first.symbol, first.ts, want)
	}
}

func TestProcess_DuplicateListenersNotifiedTwice(t *testing.T) {
	p, l := newTestProcessor(Options{})
	p.Parser().AddListener(l)

	p.Process("AAPL,20240102,1,2")

	if len(l.calls) != 4 {
		t.Errorf("notifications = %d, want 4", len(l.calls))
	}
}

func TestProcess_FirstVetoStopsChain(t *testing.T) {
	p, l := newTestProcessor(Options{})
	laterCalls := 0
	p.Parser().AddFilter(func(_ time.Time, _ string, fields map[core.Field]float64) bool {
		return fields["CLOSE"] > 0
	})
	p.Parser().AddFilter(func(time.Time, string, map[core.Field]float64) bool {
		laterCalls++
		return true
	})

	outcome, _ := p.Process("AAPL,20240102,1,-2")

	if outcome != OutcomeRejected {
		t.Errorf("outcome = %s, want %s", outcome, OutcomeRejected)
	}
	if laterCalls != 0 {
		t.Errorf("second filter ran %d times, want 0", laterCalls)
	}
	if len(l.calls) != 0 {
		t.Errorf("rejected record notified %d times", len(l.calls))
	}

	if outcome, _ := p.Process("AAPL,20240102,1,2"); outcome != OutcomeAccepted {
		t.Errorf("outcome = %s, want %s", outcome, OutcomeAccepted)
	}
	if laterCalls != 1 {
		t.Errorf("second filter ran %d times, want 1", laterCalls)
	}
}

func TestProcess_InvalidAndBlank(t *testing.T) {
	p, l := newTestProcessor(Options{})

	if outcome, rec := p.Process("   \r"); outcome != OutcomeBlank || rec != nil {
		t.Errorf("blank line = %s, %v", outcome, rec)
	}
	if outcome, _ := p.Process("AAPL,bad,1,2"); outcome != OutcomeInvalid {
		t.Errorf("bad date outcome = %s, want %s", outcome, OutcomeInvalid)
	}
	if len(l.calls) != 0 {
		t.Errorf("invalid lines notified %d times", len(l.calls))
	}
}

// ----------------------------------------------------------------------------
// Run
// ----------------------------------------------------------------------------

func TestRun_Summary(t *testing.T) {
	p, l := newTestProcessor(Options{Feed: "bars", HeaderLines: 1})
	input := strings.Join([]string{
		"Symbol,Date,Open,Close",
		"AAPL,20240102,187.15,185.64",
		"",
		"MSFT,2024-01-02,370.1,370.6",
		"IBM,20240102,161.5,n/a",
		"GOOG,20240102,139.6,138.2",
	}, "\r\n")

	summary, err := p.Run(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Feed != "bars" {
		t.Errorf("Feed = %q, want bars", summary.Feed)
	}
	checks := []struct {
		name      string
		got, want int
	}{
		{"Lines", summary.Lines, 6},
		{"Header", summary.Header, 1},
		{"Blank", summary.Blank, 1},
		{"Invalid", summary.Invalid, 2},
		{"Accepted", summary.Accepted, 2},
		{"Notifications", summary.Notifications, 4},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if len(l.calls) != 4 {
		t.Errorf("listener calls = %d, want 4", len(l.calls))
	}
	if l.flushes != 1 {
		t.Errorf("flushes = %d, want 1", l.flushes)
	}

	if len(summary.FailedLines) != 2 {
		t.Fatalf("FailedLines = %+v, want 2 entries", summary.FailedLines)
	}
	dateFail := summary.FailedLines[0]
	if dateFail.LineNumber != 4 {
		t.Errorf("FailedLines[0].LineNumber = %d, want 4", dateFail.LineNumber)
	}
	if !strings.Contains(dateFail.Reason, "column 1 (DATE)") || !strings.Contains(dateFail.Reason, "missing timestamp") {
		t.Errorf("FailedLines[0].Reason = %q", dateFail.Reason)
	}
	if !strings.Contains(summary.FailedLines[1].Reason, "column 3 (CLOSE)") {
		t.Errorf("FailedLines[1].Reason = %q", summary.FailedLines[1].Reason)
	}
}

func TestRun_StripsBOM(t *testing.T) {
	p, _ := newTestProcessor(Options{})
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("AAPL,20240102,1,2\n")...)

	summary, err := p.Run(context.Background(), bytes.NewReader(input))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Accepted != 1 {
		t.Errorf("Accepted = %d, want 1 (failed %+v)", summary.Accepted, summary.FailedLines)
	}
}

func TestRun_LineTooLong(t *testing.T) {
	p, _ := newTestProcessor(Options{MaxLineBytes: 32})
	input := "AAPL,20240102,1,2\n" + strings.Repeat("x", 100) + "\n"

	summary, err := p.Run(context.Background(), strings.NewReader(input))
	if !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("Run() error = %v, want ErrLineTooLong", err)
	}
	if summary.Accepted != 1 {
		t.Errorf("Accepted = %d, want 1", summary.Accepted)
	}
}

func TestRun_Cancelled(t *testing.T) {
	p, _ := newTestProcessor(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, strings.NewReader("AAPL,20240102,1,2\n"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestRun_FlushEvery(t *testing.T) {
	p, l := newTestProcessor(Options{FlushEvery: 2})
	input := "A,20240102,1,2\nB,20240102,1,2\nC,20240102,1,2\n"

	if _, err := p.Run(context.Background(), strings.NewReader(input)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if l.flushes != 2 {
		t.Errorf("flushes = %d, want 2", l.flushes)
	}
}

func TestRun_FlushErrorStopsRun(t *testing.T) {
	p, l := newTestProcessor(Options{FlushEvery: 1})
	l.flushErr = errors.New("store down")
	input := "A,20240102,1,2\nB,20240102,1,2\n"

	summary, err := p.Run(context.Background(), strings.NewReader(input))
	if err == nil || !strings.Contains(err.Error(), "store down") {
		t.Fatalf("Run() error = %v, want flush failure", err)
	}
	if summary.Accepted != 1 {
		t.Errorf("Accepted = %d, want 1", summary.Accepted)
	}
}

func TestRun_MaxFailedLines(t *testing.T) {
	p, _ := newTestProcessor(Options{MaxFailedLines: 2})
	input := strings.Repeat("bad line\n", 5)

	summary, err := p.Run(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Invalid != 5 {
		t.Errorf("Invalid = %d, want 5", summary.Invalid)
	}
	if len(summary.FailedLines) != 2 {
		t.Errorf("len(FailedLines) = %d, want 2", len(summary.FailedLines))
	}
}

func TestFailureReason_MissingSymbol(t *testing.T) {
	table := barTable()
	rec := core.NewLineParser(table).Decode(",20240102,1,2")

	got := failureReason(table, rec)
	if !strings.Contains(got, "column 0 (SYMBOL)") || !strings.Contains(got, "missing symbol") {
		t.Errorf("failureReason() = %q", got)
	}
}
