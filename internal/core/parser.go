package core

import (
	"strings"
	"time"
)

// LineParser decodes lines against one RuleTable and remembers the most
// recently decoded line.
//
// A LineParser is not safe for concurrent use: the memo and the scratch
// record are read and written without synchronisation. Use one parser per
// stream, or guard all calls with a mutex.
type LineParser struct {
	table *RuleTable
	work  *scratch
	memo  *Record // nil until the first line is decoded

	filters   []Filter
	listeners []Listener
}

// NewLineParser returns a parser for the given table.
func NewLineParser(table *RuleTable) *LineParser {
	return &LineParser{
		table: table,
		work:  newScratch(),
	}
}

// Table returns the parser's rule table.
func (p *LineParser) Table() *RuleTable { return p.table }

// Decode returns the record for line, decoding it only when line differs
// from the previously decoded text.
func (p *LineParser) Decode(line string) *Record {
	if p.memo != nil && p.memo.line == line {
		return p.memo
	}
	p.memo = p.decode(line)
	return p.memo
}

// IsValid reports whether line decodes to a record with a symbol, a
// timestamp, and no column failures.
func (p *LineParser) IsValid(line string) bool {
	return p.Decode(line).Valid()
}

// Symbol returns the symbol at slot for line. Only slot 0 is ever populated.
func (p *LineParser) Symbol(line string, slot int) (string, bool) {
	return p.Decode(line).Symbol(slot)
}

// Timestamp returns the accumulated timestamp for line.
func (p *LineParser) Timestamp(line string) (time.Time, bool) {
	return p.Decode(line).Timestamp()
}

func (p *LineParser) decode(line string) *Record {
	w := p.work
	w.reset()

	parts := splitLine(line)
	n := min(len(parts), p.table.Len())

	for i := 0; i < n; i++ {
		dec := p.table.decoders[i]
		if dec == nil {
			continue
		}

		v, err := dec.Decode(parts[i])
		if err != nil {
			w.fail(i)
			continue
		}

		switch v.Kind() {
		case KindSymbol:
			if i != p.table.symbolIndex {
				continue
			}
			if len(v.tokens) == 0 {
				w.fail(i)
				continue
			}
			w.setSymbol(v.tokens[0])
		case KindNumber:
			w.fields[p.table.fields[i]] = v.number
		case KindInstant:
			if p.table.IsDateIndex(i) {
				w.addInstant(v.instant)
			}
		case KindInvalid:
			w.fail(i)
		default:
			w.fail(i)
		}
	}

	return w.freeze(line)
}

// AddFilter registers a filter for an external orchestrator. Duplicates are
// kept; nil is ignored. The parser never calls it.
func (p *LineParser) AddFilter(f Filter) {
	if f == nil {
		return
	}
	p.filters = append(p.filters, f)
}

// AddListener registers a listener for an external orchestrator. Duplicates
// are kept; nil is ignored. The parser never calls it.
func (p *LineParser) AddListener(l Listener) {
	if l == nil {
		return
	}
	p.listeners = append(p.listeners, l)
}

// Filters returns the registered filters in registration order.
func (p *LineParser) Filters() []Filter {
	out := make([]Filter, len(p.filters))
	copy(out, p.filters)
	return out
}

// Listeners returns the registered listeners in registration order.
func (p *LineParser) Listeners() []Listener {
	out := make([]Listener, len(p.listeners))
	copy(out, p.listeners)
	return out
}

// splitLine splits line on Delimiter and drops trailing empty cells, so a
// trailing delimiter leaves the remaining slots unvisited like a short line.
// A line without any delimiter is returned whole, even when empty.
func splitLine(line string) []string {
	parts := strings.Split(line, Delimiter)
	if len(parts) == 1 {
		return parts
	}
	end := len(parts)
	for end > 0 && parts[end-1] == "" {
		end--
	}
	return parts[:end]
}
