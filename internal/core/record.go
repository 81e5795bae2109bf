package core

import (
	"sort"
	"time"
)

// Record is the frozen result of decoding one line. It is never modified
// after the parser returns it and is safe to share between goroutines.
type Record struct {
	line      string
	symbols   []string // slot-indexed; only slot 0 is populated today
	timestamp time.Time
	hasTime   bool
	fields    map[Field]float64
	ok        bool
	failed    []int
}

// Line returns the raw text this record was decoded from.
func (r *Record) Line() string { return r.line }

// Symbol returns the symbol at the given slot.
func (r *Record) Symbol(slot int) (string, bool) {
	if slot < 0 || slot >= len(r.symbols) {
		return "", false
	}
	return r.symbols[slot], true
}

// Timestamp returns the accumulated timestamp, if any date column resolved.
func (r *Record) Timestamp() (time.Time, bool) {
	return r.timestamp, r.hasTime
}

// Value returns the numeric value stored under field.
func (r *Record) Value(field Field) (float64, bool) {
	v, ok := r.fields[field]
	return v, ok
}

// Fields returns a copy of the decoded numeric fields.
func (r *Record) Fields() map[Field]float64 {
	out := make(map[Field]float64, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// FieldNames returns the decoded field tags in sorted order.
func (r *Record) FieldNames() []Field {
	names := make([]Field, 0, len(r.fields))
	for k := range r.fields {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// OK reports whether every visited active column decoded cleanly.
func (r *Record) OK() bool { return r.ok }

// FailedColumns returns the indexes of active columns that failed to decode.
func (r *Record) FailedColumns() []int {
	out := make([]int, len(r.failed))
	copy(out, r.failed)
	return out
}

// Valid reports whether the record has a symbol, a timestamp, and decoded
// without column failures.
func (r *Record) Valid() bool {
	_, hasSymbol := r.Symbol(0)
	return hasSymbol && r.hasTime && r.ok
}

// scratch is the parser's working state, reset and refilled per line.
type scratch struct {
	symbols   []string
	timestamp time.Time
	hasTime   bool
	fields    map[Field]float64
	ok        bool
	failed    []int
}

func newScratch() *scratch {
	return &scratch{fields: make(map[Field]float64)}
}

func (s *scratch) reset() {
	s.symbols = s.symbols[:0]
	s.timestamp = time.Time{}
	s.hasTime = false
	clear(s.fields)
	s.ok = true
	s.failed = s.failed[:0]
}

func (s *scratch) fail(col int) {
	s.ok = false
	s.failed = append(s.failed, col)
}

func (s *scratch) setSymbol(sym string) {
	if len(s.symbols) == 0 {
		s.symbols = append(s.symbols, sym)
		return
	}
	s.symbols[0] = sym
}

// addInstant initialises the timestamp or sums millisecond values into it.
func (s *scratch) addInstant(t time.Time) {
	if !s.hasTime {
		s.timestamp = t
		s.hasTime = true
		return
	}
	sum := s.timestamp.UnixMilli() + t.UnixMilli()
	s.timestamp = time.UnixMilli(sum).In(s.timestamp.Location())
}

func (s *scratch) freeze(line string) *Record {
	rec := &Record{
		line:      line,
		timestamp: s.timestamp,
		hasTime:   s.hasTime,
		fields:    make(map[Field]float64, len(s.fields)),
		ok:        s.ok,
	}
	if len(s.symbols) > 0 {
		rec.symbols = append([]string(nil), s.symbols...)
	}
	if len(s.failed) > 0 {
		rec.failed = append([]int(nil), s.failed...)
	}
	for k, v := range s.fields {
		rec.fields[k] = v
	}
	return rec
}
