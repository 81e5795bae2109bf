package core

import (
	"fmt"
	"time"
)

// Delimiter separates columns within a line. There is no quoting or escaping.
const Delimiter = ","

// Field is the tag a numeric column is stored under in a Record.
type Field string

// Kind identifies which variant a decoded Value holds.
type Kind uint8

const (
	KindInvalid Kind = iota // zero Value; treated as a decode failure
	KindSymbol
	KindNumber
	KindInstant
)

func (k Kind) String() string {
	switch k {
	case KindSymbol:
		return "symbol"
	case KindNumber:
		return "number"
	case KindInstant:
		return "instant"
	default:
		return "invalid"
	}
}

// Value is the result of decoding one cell. Exactly one of its payloads is
// meaningful, selected by Kind.
type Value struct {
	kind    Kind
	tokens  []string
	number  float64
	instant time.Time
}

// SymbolValue returns a symbol value made of ordered tokens.
// The engine only uses the first token.
func SymbolValue(tokens ...string) Value {
	cp := make([]string, len(tokens))
	copy(cp, tokens)
	return Value{kind: KindSymbol, tokens: cp}
}

// NumberValue returns a numeric value.
func NumberValue(f float64) Value {
	return Value{kind: KindNumber, number: f}
}

// InstantValue returns a point in time, truncated to millisecond resolution.
func InstantValue(t time.Time) Value {
	return Value{kind: KindInstant, instant: t.Truncate(time.Millisecond)}
}

// Kind reports which payload the value holds.
func (v Value) Kind() Kind { return v.kind }

// Tokens returns the symbol tokens (nil unless Kind is KindSymbol).
func (v Value) Tokens() []string { return v.tokens }

// Number returns the numeric payload (0 unless Kind is KindNumber).
func (v Value) Number() float64 { return v.number }

// Instant returns the temporal payload (zero unless Kind is KindInstant).
func (v Value) Instant() time.Time { return v.instant }

func (v Value) String() string {
	switch v.kind {
	case KindSymbol:
		return fmt.Sprintf("symbol%v", v.tokens)
	case KindNumber:
		return fmt.Sprintf("number(%g)", v.number)
	case KindInstant:
		return fmt.Sprintf("instant(%s)", v.instant.Format(time.RFC3339Nano))
	default:
		return "invalid"
	}
}

// Decoder converts the text of one column into a Value, or rejects it.
type Decoder interface {
	Decode(text string) (Value, error)
}

// DecoderFunc adapts an ordinary function to the Decoder interface.
type DecoderFunc func(text string) (Value, error)

// Decode calls f(text).
func (f DecoderFunc) Decode(text string) (Value, error) { return f(text) }

// Filter is a predicate an orchestrator can use to veto an accepted record.
type Filter func(ts time.Time, symbol string, fields map[Field]float64) bool

// Listener receives one notification per field of an accepted record.
type Listener interface {
	Notify(field Field, ts time.Time, symbol string, value float64)
}

// ListenerFunc adapts an ordinary function to the Listener interface.
type ListenerFunc func(field Field, ts time.Time, symbol string, value float64)

// Notify calls f(field, ts, symbol, value).
func (f ListenerFunc) Notify(field Field, ts time.Time, symbol string, value float64) {
	f(field, ts, symbol, value)
}
