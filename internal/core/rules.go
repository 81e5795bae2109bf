package core

import (
	"fmt"
	"reflect"
	"sort"
)

// RuleTable is the immutable per-column decoding plan for one feed layout.
type RuleTable struct {
	decoders    []Decoder
	fields      []Field
	symbolIndex int
	dateIndexes []int // sorted, unique
}

// NewRuleTable validates and copies the given rules.
//
// decoders and fields must have equal length; a slot is active when it has
// both a decoder and a non-empty field, and ignored when it has neither.
// symbolIndex and every entry of dateIndexes must address a slot.
func NewRuleTable(decoders []Decoder, fields []Field, symbolIndex int, dateIndexes []int) (*RuleTable, error) {
	if len(decoders) != len(fields) {
		return nil, &ConstructionError{
			Column: -1,
			Err:    ErrLengthMismatch,
			Detail: fmt.Sprintf("%d decoders, %d fields", len(decoders), len(fields)),
		}
	}

	for i := range decoders {
		if isNilDecoder(decoders[i]) != (fields[i] == "") {
			return nil, &ConstructionError{Column: i, Err: ErrRulePairing}
		}
	}

	n := len(decoders)
	if symbolIndex < 0 || symbolIndex >= n {
		return nil, &ConstructionError{
			Column: -1,
			Err:    ErrIndexOutOfRange,
			Detail: fmt.Sprintf("symbol index %d, table length %d", symbolIndex, n),
		}
	}

	seen := make(map[int]bool, len(dateIndexes))
	dates := make([]int, 0, len(dateIndexes))
	for _, idx := range dateIndexes {
		if idx < 0 || idx >= n {
			return nil, &ConstructionError{
				Column: -1,
				Err:    ErrIndexOutOfRange,
				Detail: fmt.Sprintf("date index %d, table length %d", idx, n),
			}
		}
		if !seen[idx] {
			seen[idx] = true
			dates = append(dates, idx)
		}
	}
	sort.Ints(dates)

	t := &RuleTable{
		decoders:    make([]Decoder, n),
		fields:      make([]Field, n),
		symbolIndex: symbolIndex,
		dateIndexes: dates,
	}
	for i, d := range decoders {
		if !isNilDecoder(d) {
			t.decoders[i] = d
		}
	}
	copy(t.fields, fields)
	return t, nil
}

// MustRuleTable is like NewRuleTable but panics on a malformed table.
// Use it for layouts fixed at compile time, such as registered feeds.
func MustRuleTable(decoders []Decoder, fields []Field, symbolIndex int, dateIndexes []int) *RuleTable {
	t, err := NewRuleTable(decoders, fields, symbolIndex, dateIndexes)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of column slots.
func (t *RuleTable) Len() int { return len(t.decoders) }

// SymbolIndex returns the designated symbol column.
func (t *RuleTable) SymbolIndex() int { return t.symbolIndex }

// DateIndexes returns the designated date columns in ascending order.
func (t *RuleTable) DateIndexes() []int {
	out := make([]int, len(t.dateIndexes))
	copy(out, t.dateIndexes)
	return out
}

// IsDateIndex reports whether column i is a designated date column.
func (t *RuleTable) IsDateIndex(i int) bool {
	// Tables are narrow; a linear scan beats a map here.
	for _, d := range t.dateIndexes {
		if d == i {
			return true
		}
	}
	return false
}

// Active reports whether column i has a decoder.
func (t *RuleTable) Active(i int) bool {
	return i >= 0 && i < len(t.decoders) && t.decoders[i] != nil
}

// Field returns the tag for column i, or "" when the slot is ignored.
func (t *RuleTable) Field(i int) Field {
	if i < 0 || i >= len(t.fields) {
		return ""
	}
	return t.fields[i]
}

// Fields returns a copy of the per-column tags.
func (t *RuleTable) Fields() []Field {
	out := make([]Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// isNilDecoder reports whether d is nil or wraps a nil func, map, or
// pointer, such as a zero DecoderFunc.
func isNilDecoder(d Decoder) bool {
	if d == nil {
		return true
	}
	switch v := reflect.ValueOf(d); v.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Map, reflect.Interface, reflect.Slice, reflect.Chan:
		return v.IsNil()
	}
	return false
}
