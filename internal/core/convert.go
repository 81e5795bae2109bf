package core

// convert.go provides the built-in column decoders.
//
// These handle the messy reality of vendor feed files:
//   - Multiple date formats (compact, ISO, US, EU, two-digit years)
//   - Currency symbols and thousand separators in numbers
//   - Accounting negatives written as (123.45)
//   - Excel formula prefixes (="value") and stray quotes
//
// Numeric cells go through pgtype.Numeric so the accepted syntax matches what
// the observation store will later write to PostgreSQL.

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted by
// LenientDateRule. Years more than this many years in the future are
// assumed to be in the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02", "20060102",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
	}
)

// CleanCell removes common feed artifacts from a cell value:
// surrounding whitespace, an Excel formula prefix (="..."), and quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// ParseNumber converts a cell to a float64.
// Handles currency symbols, thousands separators, and accounting negatives.
func ParseNumber(s string) (float64, error) {
	s = CleanCell(s)
	if s == "" {
		return 0, ErrEmptyCell
	}
	raw := s

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
			return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
		}
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}

	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidNumber, raw, err)
	}
	f, err := n.Float64Value()
	if err != nil || !f.Valid {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
	return f.Float64, nil
}

// SymbolRule decodes a cell into a single symbol token.
func SymbolRule() Decoder {
	return DecoderFunc(func(text string) (Value, error) {
		s := CleanCell(text)
		if s == "" {
			return Value{}, ErrEmptyCell
		}
		return SymbolValue(s), nil
	})
}

// SplitSymbolRule decodes a cell such as "VOD.L" into ordered tokens split
// on sep. The first token must be non-empty.
func SplitSymbolRule(sep string) Decoder {
	return DecoderFunc(func(text string) (Value, error) {
		s := CleanCell(text)
		if s == "" {
			return Value{}, ErrEmptyCell
		}
		parts := strings.Split(s, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] == "" {
			return Value{}, fmt.Errorf("symbol %q has an empty leading token", s)
		}
		return SymbolValue(parts...), nil
	})
}

// NumberRule decodes a cell with ParseNumber.
func NumberRule() Decoder {
	return DecoderFunc(func(text string) (Value, error) {
		f, err := ParseNumber(text)
		if err != nil {
			return Value{}, err
		}
		return NumberValue(f), nil
	})
}

// NewDateRule returns a decoder for absolute instants written in pattern,
// interpreted in loc (UTC when nil).
func NewDateRule(pattern string, loc *time.Location) (Decoder, error) {
	layout, err := TranslatePattern(pattern)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return DecoderFunc(func(text string) (Value, error) {
		s := strings.TrimSpace(text)
		if s == "" {
			return Value{}, ErrEmptyCell
		}
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q does not match %q", ErrInvalidDate, s, pattern)
		}
		return InstantValue(t), nil
	}), nil
}

// DateRule is like NewDateRule in UTC but panics on a bad pattern.
func DateRule(pattern string) Decoder {
	return DateRuleIn(pattern, time.UTC)
}

// DateRuleIn is like NewDateRule but panics on a bad pattern.
func DateRuleIn(pattern string, loc *time.Location) Decoder {
	d, err := NewDateRule(pattern, loc)
	if err != nil {
		panic(err)
	}
	return d
}

// NewTimeRule returns a decoder for a time of day written in pattern. The
// result is an offset from the epoch (milliseconds since midnight), meant to
// be summed onto a date column.
func NewTimeRule(pattern string) (Decoder, error) {
	layout, err := TranslatePattern(pattern)
	if err != nil {
		return nil, err
	}
	return DecoderFunc(func(text string) (Value, error) {
		s := strings.TrimSpace(text)
		if s == "" {
			return Value{}, ErrEmptyCell
		}
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q does not match %q", ErrInvalidDate, s, pattern)
		}
		midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		return InstantValue(time.UnixMilli(t.Sub(midnight).Milliseconds()).UTC()), nil
	}), nil
}

// TimeRule is like NewTimeRule but panics on a bad pattern.
func TimeRule(pattern string) Decoder {
	d, err := NewTimeRule(pattern)
	if err != nil {
		panic(err)
	}
	return d
}

// LenientDateRule accepts any of the common date layouts (ISO, compact, US,
// EU, written month) and resolves 2-digit years with TwoDigitYearPivot.
func LenientDateRule() Decoder {
	return DecoderFunc(func(text string) (Value, error) {
		s := CleanCell(text)
		if s == "" {
			return Value{}, ErrEmptyCell
		}
		t, ok := parseLenientDate(s, time.Now())
		if !ok {
			return Value{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		return InstantValue(t), nil
	})
}

func parseLenientDate(s string, now time.Time) (time.Time, bool) {
	// 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := now.Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}
	return time.Time{}, false
}
