package core

import (
	"errors"
	"testing"
)

func TestNewRuleTable_Errors(t *testing.T) {
	num := NumberRule()

	tests := []struct {
		name        string
		decoders    []Decoder
		fields      []Field
		symbolIndex int
		dateIndexes []int
		wantErr     error
		wantColumn  int
	}{
		{
			name:        "length mismatch",
			decoders:    []Decoder{num, num},
			fields:      []Field{"A"},
			symbolIndex: 0,
			wantErr:     ErrLengthMismatch,
			wantColumn:  -1,
		},
		{
			name:        "decoder without field",
			decoders:    []Decoder{num, num},
			fields:      []Field{"A", ""},
			symbolIndex: 0,
			wantErr:     ErrRulePairing,
			wantColumn:  1,
		},
		{
			name:        "field without decoder",
			decoders:    []Decoder{nil, num},
			fields:      []Field{"A", "B"},
			symbolIndex: 1,
			wantErr:     ErrRulePairing,
			wantColumn:  0,
		},
		{
			name:        "zero DecoderFunc with field",
			decoders:    []Decoder{num, DecoderFunc(nil)},
			fields:      []Field{"A", "B"},
			symbolIndex: 0,
			wantErr:     ErrRulePairing,
			wantColumn:  1,
		},
		{
			name:        "symbol index too large",
			decoders:    []Decoder{num},
			fields:      []Field{"A"},
			symbolIndex: 1,
			wantErr:     ErrIndexOutOfRange,
			wantColumn:  -1,
		},
		{
			name:        "negative symbol index",
			decoders:    []Decoder{num},
			fields:      []Field{"A"},
			symbolIndex: -1,
			wantErr:     ErrIndexOutOfRange,
			wantColumn:  -1,
		},
		{
			name:        "date index too large",
			decoders:    []Decoder{num, num},
			fields:      []Field{"A", "B"},
			symbolIndex: 0,
			dateIndexes: []int{1, 2},
			wantErr:     ErrIndexOutOfRange,
			wantColumn:  -1,
		},
		{
			name:        "empty table",
			symbolIndex: 0,
			wantErr:     ErrIndexOutOfRange,
			wantColumn:  -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := NewRuleTable(tt.decoders, tt.fields, tt.symbolIndex, tt.dateIndexes)
			if err == nil {
				t.Fatalf("NewRuleTable() = %v, want error", table)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			var ce *ConstructionError
			if !errors.As(err, &ce) {
				t.Fatalf("error %T is not *ConstructionError", err)
			}
			if ce.Column != tt.wantColumn {
				t.Errorf("Column = %d, want %d", ce.Column, tt.wantColumn)
			}
		})
	}
}

func TestNewRuleTable_Valid(t *testing.T) {
	decoders := []Decoder{SymbolRule(), nil, DateRule("yyyyMMdd"), NumberRule()}
	fields := []Field{"SYMBOL", "", "DATE", "PRICE"}
	dates := []int{2, 2}

	table, err := NewRuleTable(decoders, fields, 0, dates)
	if err != nil {
		t.Fatalf("NewRuleTable() error = %v", err)
	}

	if table.Len() != 4 {
		t.Errorf("Len() = %d, want 4", table.Len())
	}
	if table.SymbolIndex() != 0 {
		t.Errorf("SymbolIndex() = %d, want 0", table.SymbolIndex())
	}
	if got := table.DateIndexes(); len(got) != 1 || got[0] != 2 {
		t.Errorf("DateIndexes() = %v, want [2]", got)
	}
	if !table.IsDateIndex(2) || table.IsDateIndex(3) {
		t.Error("IsDateIndex() wrong")
	}
	if table.Active(1) || !table.Active(3) || table.Active(9) {
		t.Error("Active() wrong")
	}
	if table.Field(3) != "PRICE" || table.Field(1) != "" || table.Field(-1) != "" {
		t.Error("Field() wrong")
	}

	// The table must not alias its inputs.
	fields[3] = "CHANGED"
	decoders[0] = nil
	dates[0] = 0
	if table.Field(3) != "PRICE" || !table.Active(0) || !table.IsDateIndex(2) {
		t.Error("table changed after mutating constructor inputs")
	}
}

func TestMustRuleTable_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustRuleTable() did not panic")
		}
	}()
	MustRuleTable([]Decoder{NumberRule()}, []Field{"A", "B"}, 0, nil)
}

func TestConstructionError_Message(t *testing.T) {
	err := &ConstructionError{Column: 2, Err: ErrRulePairing}
	if got, want := err.Error(), "rule table: column 2: decoder and field tag must be set together"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err = &ConstructionError{Column: -1, Err: ErrLengthMismatch, Detail: "1 decoders, 2 fields"}
	if got, want := err.Error(), "rule table: decoder and field lists differ in length (1 decoders, 2 fields)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewRuleTable_ZeroDecoderFuncIsIgnoredSlot(t *testing.T) {
	var unset DecoderFunc
	table, err := NewRuleTable(
		[]Decoder{SymbolRule(), unset, DateRule("yyyyMMdd")},
		[]Field{"SYMBOL", "", "DATE"},
		0, []int{2},
	)
	if err != nil {
		t.Fatalf("NewRuleTable() error = %v", err)
	}

	rec := NewLineParser(table).Decode("AAPL,anything,20240102")
	if !rec.Valid() {
		t.Errorf("Valid() = false, want true (failed columns %v)", rec.FailedColumns())
	}
}
