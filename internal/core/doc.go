// Package core provides the line decoding engine for record-oriented feeds.
//
// This package is the heart of tickfeed. It turns one comma-delimited line
// into a typed [Record]: an identifying symbol, a reconciled timestamp, and a
// mapping of named fields to numeric values. It has no I/O and no transport
// dependencies; the pipeline, web, and CLI layers all drive it the same way.
//
// # Rule Tables
//
// A [RuleTable] is an ordered list of per-column rules. Each slot is either
// ignored (nil decoder, empty field) or active (decoder plus field tag). One
// column is the symbol column, zero or more columns are date columns:
//
//	table, err := core.NewRuleTable(
//	    []core.Decoder{core.SymbolRule(), core.DateRule("yyyyMMdd"), core.NumberRule()},
//	    []core.Field{"SYMBOL", "DATE", "PRICE"},
//	    0, []int{1},
//	)
//
// Feed layouts are registered by key using [Register] so callers can build a
// fresh engine per stream with [FeedDefinition.NewParser].
//
// # Decoding
//
// Decoders return a tagged [Value] of kind Symbol, Number, or Instant. The
// engine routes each kind by column role:
//
//   - Symbol values set the record symbol when they come from the symbol column.
//   - Number values are stored under the column's field tag (last write wins).
//   - Instant values on date columns initialise the timestamp, or are added to
//     it in milliseconds when a timestamp already exists. Pair a date column
//     with a [TimeRule] column to build one timestamp from two cells.
//
// A failing column never discards the columns that decoded; it only clears the
// record's success flag. Lines shorter or longer than the table are tolerated.
//
// # Memoization
//
// [LineParser] remembers the last line it decoded. Asking about the same text
// again (Decode, IsValid, Symbol, Timestamp) reuses the frozen [Record]
// without running any decoder. Records are immutable snapshots, so a record
// obtained earlier never changes when the next line is decoded.
//
// A LineParser is not safe for concurrent use. Use one per stream or
// goroutine, or serialise access externally.
//
// # Collaborators
//
// Filters and listeners can be registered on a parser for an external
// orchestrator (see package pipeline). The parser stores them and never
// invokes them.
package core
