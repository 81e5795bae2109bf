// Package feeds registers the built-in feed layouts with the core registry.
// Import this package to ensure all feeds are registered.
package feeds

import "github.com/JonMunkholm/tickfeed/internal/core"

// column is one slot of a feed layout. A nil decoder marks an ignored column.
type column struct {
	name  string
	field core.Field
	dec   core.Decoder
}

func columnNames(cols []column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

// buildTable is the Build func shared by every layout in this package.
// The columns func is called per table so each parser gets fresh decoders.
func buildTable(columns func() []column, symbolIndex int, dateIndexes ...int) func() (*core.RuleTable, error) {
	return func() (*core.RuleTable, error) {
		cols := columns()
		decoders := make([]core.Decoder, len(cols))
		fields := make([]core.Field, len(cols))
		for i, c := range cols {
			decoders[i] = c.dec
			fields[i] = c.field
		}
		return core.NewRuleTable(decoders, fields, symbolIndex, dateIndexes)
	}
}
