package feeds

import "github.com/JonMunkholm/tickfeed/internal/core"

func init() {
	registerRicQuotes()
}

// ricQuoteColumns: RIC,yyyy-MM-dd,BID,ASK,SOURCE with a header line.
// RICs such as "VOD.L" split into [VOD L]; the engine keeps the first token.
func ricQuoteColumns() []column {
	return []column{
		{name: "RIC", field: "SYMBOL", dec: core.SplitSymbolRule(".")},
		{name: "Date", field: "DATE", dec: core.DateRule("yyyy-MM-dd")},
		{name: "Bid", field: FieldBid, dec: core.NumberRule()},
		{name: "Ask", field: FieldAsk, dec: core.NumberRule()},
		{name: "Source"},
	}
}

func registerRicQuotes() {
	core.Register(core.FeedDefinition{
		Info: core.FeedInfo{
			Key:     "ric_quotes",
			Group:   "QUOTE",
			Label:   "End of day quotes by RIC",
			Columns: columnNames(ricQuoteColumns()),
		},
		HeaderLines: 1,
		Build:       buildTable(ricQuoteColumns, 0, 1),
	})
}
