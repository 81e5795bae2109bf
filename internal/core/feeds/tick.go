package feeds

import "github.com/JonMunkholm/tickfeed/internal/core"

func init() {
	registerIntradayTrades()
}

// intradayTradeColumns: SYMBOL,YYYYMMDD,HH:mm:ss.SSS,PRICE,SIZE,EXCHANGE
//
// The date and time columns are both date columns; the time rule decodes to
// an offset from midnight which the engine adds onto the date.
func intradayTradeColumns() []column {
	return []column{
		{name: "Symbol", field: "SYMBOL", dec: core.SymbolRule()},
		{name: "Date", field: "DATE", dec: core.DateRule("yyyyMMdd")},
		{name: "Time", field: "TIME", dec: core.TimeRule("HH:mm:ss.SSS")},
		{name: "Price", field: FieldPrice, dec: core.NumberRule()},
		{name: "Size", field: FieldSize, dec: core.NumberRule()},
		{name: "Exchange"},
	}
}

func registerIntradayTrades() {
	core.Register(core.FeedDefinition{
		Info: core.FeedInfo{
			Key:     "intraday_trades",
			Group:   "TICK",
			Label:   "Intraday trades",
			Columns: columnNames(intradayTradeColumns()),
		},
		Build: buildTable(intradayTradeColumns, 0, 1, 2),
	})
}
