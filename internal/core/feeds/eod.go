package feeds

import "github.com/JonMunkholm/tickfeed/internal/core"

// Numeric field tags shared by the built-in layouts.
const (
	FieldOpen   core.Field = "OPEN"
	FieldHigh   core.Field = "HIGH"
	FieldLow    core.Field = "LOW"
	FieldClose  core.Field = "CLOSE"
	FieldVolume core.Field = "VOLUME"
	FieldPrice  core.Field = "PRICE"
	FieldSize   core.Field = "SIZE"
	FieldBid    core.Field = "BID"
	FieldAsk    core.Field = "ASK"
)

func init() {
	registerDailyBars()
	registerVendorEOD()
}

// dailyBarColumns: SYMBOL,YYYYMMDD,OPEN,HIGH,LOW,CLOSE,VOLUME
func dailyBarColumns() []column {
	return []column{
		{name: "Symbol", field: "SYMBOL", dec: core.SymbolRule()},
		{name: "Date", field: "DATE", dec: core.DateRule("yyyyMMdd")},
		{name: "Open", field: FieldOpen, dec: core.NumberRule()},
		{name: "High", field: FieldHigh, dec: core.NumberRule()},
		{name: "Low", field: FieldLow, dec: core.NumberRule()},
		{name: "Close", field: FieldClose, dec: core.NumberRule()},
		{name: "Volume", field: FieldVolume, dec: core.NumberRule()},
	}
}

func registerDailyBars() {
	core.Register(core.FeedDefinition{
		Info: core.FeedInfo{
			Key:     "daily_bars",
			Group:   "EOD",
			Label:   "Daily OHLCV bars",
			Columns: columnNames(dailyBarColumns()),
		},
		Build: buildTable(dailyBarColumns, 0, 1),
	})
}

// vendorEODColumns: DATE,TICKER,CLOSE,VOLUME,CURRENCY with a header line.
// Vendor exports come from spreadsheets, so the date may be written as
// 01/02/2024, 1/2/24, 2024-01-02 or 2 Jan 2024.
func vendorEODColumns() []column {
	return []column{
		{name: "Date", field: "DATE", dec: core.LenientDateRule()},
		{name: "Ticker", field: "SYMBOL", dec: core.SymbolRule()},
		{name: "Close", field: FieldClose, dec: core.NumberRule()},
		{name: "Volume", field: FieldVolume, dec: core.NumberRule()},
		{name: "Currency"},
	}
}

func registerVendorEOD() {
	core.Register(core.FeedDefinition{
		Info: core.FeedInfo{
			Key:     "vendor_eod",
			Group:   "EOD",
			Label:   "Vendor end-of-day export (US dates)",
			Columns: columnNames(vendorEODColumns()),
		},
		HeaderLines: 1,
		Build:       buildTable(vendorEODColumns, 1, 0),
	})
}
