package quote

// AssetStats carries the richer per-asset details payload fetched from the
// market-data provider. Its PriceChange24h field is the market-wide 24 hour
// change and must not be confused with PriceState.Change, which is
// tick-over-tick.
type AssetStats struct {
	Symbol            string
	Name              string
	Description       string
	Website           string
	Categories        []string
	MarketCapUSD      float64
	FullyDilutedUSD   float64
	Volume24hUSD      float64
	CirculatingSupply float64
	TotalSupply       float64
	MaxSupply         Price
	PriceChange24h    float64
	PriceChange7d     float64
	PriceChange30d    float64
	PriceChange1y     float64
	AllTimeHigh       ExtremePoint
	AllTimeLow        ExtremePoint
}

// ExtremePoint records an all-time high or low.
type ExtremePoint struct {
	Price       float64
	Date        string
	PercentFrom float64
}
