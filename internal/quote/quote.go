// Package quote standardizes payloads shared between the data-source adapters
// and the reconciliation store.
package quote

import (
	"math"
	"time"
)

// Source tags where an observation came from.
type Source string

const (
	// SourceStream marks observations produced by the websocket ticker feed.
	SourceStream Source = "stream"
	// SourcePoll marks observations produced by the HTTP polling snapshot.
	SourcePoll Source = "poll"
)

// Status describes the streaming connection state for one symbol. The polling
// adapter has no persistent connection and never sets it.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Observation is one timestamped price reading from one source. Immutable
// once constructed.
type Observation struct {
	Symbol     string
	Value      float64
	Source     Source
	ObservedAt time.Time
}

// Valid reports whether the observation carries a usable price.
func (o Observation) Valid() bool {
	return o.Symbol != "" && o.Value > 0 && !math.IsInf(o.Value, 0) && !math.IsNaN(o.Value)
}

// Price is a nullable price value. The zero value means "no price yet".
type Price struct {
	Value float64
	Valid bool
}

// PriceOf wraps a known value.
func PriceOf(v float64) Price { return Price{Value: v, Valid: true} }

// Direction represents tick-over-tick price movement.
type Direction int

const (
	DirectionFlat Direction = 0
	DirectionUp   Direction = +1
	DirectionDown Direction = -1
)

// PriceState is the reconciled per-symbol view exposed to readers.
// Previous holds the value immediately prior to the most recent accepted
// observation, not a time-window price; Change is the tick-over-tick percent
// move derived from the two (distinct from the market 24h change carried by
// AssetStats).
type PriceState struct {
	Symbol   string
	Current  Price
	Previous Price
	Change   Price
	Last     *Observation
	Status   Status
}

// Direction derives the movement indicator from Current and Previous.
func (s PriceState) Direction() Direction {
	if !s.Current.Valid || !s.Previous.Valid {
		return DirectionFlat
	}
	switch {
	case s.Current.Value > s.Previous.Value:
		return DirectionUp
	case s.Current.Value < s.Previous.Value:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// EmptyState is the default view for a symbol nothing has reported on yet.
func EmptyState(symbol string) PriceState {
	return PriceState{Symbol: symbol, Status: StatusUnknown}
}
