// Package portfolio values a holdings list against the reconciled price
// view. It only reads; holdings storage and editing live outside the core.
package portfolio

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yannvr/crypto-portfolio-tracker/internal/quote"
)

// Holding is one position: an amount of an asset identified by ticker.
type Holding struct {
	Symbol string
	Amount decimal.Decimal
}

// Line is the valuation of a single holding. Value is zero and Priced false
// while no price has been observed for the symbol (the UI's N/A path).
type Line struct {
	Symbol string
	Amount decimal.Decimal
	Price  decimal.Decimal
	Value  decimal.Decimal
	Priced bool
}

// Valuation is a portfolio snapshot.
type Valuation struct {
	Lines []Line
	Total decimal.Decimal
}

// Reader is the read surface of the price store the valuer consumes.
type Reader interface {
	Get(symbol string) quote.PriceState
}

// Valuer computes portfolio valuations from current prices.
type Valuer struct {
	reader Reader
}

// NewValuer constructs a Valuer over the given price reader.
func NewValuer(reader Reader) *Valuer {
	return &Valuer{reader: reader}
}

// Value prices each holding and sums the total. Symbols never watched or not
// yet priced contribute zero and are reported unpriced rather than erroring,
// so an aggregate total can render before any stream is active.
func (v *Valuer) Value(holdings []Holding) Valuation {
	lines := make([]Line, 0, len(holdings))
	total := decimal.Zero

	for _, h := range holdings {
		sym := strings.ToUpper(strings.TrimSpace(h.Symbol))
		line := Line{Symbol: sym, Amount: h.Amount}
		if state := v.reader.Get(sym); state.Current.Valid {
			line.Price = decimal.NewFromFloat(state.Current.Value)
			line.Value = h.Amount.Mul(line.Price)
			line.Priced = true
			total = total.Add(line.Value)
		}
		lines = append(lines, line)
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].Symbol < lines[j].Symbol })
	return Valuation{Lines: lines, Total: total}
}
