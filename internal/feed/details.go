package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/yannvr/crypto-portfolio-tracker/internal/quote"
)

// coinDetails mirrors the slice of the provider's /coins/{id} payload the
// tracker surfaces. Only market_data fields we expose are decoded.
type coinDetails struct {
	Name        string `json:"name"`
	Description struct {
		En string `json:"en"`
	} `json:"description"`
	Categories []string `json:"categories"`
	Links      struct {
		Homepage []string `json:"homepage"`
	} `json:"links"`
	MarketData struct {
		MarketCap         map[string]float64 `json:"market_cap"`
		FullyDiluted      map[string]float64 `json:"fully_diluted_valuation"`
		TotalVolume       map[string]float64 `json:"total_volume"`
		CirculatingSupply float64            `json:"circulating_supply"`
		TotalSupply       float64            `json:"total_supply"`
		MaxSupply         *float64           `json:"max_supply"`
		Change24h         float64            `json:"price_change_percentage_24h"`
		Change7d          float64            `json:"price_change_percentage_7d"`
		Change30d         float64            `json:"price_change_percentage_30d"`
		Change1y          float64            `json:"price_change_percentage_1y"`
		ATH               map[string]float64 `json:"ath"`
		ATHDate           map[string]string  `json:"ath_date"`
		ATHChange         map[string]float64 `json:"ath_change_percentage"`
		ATL               map[string]float64 `json:"atl"`
		ATLDate           map[string]string  `json:"atl_date"`
		ATLChange         map[string]float64 `json:"atl_change_percentage"`
	} `json:"market_data"`
}

// Details fetches the richer per-asset payload backing the detail view. It
// shares the poller's provider but is a separate client because its cadence
// is caller-driven, not periodic.
type Details struct {
	log      zerolog.Logger
	client   *http.Client
	baseURL  string
	resolver SymbolResolver
}

// DetailsOption configures Details construction parameters.
type DetailsOption func(*Details)

// WithDetailsBaseURL overrides the provider endpoint.
func WithDetailsBaseURL(url string) DetailsOption {
	return func(d *Details) {
		if url != "" {
			d.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// NewDetails constructs a details client.
func NewDetails(log zerolog.Logger, resolver SymbolResolver, opts ...DetailsOption) *Details {
	d := &Details{
		log:      log,
		client:   newHTTPClient(),
		baseURL:  defaultPollBaseURL,
		resolver: resolver,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FetchStats returns the asset stats for one symbol.
func (d *Details) FetchStats(ctx context.Context, symbol string) (*quote.AssetStats, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	id := d.resolver.ResolveOrGuess(ctx, symbol)

	endpoint := fmt.Sprintf(
		"%s/coins/%s?localization=false&tickers=false&market_data=true&community_data=false&developer_data=false&sparkline=false",
		d.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload coinDetails
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	md := payload.MarketData
	stats := &quote.AssetStats{
		Symbol:            symbol,
		Name:              payload.Name,
		Description:       payload.Description.En,
		Categories:        payload.Categories,
		MarketCapUSD:      md.MarketCap["usd"],
		FullyDilutedUSD:   md.FullyDiluted["usd"],
		Volume24hUSD:      md.TotalVolume["usd"],
		CirculatingSupply: md.CirculatingSupply,
		TotalSupply:       md.TotalSupply,
		PriceChange24h:    md.Change24h,
		PriceChange7d:     md.Change7d,
		PriceChange30d:    md.Change30d,
		PriceChange1y:     md.Change1y,
		AllTimeHigh: quote.ExtremePoint{
			Price:       md.ATH["usd"],
			Date:        md.ATHDate["usd"],
			PercentFrom: md.ATHChange["usd"],
		},
		AllTimeLow: quote.ExtremePoint{
			Price:       md.ATL["usd"],
			Date:        md.ATLDate["usd"],
			PercentFrom: md.ATLChange["usd"],
		},
	}
	if md.MaxSupply != nil {
		stats.MaxSupply = quote.PriceOf(*md.MaxSupply)
	}
	if len(payload.Links.Homepage) > 0 {
		stats.Website = payload.Links.Homepage[0]
	}
	return stats, nil
}
