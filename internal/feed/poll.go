package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yannvr/crypto-portfolio-tracker/internal/metrics"
	"github.com/yannvr/crypto-portfolio-tracker/internal/quote"
)

// simplePrice is the batch snapshot response, keyed by asset id.
type simplePrice map[string]struct {
	USD float64 `json:"usd"`
}

// Poller fetches USD price snapshots for batches of symbols. It keeps no
// connection state; each fetch either yields observations or logs and moves
// on. A failed batch degrades to one request per symbol so a single bad
// symbol never blocks the rest.
type Poller struct {
	log      zerolog.Logger
	client   *http.Client
	baseURL  string
	resolver SymbolResolver
	emitter  emitter
	interval time.Duration
}

// PollOption configures Poller construction parameters.
type PollOption func(*Poller)

// WithPollBaseURL overrides the provider endpoint (tests point it at a local
// server).
func WithPollBaseURL(url string) PollOption {
	return func(p *Poller) {
		if url != "" {
			p.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithPollInterval overrides the periodic fetch cadence.
func WithPollInterval(d time.Duration) PollOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithPollHTTPClient overrides the HTTP client.
func WithPollHTTPClient(client *http.Client) PollOption {
	return func(p *Poller) {
		if client != nil {
			p.client = client
		}
	}
}

// NewPoller constructs a polling adapter emitting onto out.
func NewPoller(log zerolog.Logger, resolver SymbolResolver, out chan<- quote.Observation, opts ...PollOption) *Poller {
	p := &Poller{
		log:      log,
		client:   newHTTPClient(),
		baseURL:  defaultPollBaseURL,
		resolver: resolver,
		emitter:  emitter{out: out},
		interval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchOnce polls the given symbols once, preferring one batch request and
// falling back to per-symbol requests for anything the batch did not cover.
func (p *Poller) FetchOnce(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		return
	}

	ids := make(map[string]string, len(symbols)) // asset id -> symbol
	order := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		id := p.resolver.ResolveOrGuess(ctx, sym)
		if _, dup := ids[id]; !dup {
			order = append(order, id)
		}
		ids[id] = sym
	}
	if len(order) == 0 {
		return
	}

	prices, err := p.fetchBatch(ctx, order)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Warn().Err(err).Int("symbols", len(order)).Msg("batch price poll failed, retrying per symbol")
		prices = simplePrice{}
	}

	now := time.Now().UTC()
	for _, id := range order {
		sym := ids[id]
		entry, ok := prices[id]
		if !ok || entry.USD <= 0 {
			// Batch miss: isolate the failure to this one symbol.
			single, err := p.fetchBatch(ctx, []string{id})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				metrics.PollFailures.WithLabelValues(sym).Inc()
				p.log.Warn().Err(err).Str("symbol", sym).Str("asset_id", id).Msg("price poll failed")
				continue
			}
			entry, ok = single[id]
			if !ok || entry.USD <= 0 {
				metrics.PollFailures.WithLabelValues(sym).Inc()
				p.log.Warn().Str("symbol", sym).Str("asset_id", id).Msg("no usable price in poll response")
				continue
			}
		}

		obs := quote.Observation{
			Symbol:     sym,
			Value:      entry.USD,
			Source:     quote.SourcePoll,
			ObservedAt: now,
		}
		if !p.emitter.emit(ctx, obs) {
			return
		}
	}
}

// Run polls the watched set at the configured interval until the context is
// canceled. symbols is called each round so newly watched symbols join the
// next fetch.
func (p *Poller) Run(ctx context.Context, symbols func() []string) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.FetchOnce(ctx, symbols())
		}
	}
}

func (p *Poller) fetchBatch(ctx context.Context, ids []string) (simplePrice, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd",
		p.baseURL, url.QueryEscape(strings.Join(ids, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var prices simplePrice
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return prices, nil
}
