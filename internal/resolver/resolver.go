// Package resolver maps user-facing tickers to the market-data provider's
// canonical asset identifiers.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// canonicalIDs pins well-known tickers to their expected asset id. The
// upstream list contains many low-relevance assets sharing a ticker with a
// major one, so the override wins before any list lookup.
var canonicalIDs = map[string]string{
	"btc":   "bitcoin",
	"eth":   "ethereum",
	"usdt":  "tether",
	"usdc":  "usd-coin",
	"bnb":   "binancecoin",
	"xrp":   "ripple",
	"ada":   "cardano",
	"doge":  "dogecoin",
	"sol":   "solana",
	"dot":   "polkadot",
	"shib":  "shiba-inu",
	"matic": "matic-network",
	"avax":  "avalanche-2",
	"link":  "chainlink",
	"ltc":   "litecoin",
	"uni":   "uniswap",
	"atom":  "cosmos",
	"xlm":   "stellar",
	"algo":  "algorand",
	"etc":   "ethereum-classic",
	"fil":   "filecoin",
	"vet":   "vechain",
	"icp":   "internet-computer",
	"xmr":   "monero",
	"xtz":   "tezos",
	"aave":  "aave",
	"egld":  "elrond-erd-2",
	"axs":   "axie-infinity",
	"theta": "theta-token",
	"cake":  "pancakeswap-token",
}

// ListEntry is one row of the provider's asset list.
type ListEntry struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Resolver resolves tickers against a lazily fetched, indefinitely cached
// asset list. Resolution never returns an error: a miss is reported as
// ok=false and callers fall back to a lowercase guess.
type Resolver struct {
	log     zerolog.Logger
	client  *http.Client
	baseURL string

	group singleflight.Group

	mu       sync.RWMutex
	bySymbol map[string][]ListEntry
	loaded   bool
}

// Option configures Resolver construction parameters.
type Option func(*Resolver)

// WithBaseURL overrides the provider base URL (tests point it at a local server).
func WithBaseURL(url string) Option {
	return func(r *Resolver) {
		if url != "" {
			r.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithHTTPClient overrides the HTTP client used for the list fetch.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// New constructs a Resolver.
func New(log zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		log:     log,
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps a ticker (any case) to its canonical asset id. ok is false
// when the list is unavailable or carries no match.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (string, bool) {
	sym := strings.ToLower(strings.TrimSpace(symbol))
	if sym == "" {
		return "", false
	}
	if id, ok := canonicalIDs[sym]; ok {
		return id, true
	}

	r.ensureLoaded(ctx)

	r.mu.RLock()
	candidates := r.bySymbol[sym]
	r.mu.RUnlock()
	if len(candidates) == 0 {
		return "", false
	}
	return pick(sym, candidates).ID, true
}

// ResolveOrGuess resolves the ticker, degrading to the lowercase ticker
// itself when no canonical id is known.
func (r *Resolver) ResolveOrGuess(ctx context.Context, symbol string) string {
	if id, ok := r.Resolve(ctx, symbol); ok {
		return id
	}
	return strings.ToLower(strings.TrimSpace(symbol))
}

// Invalidate drops the cached list; the next Resolve refetches it.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.loaded = false
	r.bySymbol = nil
	r.mu.Unlock()
}

// ensureLoaded fetches the asset list at most once; simultaneous first-time
// resolves share a single in-flight request. A failed fetch leaves the
// resolver unloaded so a later call can retry.
func (r *Resolver) ensureLoaded(ctx context.Context) {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return
	}

	_, _, _ = r.group.Do("list", func() (interface{}, error) {
		r.mu.RLock()
		loaded := r.loaded
		r.mu.RUnlock()
		if loaded {
			return nil, nil
		}

		entries, err := r.fetchList(ctx)
		if err != nil {
			r.log.Warn().Err(err).Msg("coin list fetch failed")
			return nil, nil
		}

		index := make(map[string][]ListEntry, len(entries))
		for _, e := range entries {
			key := strings.ToLower(e.Symbol)
			index[key] = append(index[key], e)
		}

		r.mu.Lock()
		r.bySymbol = index
		r.loaded = true
		r.mu.Unlock()
		r.log.Info().Int("assets", len(entries)).Msg("coin list loaded")
		return nil, nil
	})
}

func (r *Resolver) fetchList(ctx context.Context) ([]ListEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/coins/list", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var entries []ListEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return entries, nil
}

// pick disambiguates tickers shared by several assets. Each heuristic
// narrows the candidate set only when it matches something, so a miss falls
// through to the next rule rather than discarding everything.
func pick(sym string, candidates []ListEntry) ListEntry {
	if len(candidates) == 1 {
		return candidates[0]
	}

	if named := keep(candidates, func(e ListEntry) bool {
		name := strings.ToLower(e.Name)
		return name == sym || strings.Contains(name, sym)
	}); len(named) > 0 {
		candidates = named
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	shortest := len(candidates[0].ID)
	for _, e := range candidates[1:] {
		if len(e.ID) < shortest {
			shortest = len(e.ID)
		}
	}
	candidates = keep(candidates, func(e ListEntry) bool { return len(e.ID) == shortest })
	if len(candidates) == 1 {
		return candidates[0]
	}

	if prefixed := keep(candidates, func(e ListEntry) bool {
		return strings.HasPrefix(strings.ToLower(e.ID), sym)
	}); len(prefixed) > 0 {
		candidates = prefixed
	}
	return candidates[0]
}

func keep(entries []ListEntry, match func(ListEntry) bool) []ListEntry {
	var out []ListEntry
	for _, e := range entries {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}
