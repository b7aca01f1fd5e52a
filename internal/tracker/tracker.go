// Package tracker assembles the price core and exposes the surface the UI
// layer consumes: Watch, Unwatch, Get, Subscribe, and asset stats.
package tracker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/yannvr/crypto-portfolio-tracker/internal/feed"
	"github.com/yannvr/crypto-portfolio-tracker/internal/quote"
	"github.com/yannvr/crypto-portfolio-tracker/internal/resolver"
	"github.com/yannvr/crypto-portfolio-tracker/internal/store"
	"github.com/yannvr/crypto-portfolio-tracker/internal/watch"
)

// Options are the external knobs; zero values fall back to live-provider
// defaults inside each component.
type Options struct {
	StreamBaseURL   string
	ProviderBaseURL string
	PollInterval    time.Duration
	Retry           watch.RetryConfig
}

// Tracker owns the store, resolver, adapters, and watch manager. Everything
// is constructed explicitly here and passed in; there is no package-level
// instance, so tests can run isolated trackers side by side.
type Tracker struct {
	log     zerolog.Logger
	store   *store.Store
	manager *watch.Manager
	poller  *feed.Poller
	details *feed.Details
	obs     chan quote.Observation
}

// New wires the core together.
func New(log zerolog.Logger, opts Options) *Tracker {
	obs := make(chan quote.Observation, 1024)
	st := store.New(log)
	res := resolver.New(log, resolver.WithBaseURL(opts.ProviderBaseURL))

	var mgr *watch.Manager
	stream := feed.NewStream(log, obs,
		feed.WithStreamBaseURL(opts.StreamBaseURL),
		feed.WithStatusFunc(func(symbol string, status quote.Status) {
			st.SetStatus(symbol, status)
			mgr.OnStatus(symbol, status)
		}),
	)

	var pollOpts []feed.PollOption
	if opts.ProviderBaseURL != "" {
		pollOpts = append(pollOpts, feed.WithPollBaseURL(opts.ProviderBaseURL))
	}
	if opts.PollInterval > 0 {
		pollOpts = append(pollOpts, feed.WithPollInterval(opts.PollInterval))
	}
	poller := feed.NewPoller(log, res, obs, pollOpts...)

	var detailOpts []feed.DetailsOption
	if opts.ProviderBaseURL != "" {
		detailOpts = append(detailOpts, feed.WithDetailsBaseURL(opts.ProviderBaseURL))
	}
	details := feed.NewDetails(log, res, detailOpts...)

	mgr = watch.NewManager(log, stream, poller, opts.Retry)

	return &Tracker{
		log:     log,
		store:   st,
		manager: mgr,
		poller:  poller,
		details: details,
		obs:     obs,
	}
}

// Run starts the store consumer and the periodic poll over the watched set.
// It returns immediately; the loops stop when ctx is canceled.
func (t *Tracker) Run(ctx context.Context) {
	go t.store.Run(ctx, t.obs)
	go t.poller.Run(ctx, t.manager.Symbols)
}

// Watch registers interest in a symbol.
func (t *Tracker) Watch(symbol string) { t.manager.Watch(symbol) }

// Unwatch drops one registration for a symbol.
func (t *Tracker) Unwatch(symbol string) { t.manager.Unwatch(symbol) }

// Get returns the current reconciled state for a symbol; symbols never
// watched yield the default empty state.
func (t *Tracker) Get(symbol string) quote.PriceState { return t.store.Get(symbol) }

// Subscribe registers a change listener for one symbol, or all symbols when
// symbol is empty.
func (t *Tracker) Subscribe(symbol string, fn store.Listener) func() {
	return t.store.Subscribe(symbol, fn)
}

// Stats fetches the richer per-asset details payload.
func (t *Tracker) Stats(ctx context.Context, symbol string) (*quote.AssetStats, error) {
	return t.details.FetchStats(ctx, symbol)
}
