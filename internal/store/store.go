// Package store reconciles price observations from every data source into a
// single coherent per-symbol view and fans updates out to subscribers.
package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/yannvr/crypto-portfolio-tracker/internal/metrics"
	"github.com/yannvr/crypto-portfolio-tracker/internal/quote"
)

// Listener receives the full new state after every accepted update.
type Listener func(quote.PriceState)

// entry holds one symbol's state. Writers take mu so updates for a symbol are
// serialized; readers load the pointer without locking and always see a
// complete state because updates swap in a fresh immutable copy.
type entry struct {
	mu    sync.Mutex
	state atomic.Pointer[quote.PriceState]
}

// Store is the single piece of mutable shared state in the price core. All
// mutation goes through Record and SetStatus; Get never blocks on writers.
type Store struct {
	log zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*entry

	subMu   sync.Mutex
	subs    map[string]map[uint64]Listener // "" key receives every symbol
	nextSub uint64
}

// New constructs an empty Store. Stores are plain values wired in at process
// start; nothing in this package holds a package-level instance.
func New(log zerolog.Logger) *Store {
	return &Store{
		log:     log,
		entries: make(map[string]*entry),
		subs:    make(map[string]map[uint64]Listener),
	}
}

func (s *Store) entryFor(symbol string) *entry {
	s.mu.RLock()
	e := s.entries[symbol]
	s.mu.RUnlock()
	if e != nil {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e = s.entries[symbol]; e != nil {
		return e
	}
	e = &entry{}
	initial := quote.EmptyState(symbol)
	e.state.Store(&initial)
	s.entries[symbol] = e
	return e
}

// Record merges one observation into the symbol's state. Observations older
// than the last accepted one are dropped; an equal timestamp is accepted
// (last write wins). Sources carry no trust weighting: recency is the sole
// tie-break, because the product goal is freshest known price.
func (s *Store) Record(obs quote.Observation) {
	if !obs.Valid() {
		metrics.ObservationsDropped.WithLabelValues(obs.Symbol, "invalid").Inc()
		s.log.Warn().Str("symbol", obs.Symbol).Float64("value", obs.Value).Msg("dropping invalid observation")
		return
	}

	e := s.entryFor(obs.Symbol)

	e.mu.Lock()
	cur := e.state.Load()
	if cur.Last != nil && obs.ObservedAt.Before(cur.Last.ObservedAt) {
		e.mu.Unlock()
		metrics.ObservationsDropped.WithLabelValues(obs.Symbol, "stale").Inc()
		s.log.Debug().Str("symbol", obs.Symbol).Str("source", string(obs.Source)).Msg("dropping out-of-order observation")
		return
	}

	next := *cur
	next.Previous = cur.Current
	next.Current = quote.PriceOf(obs.Value)
	last := obs
	next.Last = &last
	if next.Previous.Valid && next.Previous.Value != 0 {
		next.Change = quote.PriceOf((next.Current.Value - next.Previous.Value) / next.Previous.Value * 100)
	} else {
		next.Change = quote.Price{}
	}
	e.state.Store(&next)
	e.mu.Unlock()

	metrics.ObservationsTotal.WithLabelValues(obs.Symbol, string(obs.Source)).Inc()
	s.notify(obs.Symbol, next)
}

// SetStatus records the streaming connection state for a symbol. Status is
// independent of whether a price exists: a feed error leaves the last known
// price in place.
func (s *Store) SetStatus(symbol string, status quote.Status) {
	e := s.entryFor(symbol)

	e.mu.Lock()
	cur := e.state.Load()
	if cur.Status == status {
		e.mu.Unlock()
		return
	}
	next := *cur
	next.Status = status
	e.state.Store(&next)
	e.mu.Unlock()

	s.notify(symbol, next)
}

// Get returns a snapshot of the symbol's state. Symbols nothing has reported
// on yield the default empty state, never an error.
func (s *Store) Get(symbol string) quote.PriceState {
	s.mu.RLock()
	e := s.entries[symbol]
	s.mu.RUnlock()
	if e == nil {
		return quote.EmptyState(symbol)
	}
	return *e.state.Load()
}

// Subscribe registers a listener for one symbol, or for every symbol when
// symbol is empty. The returned cancel func is safe to call more than once.
func (s *Store) Subscribe(symbol string, fn Listener) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[symbol] == nil {
		s.subs[symbol] = make(map[uint64]Listener)
	}
	s.subs[symbol][id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs[symbol], id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(symbol string, state quote.PriceState) {
	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.subs[symbol])+len(s.subs[""]))
	for _, fn := range s.subs[symbol] {
		listeners = append(listeners, fn)
	}
	for _, fn := range s.subs[""] {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// Run consumes observations from the adapters' shared channel until the
// context is canceled or the channel closes.
func (s *Store) Run(ctx context.Context, observations <-chan quote.Observation) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs, ok := <-observations:
			if !ok {
				return
			}
			s.Record(obs)
		}
	}
}
