// Package watch reference-counts interest in symbols so exactly one
// streaming connection exists per symbol no matter how many consumers
// display it, and tears the connection down when the last one leaves.
package watch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yannvr/crypto-portfolio-tracker/internal/metrics"
	"github.com/yannvr/crypto-portfolio-tracker/internal/quote"
)

// Streamer is the streaming adapter surface the manager drives.
type Streamer interface {
	Subscribe(symbol string) func()
	Status(symbol string) quote.Status
}

// Seeder issues the one-shot poll that seeds state for a freshly watched
// symbol without waiting for the first streamed tick.
type Seeder interface {
	FetchOnce(ctx context.Context, symbols []string)
}

// RetryConfig bounds the resubscribe policy applied after a stream error.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig is the resubscribe policy used when none is configured.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:   3,
	InitialDelay: 1 * time.Second,
	MaxDelay:     10 * time.Second,
}

type registration struct {
	refs    int
	cancel  func()
	retries int
	epoch   uint64 // bumped whenever cancel is replaced, to void stale retry timers
}

// Manager is the subscription manager. All methods are safe for concurrent
// use and never return errors; unknown symbols and surplus unwatches are
// no-ops.
type Manager struct {
	log      zerolog.Logger
	streamer Streamer
	seeder   Seeder
	retry    RetryConfig

	mu   sync.Mutex
	regs map[string]*registration
}

// NewManager constructs a Manager.
func NewManager(log zerolog.Logger, streamer Streamer, seeder Seeder, retry RetryConfig) *Manager {
	if retry.MaxRetries <= 0 {
		retry = DefaultRetryConfig
	}
	return &Manager{
		log:      log,
		streamer: streamer,
		seeder:   seeder,
		retry:    retry,
		regs:     make(map[string]*registration),
	}
}

// Watch registers interest in a symbol. The first watcher opens the stream
// and triggers one immediate seeding poll; later watchers only bump the
// refcount.
func (m *Manager) Watch(symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return
	}

	m.mu.Lock()
	if reg := m.regs[symbol]; reg != nil {
		reg.refs++
		m.mu.Unlock()
		return
	}
	reg := &registration{refs: 1}
	reg.cancel = m.streamer.Subscribe(symbol)
	m.regs[symbol] = reg
	m.mu.Unlock()

	m.log.Debug().Str("symbol", symbol).Msg("watch opened stream")
	if m.seeder != nil {
		// Seed off the caller's path; a poll still in flight after unwatch
		// is harmless, the store's recency check applies regardless.
		go m.seeder.FetchOnce(context.Background(), []string{symbol})
	}
}

// Unwatch drops one registration. When the refcount reaches zero the stream
// is closed and the registration removed; further calls are no-ops.
func (m *Manager) Unwatch(symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	m.mu.Lock()
	reg := m.regs[symbol]
	if reg == nil {
		m.mu.Unlock()
		return
	}
	reg.refs--
	if reg.refs > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.regs, symbol)
	cancel := reg.cancel
	m.mu.Unlock()

	cancel()
	m.log.Debug().Str("symbol", symbol).Msg("unwatch closed stream")
}

// Symbols returns a sorted snapshot of the watched set.
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.regs))
	for sym := range m.regs {
		out = append(out, sym)
	}
	m.mu.Unlock()
	sort.Strings(out)
	return out
}

// OnStatus feeds streaming status transitions into the reconnect policy. It
// is wired as (part of) the stream adapter's StatusFunc.
func (m *Manager) OnStatus(symbol string, status quote.Status) {
	switch status {
	case quote.StatusConnected:
		m.mu.Lock()
		if reg := m.regs[symbol]; reg != nil {
			reg.retries = 0
		}
		m.mu.Unlock()
	case quote.StatusError:
		m.scheduleResubscribe(symbol)
	}
}

// scheduleResubscribe retries a failed stream with exponential backoff up to
// the configured cap. Exhausting retries leaves status error visible to
// readers rather than retrying forever.
func (m *Manager) scheduleResubscribe(symbol string) {
	m.mu.Lock()
	reg := m.regs[symbol]
	if reg == nil {
		m.mu.Unlock()
		return
	}
	if reg.retries >= m.retry.MaxRetries {
		m.mu.Unlock()
		m.log.Warn().Str("symbol", symbol).Int("retries", m.retry.MaxRetries).Msg("stream retries exhausted")
		return
	}
	reg.retries++
	delay := m.retry.InitialDelay << uint(reg.retries-1)
	if delay > m.retry.MaxDelay {
		delay = m.retry.MaxDelay
	}
	epoch := reg.epoch
	attempt := reg.retries
	m.mu.Unlock()

	metrics.StreamReconnects.WithLabelValues(symbol).Inc()
	m.log.Info().Str("symbol", symbol).Int("attempt", attempt).Dur("delay", delay).Msg("retrying stream subscription")
	time.AfterFunc(delay, func() { m.resubscribe(symbol, reg, epoch) })
}

func (m *Manager) resubscribe(symbol string, reg *registration, epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// The symbol may have been unwatched, rewatched, or already resubscribed
	// while the timer was pending; only act on the exact registration state
	// the retry was scheduled against.
	if m.regs[symbol] != reg || reg.epoch != epoch {
		return
	}
	reg.cancel()
	reg.epoch++
	reg.cancel = m.streamer.Subscribe(symbol)
}
