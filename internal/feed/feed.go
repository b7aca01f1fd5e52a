// Package feed hosts the data-source adapters: a per-symbol websocket ticker
// stream and an HTTP polling snapshot client. Both emit quote.Observation
// values onto a shared channel consumed by the reconciliation store.
package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/yannvr/crypto-portfolio-tracker/internal/quote"
)

const (
	defaultStreamBaseURL = "wss://stream.binance.com:443/ws"
	defaultPollBaseURL   = "https://api.coingecko.com/api/v3"
	defaultPollInterval  = 30 * time.Second
	// Streamed pairs are quoted in USDT to match the polled USD snapshot.
	streamQuoteSuffix = "usdt"
)

// StatusFunc receives streaming connection state transitions per symbol.
type StatusFunc func(symbol string, status quote.Status)

// SymbolResolver maps tickers to the polling provider's asset ids.
type SymbolResolver interface {
	ResolveOrGuess(ctx context.Context, symbol string) string
}

// emitter pushes an observation unless the context is canceled first.
type emitter struct {
	out chan<- quote.Observation
}

func (e emitter) emit(ctx context.Context, obs quote.Observation) bool {
	select {
	case e.out <- obs:
		return true
	case <-ctx.Done():
		return false
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
