package feed

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yannvr/crypto-portfolio-tracker/internal/quote"
)

// miniTicker is the per-symbol ticker payload; the close price arrives as a
// string on the live feed but a bare number is tolerated too.
type miniTicker struct {
	Close json.Number `json:"c"`
}

// Stream maintains one websocket connection per subscribed symbol. It does
// not reconnect on its own: after a transport error it reports status
// `error` and stays quiet until resubscribed (reconnect policy belongs to
// the watch manager).
type Stream struct {
	log      zerolog.Logger
	baseURL  string
	dialer   *websocket.Dialer
	emitter  emitter
	onStatus StatusFunc

	mu       sync.Mutex
	statuses map[string]quote.Status
}

// StreamOption configures Stream construction parameters.
type StreamOption func(*Stream)

// WithStreamBaseURL overrides the websocket endpoint (tests point it at a
// local server).
func WithStreamBaseURL(url string) StreamOption {
	return func(s *Stream) {
		if url != "" {
			s.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithStatusFunc registers a callback for connection state transitions.
func WithStatusFunc(fn StatusFunc) StreamOption {
	return func(s *Stream) { s.onStatus = fn }
}

// NewStream constructs a streaming adapter emitting onto out.
func NewStream(log zerolog.Logger, out chan<- quote.Observation, opts ...StreamOption) *Stream {
	s := &Stream{
		log:      log,
		baseURL:  defaultStreamBaseURL,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		emitter:  emitter{out: out},
		statuses: make(map[string]quote.Status),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe opens the ticker connection for one symbol and returns a cancel
// func that closes it. Cancel is safe to call more than once.
func (s *Stream) Subscribe(symbol string) func() {
	ctx, cancel := context.WithCancel(context.Background())
	s.setStatus(symbol, quote.StatusConnecting)
	go s.consume(ctx, symbol)
	return cancel
}

// Status reports the connection state for one symbol.
func (s *Stream) Status(symbol string) quote.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.statuses[symbol]; ok {
		return st
	}
	return quote.StatusUnknown
}

func (s *Stream) setStatus(symbol string, status quote.Status) {
	s.mu.Lock()
	s.statuses[symbol] = status
	s.mu.Unlock()
	if s.onStatus != nil {
		s.onStatus(symbol, status)
	}
}

func (s *Stream) consume(ctx context.Context, symbol string) {
	url := s.baseURL + "/" + strings.ToLower(symbol) + streamQuoteSuffix + "@miniTicker"
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if ctx.Err() != nil {
			s.setStatus(symbol, quote.StatusDisconnected)
			return
		}
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("ticker stream dial failed")
		s.setStatus(symbol, quote.StatusError)
		return
	}
	defer conn.Close()

	s.setStatus(symbol, quote.StatusConnected)
	s.log.Info().Str("symbol", symbol).Msg("connected ticker stream")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})

	// Unblock the read loop as soon as the subscription is canceled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go s.pingLoop(ctx, conn, symbol)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				s.setStatus(symbol, quote.StatusDisconnected)
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				s.log.Info().Str("symbol", symbol).Msg("ticker stream closed by peer")
				s.setStatus(symbol, quote.StatusDisconnected)
			default:
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("ticker stream read failed")
				s.setStatus(symbol, quote.StatusError)
			}
			return
		}

		var tick miniTicker
		if err := json.Unmarshal(message, &tick); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to decode ticker message")
			continue
		}
		price, err := tick.Close.Float64()
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("invalid close price in ticker message")
			continue
		}

		obs := quote.Observation{
			Symbol:     strings.ToUpper(symbol),
			Value:      price,
			Source:     quote.SourceStream,
			ObservedAt: time.Now().UTC(),
		}
		if !s.emitter.emit(ctx, obs) {
			s.setStatus(symbol, quote.StatusDisconnected)
			return
		}
	}
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn, symbol string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Warn().Err(err).Str("symbol", symbol).Msg("ticker ping failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
