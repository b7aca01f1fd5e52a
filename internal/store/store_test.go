package store

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/yannvr/crypto-portfolio-tracker/internal/quote"
)

func obsAt(symbol string, value float64, source quote.Source, at int64) quote.Observation {
	return quote.Observation{
		Symbol:     symbol,
		Value:      value,
		Source:     source,
		ObservedAt: time.UnixMilli(at),
	}
}

func TestRecordDerivesChange(t *testing.T) {
	s := New(zerolog.Nop())

	s.Record(obsAt("BTC", 50000, quote.SourcePoll, 100))
	s.Record(obsAt("BTC", 51000, quote.SourceStream, 200))

	state := s.Get("BTC")
	if !state.Current.Valid || state.Current.Value != 51000 {
		t.Fatalf("unexpected current price: %+v", state.Current)
	}
	if !state.Previous.Valid || state.Previous.Value != 50000 {
		t.Fatalf("unexpected previous price: %+v", state.Previous)
	}
	if !state.Change.Valid || math.Abs(state.Change.Value-2.0) > 1e-9 {
		t.Fatalf("unexpected percent change: %+v", state.Change)
	}
	if state.Direction() != quote.DirectionUp {
		t.Fatalf("expected up direction")
	}
}

func TestRecordDropsOutOfOrder(t *testing.T) {
	s := New(zerolog.Nop())

	s.Record(obsAt("BTC", 50000, quote.SourcePoll, 100))
	s.Record(obsAt("BTC", 51000, quote.SourceStream, 50))

	state := s.Get("BTC")
	if state.Current.Value != 50000 {
		t.Fatalf("stale observation mutated state: %+v", state.Current)
	}
	if state.Previous.Valid {
		t.Fatalf("expected no previous price after dropped update")
	}
	if state.Change.Valid {
		t.Fatalf("expected no percent change after dropped update")
	}
}

func TestRecordAcceptsEqualTimestamp(t *testing.T) {
	// Ties are last-write-wins, not errors.
	s := New(zerolog.Nop())

	s.Record(obsAt("BTC", 50000, quote.SourcePoll, 100))
	s.Record(obsAt("BTC", 50500, quote.SourceStream, 100))

	if got := s.Get("BTC").Current.Value; got != 50500 {
		t.Fatalf("expected tie to be accepted, got %.2f", got)
	}
}

func TestRecordFirstObservationHasNoChange(t *testing.T) {
	s := New(zerolog.Nop())
	s.Record(obsAt("ETH", 3000, quote.SourceStream, 10))

	state := s.Get("ETH")
	if !state.Current.Valid || state.Current.Value != 3000 {
		t.Fatalf("unexpected current: %+v", state.Current)
	}
	if state.Previous.Valid || state.Change.Valid {
		t.Fatalf("first observation must not derive previous/change")
	}
}

func TestRecordIgnoresInvalidObservation(t *testing.T) {
	s := New(zerolog.Nop())
	s.Record(obsAt("BTC", 50000, quote.SourcePoll, 100))
	s.Record(obsAt("BTC", -5, quote.SourceStream, 200))
	s.Record(obsAt("BTC", math.NaN(), quote.SourceStream, 300))

	if got := s.Get("BTC").Current.Value; got != 50000 {
		t.Fatalf("invalid observation mutated state: %.2f", got)
	}
}

// permutations returns every ordering of the given indices.
func permutations(n int) [][]int {
	if n == 1 {
		return [][]int{{0}}
	}
	var out [][]int
	for _, perm := range permutations(n - 1) {
		for i := 0; i <= len(perm); i++ {
			next := make([]int, 0, n)
			next = append(next, perm[:i]...)
			next = append(next, n-1)
			next = append(next, perm[i:]...)
			out = append(out, next)
		}
	}
	return out
}

func TestRecencyInvariantUnderPermutation(t *testing.T) {
	observations := []quote.Observation{
		obsAt("BTC", 100, quote.SourcePoll, 10),
		obsAt("BTC", 200, quote.SourceStream, 20),
		obsAt("BTC", 300, quote.SourcePoll, 30),
		obsAt("BTC", 400, quote.SourceStream, 40),
	}

	for _, perm := range permutations(len(observations)) {
		s := New(zerolog.Nop())
		for _, i := range perm {
			s.Record(observations[i])
		}
		state := s.Get("BTC")
		if state.Current.Value != 400 {
			t.Fatalf("perm %v: current %.0f, want 400", perm, state.Current.Value)
		}
		if state.Last == nil || !state.Last.ObservedAt.Equal(time.UnixMilli(40)) {
			t.Fatalf("perm %v: unexpected last observation %+v", perm, state.Last)
		}
	}
}

func TestSetStatusIndependentOfPrice(t *testing.T) {
	s := New(zerolog.Nop())

	s.Record(obsAt("SOL", 150, quote.SourceStream, 100))
	s.SetStatus("SOL", quote.StatusError)

	state := s.Get("SOL")
	if state.Status != quote.StatusError {
		t.Fatalf("expected error status, got %s", state.Status)
	}
	if !state.Current.Valid || state.Current.Value != 150 {
		t.Fatalf("status change must not disturb price: %+v", state.Current)
	}

	// Status for a symbol with no price yet works the same way.
	s.SetStatus("ADA", quote.StatusConnecting)
	if got := s.Get("ADA"); got.Status != quote.StatusConnecting || got.Current.Valid {
		t.Fatalf("unexpected state for priceless symbol: %+v", got)
	}
}

func TestGetUnknownSymbolReturnsEmptyState(t *testing.T) {
	s := New(zerolog.Nop())
	state := s.Get("NEVER")
	if state.Symbol != "NEVER" || state.Current.Valid || state.Status != quote.StatusUnknown {
		t.Fatalf("unexpected default state: %+v", state)
	}
}

func TestSubscribeSymbolAndGlobal(t *testing.T) {
	s := New(zerolog.Nop())

	var mu sync.Mutex
	var btcUpdates, allUpdates []quote.PriceState
	cancelBTC := s.Subscribe("BTC", func(st quote.PriceState) {
		mu.Lock()
		btcUpdates = append(btcUpdates, st)
		mu.Unlock()
	})
	cancelAll := s.Subscribe("", func(st quote.PriceState) {
		mu.Lock()
		allUpdates = append(allUpdates, st)
		mu.Unlock()
	})

	s.Record(obsAt("BTC", 50000, quote.SourcePoll, 100))
	s.Record(obsAt("ETH", 3000, quote.SourcePoll, 100))

	mu.Lock()
	if len(btcUpdates) != 1 || btcUpdates[0].Symbol != "BTC" {
		t.Fatalf("unexpected BTC updates: %+v", btcUpdates)
	}
	if len(allUpdates) != 2 {
		t.Fatalf("expected 2 global updates, got %d", len(allUpdates))
	}
	mu.Unlock()

	cancelBTC()
	cancelBTC() // second cancel is a no-op
	cancelAll()

	s.Record(obsAt("BTC", 51000, quote.SourceStream, 200))
	mu.Lock()
	defer mu.Unlock()
	if len(btcUpdates) != 1 || len(allUpdates) != 2 {
		t.Fatalf("listener fired after cancel")
	}
}

func TestDroppedObservationDoesNotNotify(t *testing.T) {
	s := New(zerolog.Nop())
	s.Record(obsAt("BTC", 50000, quote.SourcePoll, 100))

	fired := 0
	cancel := s.Subscribe("BTC", func(quote.PriceState) { fired++ })
	defer cancel()

	s.Record(obsAt("BTC", 49000, quote.SourceStream, 50))
	if fired != 0 {
		t.Fatalf("stale observation must not notify, fired %d times", fired)
	}
}

func TestNoTornReads(t *testing.T) {
	s := New(zerolog.Nop())
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 1; i <= 2000; i++ {
			// Price and timestamp move together so a consistent snapshot is
			// checkable from the reader side.
			s.Record(obsAt("BTC", float64(i), quote.SourceStream, int64(i)))
		}
	}()

	for {
		state := s.Get("BTC")
		if state.Current.Valid {
			if state.Last == nil {
				t.Fatalf("current price without last observation")
			}
			if state.Current.Value != state.Last.Value {
				t.Fatalf("torn read: current %.0f, last %.0f", state.Current.Value, state.Last.Value)
			}
			if state.Previous.Valid && state.Previous.Value != state.Current.Value-1 {
				t.Fatalf("torn read: previous %.0f for current %.0f", state.Previous.Value, state.Current.Value)
			}
		}
		select {
		case <-done:
			if got := s.Get("BTC").Current.Value; got != 2000 {
				t.Fatalf("final price %.0f, want 2000", got)
			}
			return
		default:
		}
	}
}

func TestConcurrentWritersDistinctSymbols(t *testing.T) {
	s := New(zerolog.Nop())
	symbols := []string{"BTC", "ETH", "SOL", "ADA"}

	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			for i := 1; i <= 500; i++ {
				s.Record(obsAt(sym, float64(i), quote.SourcePoll, int64(i)))
			}
		}(sym)
	}
	wg.Wait()

	for _, sym := range symbols {
		if got := s.Get(sym).Current.Value; got != 500 {
			t.Fatalf("%s: final price %.0f, want 500", sym, got)
		}
	}
}
