package resolver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func newListServer(t *testing.T, entries []ListEntry, fetches *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/list" {
			http.NotFound(w, r)
			return
		}
		if fetches != nil {
			atomic.AddInt64(fetches, 1)
		}
		_ = json.NewEncoder(w).Encode(entries)
	}))
}

func TestResolveCanonicalOverrideWins(t *testing.T) {
	// The list carries a higher-ranked but irrelevant BTC-ticker entry; the
	// override table must still win.
	server := newListServer(t, []ListEntry{
		{ID: "batcat", Symbol: "btc", Name: "BatCat"},
	}, nil)
	defer server.Close()

	r := New(zerolog.Nop(), WithBaseURL(server.URL))
	id, ok := r.Resolve(context.Background(), "BTC")
	if !ok || id != "bitcoin" {
		t.Fatalf("expected bitcoin, got %q ok=%v", id, ok)
	}
}

func TestResolveExactMatch(t *testing.T) {
	server := newListServer(t, []ListEntry{
		{ID: "render-token", Symbol: "rndr", Name: "Render"},
	}, nil)
	defer server.Close()

	r := New(zerolog.Nop(), WithBaseURL(server.URL))
	id, ok := r.Resolve(context.Background(), "RNDR")
	if !ok || id != "render-token" {
		t.Fatalf("expected render-token, got %q ok=%v", id, ok)
	}
}

func TestResolveTieBreaks(t *testing.T) {
	server := newListServer(t, []ListEntry{
		{ID: "wrapped-pepe-clone", Symbol: "pep", Name: "Wrapped Thing"},
		{ID: "pep-chain", Symbol: "pep", Name: "Pep Protocol"},
		{ID: "pepechain-ltd", Symbol: "pep", Name: "Pep Network"},
	}, nil)
	defer server.Close()

	r := New(zerolog.Nop(), WithBaseURL(server.URL))
	// Name-match keeps the two "Pep ..." entries, shortest id picks pep-chain.
	id, ok := r.Resolve(context.Background(), "PEP")
	if !ok || id != "pep-chain" {
		t.Fatalf("expected pep-chain, got %q ok=%v", id, ok)
	}
}

func TestResolveIDPrefixTieBreak(t *testing.T) {
	server := newListServer(t, []ListEntry{
		{ID: "aaa-money", Symbol: "zzz", Name: "Zzz One"},
		{ID: "zzz-token", Symbol: "zzz", Name: "Zzz Two"},
	}, nil)
	defer server.Close()

	r := New(zerolog.Nop(), WithBaseURL(server.URL))
	id, ok := r.Resolve(context.Background(), "zzz")
	if !ok || id != "zzz-token" {
		t.Fatalf("expected zzz-token, got %q ok=%v", id, ok)
	}
}

func TestResolveMissAndGuess(t *testing.T) {
	server := newListServer(t, nil, nil)
	defer server.Close()

	r := New(zerolog.Nop(), WithBaseURL(server.URL))
	if _, ok := r.Resolve(context.Background(), "NOPE"); ok {
		t.Fatalf("expected miss for unknown symbol")
	}
	if guess := r.ResolveOrGuess(context.Background(), "NOPE"); guess != "nope" {
		t.Fatalf("expected lowercase guess, got %q", guess)
	}
}

func TestResolveNeverErrorsOnFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	r := New(zerolog.Nop(), WithBaseURL(server.URL))
	if _, ok := r.Resolve(context.Background(), "RNDR"); ok {
		t.Fatalf("expected miss when list is unavailable")
	}
	if guess := r.ResolveOrGuess(context.Background(), "RNDR"); guess != "rndr" {
		t.Fatalf("expected lowercase guess, got %q", guess)
	}
}

func TestConcurrentResolvesShareOneFetch(t *testing.T) {
	var fetches int64
	server := newListServer(t, []ListEntry{
		{ID: "render-token", Symbol: "rndr", Name: "Render"},
	}, &fetches)
	defer server.Close()

	r := New(zerolog.Nop(), WithBaseURL(server.URL))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if id, ok := r.Resolve(context.Background(), "RNDR"); !ok || id != "render-token" {
				t.Errorf("unexpected resolution %q ok=%v", id, ok)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt64(&fetches); n != 1 {
		t.Fatalf("expected exactly one list fetch, got %d", n)
	}
}

func TestInvalidateRefetches(t *testing.T) {
	var fetches int64
	server := newListServer(t, []ListEntry{
		{ID: "render-token", Symbol: "rndr", Name: "Render"},
	}, &fetches)
	defer server.Close()

	r := New(zerolog.Nop(), WithBaseURL(server.URL))
	r.Resolve(context.Background(), "RNDR")
	r.Resolve(context.Background(), "RNDR")
	if n := atomic.LoadInt64(&fetches); n != 1 {
		t.Fatalf("expected one fetch before invalidation, got %d", n)
	}

	r.Invalidate()
	r.Resolve(context.Background(), "RNDR")
	if n := atomic.LoadInt64(&fetches); n != 2 {
		t.Fatalf("expected refetch after invalidation, got %d", n)
	}
}
