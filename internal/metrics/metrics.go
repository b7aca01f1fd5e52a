package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "price_observations_total", Help: "Price observations accepted into the store"},
		[]string{"symbol", "source"},
	)
	ObservationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "price_observations_dropped_total", Help: "Price observations rejected by the store"},
		[]string{"symbol", "reason"},
	)
	StreamReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stream_reconnects_total", Help: "Streaming feed resubscribe attempts"},
		[]string{"symbol"},
	)
	PollFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "poll_failures_total", Help: "Polling fetches that returned no usable price"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(ObservationsTotal, ObservationsDropped, StreamReconnects, PollFailures)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
