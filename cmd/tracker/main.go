package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yannvr/crypto-portfolio-tracker/internal/config"
	"github.com/yannvr/crypto-portfolio-tracker/internal/metrics"
	"github.com/yannvr/crypto-portfolio-tracker/internal/portfolio"
	"github.com/yannvr/crypto-portfolio-tracker/internal/quote"
	"github.com/yannvr/crypto-portfolio-tracker/internal/tracker"
	"github.com/yannvr/crypto-portfolio-tracker/internal/util"
	"github.com/yannvr/crypto-portfolio-tracker/internal/watch"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tr := tracker.New(log, tracker.Options{
		StreamBaseURL:   cfg.Feeds.StreamBaseURL,
		ProviderBaseURL: cfg.Feeds.ProviderBaseURL,
		PollInterval:    time.Duration(cfg.Feeds.PollIntervalMs) * time.Millisecond,
		Retry: watch.RetryConfig{
			MaxRetries:   cfg.Feeds.RetryMax,
			InitialDelay: time.Duration(cfg.Feeds.RetryInitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Feeds.RetryMaxDelayMs) * time.Millisecond,
		},
	})
	tr.Run(ctx)

	unsubscribe := tr.Subscribe("", func(state quote.PriceState) {
		event := log.Info().
			Str("symbol", state.Symbol).
			Str("status", string(state.Status))
		if state.Current.Valid {
			event = event.Float64("price", state.Current.Value)
		}
		if state.Change.Valid {
			event = event.Float64("change_pct", state.Change.Value)
		}
		event.Msg("price update")
	})
	defer unsubscribe()

	for _, sym := range cfg.Symbols {
		tr.Watch(sym)
	}
	log.Info().Strs("symbols", cfg.Symbols).Msg("tracker started")

	holdings := make([]portfolio.Holding, 0, len(cfg.Portfolio.Holdings))
	for _, h := range cfg.Portfolio.Holdings {
		holdings = append(holdings, portfolio.Holding{
			Symbol: h.Symbol,
			Amount: decimal.NewFromFloat(h.Amount),
		})
	}
	valuer := portfolio.NewValuer(tr)

	valuationInterval := time.Duration(cfg.Portfolio.ValuationIntervalMs) * time.Millisecond
	if valuationInterval <= 0 {
		valuationInterval = time.Minute
	}
	ticker := time.NewTicker(valuationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case <-ticker.C:
			if len(holdings) == 0 {
				continue
			}
			valuation := valuer.Value(holdings)
			log.Info().Str("total_usd", valuation.Total.StringFixed(2)).Msg("portfolio valuation")
		}
	}
}
