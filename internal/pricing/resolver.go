package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/pickem/backend/internal/contracts"
	"github.com/wonny/pickem/backend/internal/metrics"
	"github.com/wonny/pickem/backend/pkg/logger"
)

// QuoteProvider fetches a real closing price from an external source
type QuoteProvider interface {
	Close(ctx context.Context, ticker string, date time.Time) (float64, error)
}

// Resolution is the outcome of resolving a set of tickers. It is always total.
type Resolution struct {
	Prices   map[string]float64
	Sources  map[string]contracts.PriceSource
	Degraded bool
}

// Quality maps Degraded onto the game's data-quality flag
func (r *Resolution) Quality() contracts.DataQuality {
	if r.Degraded {
		return contracts.DataQualityDegraded
	}
	return contracts.DataQualityOK
}

// Resolver resolves final prices: cache, persisted snapshot, quote provider,
// then deterministic synthesis
// ⭐ SSOT: 종가 결정 로직은 여기서만
type Resolver struct {
	cache        Cache
	snapshots    contracts.PriceSnapshotRepository
	quotes       QuoteProvider
	quoteTimeout time.Duration
	logger       *logger.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithCache sets the price cache
func WithCache(c Cache) Option { return func(r *Resolver) { r.cache = c } }

// WithQuoteProvider enables external quotes bounded by timeout per ticker
func WithQuoteProvider(q QuoteProvider, timeout time.Duration) Option {
	return func(r *Resolver) {
		r.quotes = q
		r.quoteTimeout = timeout
	}
}

// NewResolver creates a resolver over the snapshot store
func NewResolver(snapshots contracts.PriceSnapshotRepository, log *logger.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		snapshots:    snapshots,
		quoteTimeout: 5 * time.Second,
		logger:       log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a price for every ticker on the trading day of the game's
// end date. The game's frozen launch prices anchor synthesized values.
// Resolve never fails; a cancelled ctx only pushes the remaining tickers to synthesis.
func (r *Resolver) Resolve(ctx context.Context, game *contracts.Game, tickers []string) *Resolution {
	date := contracts.TradingDate(game.EndDate)
	res := &Resolution{
		Prices:  make(map[string]float64, len(tickers)),
		Sources: make(map[string]contracts.PriceSource, len(tickers)),
	}

	var fetched []contracts.PriceSnapshot
	for _, raw := range tickers {
		ticker := contracts.NormalizeTicker(raw)
		if _, done := res.Prices[ticker]; done {
			continue
		}

		price, source := r.lookup(ctx, ticker, date)
		if source == "" {
			initial, _ := game.InitialPrice(ticker)
			price = Synthesize(ticker, date, initial)
			source = contracts.PriceSourceSynthetic
			res.Degraded = true
			r.logger.WithFields(map[string]interface{}{
				"ticker": ticker,
				"date":   contracts.DateKey(date),
				"price":  price,
			}).Warn("Final price unavailable, synthesized")
		}

		if source == contracts.PriceSourceQuote {
			fetched = append(fetched, contracts.PriceSnapshot{Ticker: ticker, Date: date, Close: price, Source: source})
		}
		if r.cache != nil && source != contracts.PriceSourceCache && source != contracts.PriceSourceSynthetic {
			if err := r.cache.Set(ctx, ticker, date, price); err != nil {
				r.logger.WithError(err).WithField("ticker", ticker).Warn("Failed to cache resolved price")
			}
		}

		res.Prices[ticker] = price
		res.Sources[ticker] = source
		metrics.PricesResolved.WithLabelValues(string(source)).Inc()
	}

	if len(fetched) > 0 && r.snapshots != nil {
		if err := r.snapshots.SaveSnapshots(ctx, fetched); err != nil {
			r.logger.WithError(err).Warn("Failed to persist fetched price snapshots")
		}
	}
	return res
}

// lookup walks the real sources; an empty source means nothing was found
func (r *Resolver) lookup(ctx context.Context, ticker string, date time.Time) (float64, contracts.PriceSource) {
	if ctx.Err() != nil {
		return 0, ""
	}

	if r.cache != nil {
		if price, ok := r.cache.Get(ctx, ticker, date); ok && price > 0 {
			return price, contracts.PriceSourceCache
		}
	}

	if r.snapshots != nil {
		snap, err := r.snapshots.GetSnapshot(ctx, ticker, date)
		switch {
		case err == nil && snap.Close > 0:
			return snap.Close, contracts.PriceSourceSnapshot
		case err != nil && !errors.Is(err, contracts.ErrNotFound):
			r.logger.WithError(err).WithField("ticker", ticker).Warn("Price snapshot lookup failed")
		}
	}

	if r.quotes != nil {
		qctx, cancel := context.WithTimeout(ctx, r.quoteTimeout)
		price, err := r.quotes.Close(qctx, ticker, date)
		cancel()
		if err == nil && price > 0 {
			return price, contracts.PriceSourceQuote
		}
		if err != nil {
			r.logger.WithError(err).WithField("ticker", ticker).Warn("Quote provider failed")
		}
	}

	return 0, ""
}
