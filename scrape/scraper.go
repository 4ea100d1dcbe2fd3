package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sig-0/p2prates/provider/currencies"
	"github.com/sig-0/p2prates/storage/types"
)

var (
	errMissingMarketRate = errors.New("missing market rate")
	errMissingReference  = errors.New("missing reference rate")
	errInvalidMarketRate = errors.New("market rate must be positive")
)

var two = decimal.NewFromInt(2)

// P2PScraper builds rate samples out of the USDT/VES P2P market,
// optionally anchored to an official USD/VES reference rate
type P2PScraper struct {
	market    Fetcher
	reference Fetcher
	logger    *slog.Logger
	now       func() time.Time
}

// NewP2PScraper creates a new P2P market scraper
func NewP2PScraper(market Fetcher, opts ...Option) *P2PScraper {
	s := &P2PScraper{
		market: market,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Scrape fetches the market and the reference concurrently.
// Only a market failure fails the scrape
func (s *P2PScraper) Scrape(ctx context.Context) (*types.RateSample, error) {
	var (
		marketRates []*types.ExchangeRate
		reference   *types.ExchangeRate
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rates, err := s.market.Fetch(gCtx)
		if err != nil {
			return fmt.Errorf("unable to fetch %s rates: %w", s.market.Name(), err)
		}

		marketRates = rates

		return nil
	})

	if s.reference != nil {
		g.Go(func() error {
			rate, err := s.fetchReference(gCtx)
			if err != nil {
				s.logger.Warn(
					"reference rate unavailable, using market mid",
					"reference", s.reference.Name(),
					"err", err,
				)

				return nil
			}

			reference = rate

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.buildSample(marketRates, reference)
}

// fetchReference returns the USD/VES rate of the reference feed
func (s *P2PScraper) fetchReference(ctx context.Context) (*types.ExchangeRate, error) {
	rates, err := s.reference.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	rate := findRate(rates, currencies.USD, "")
	if rate == nil || !rate.Rate.IsPositive() {
		return nil, errMissingReference
	}

	return rate, nil
}

// buildSample assembles the sample out of the fetched rates
func (s *P2PScraper) buildSample(
	marketRates []*types.ExchangeRate,
	reference *types.ExchangeRate,
) (*types.RateSample, error) {
	var (
		sell = findRate(marketRates, currencies.USDT, types.RateTypeSELL)
		buy  = findRate(marketRates, currencies.USDT, types.RateTypeBUY)
	)

	if sell == nil || buy == nil {
		return nil, errMissingMarketRate
	}

	if !sell.Rate.IsPositive() || !buy.Rate.IsPositive() {
		return nil, fmt.Errorf("%w: sell %s, buy %s", errInvalidMarketRate, sell.Rate, buy.Rate)
	}

	var (
		mid    = sell.Rate.Add(buy.Rate).Div(two).Round(4)
		source = types.Source(s.market.Name())
		base   = mid
	)

	if reference != nil {
		base = reference.Rate
		source = types.Source(fmt.Sprintf("%s+%s", s.market.Name(), s.reference.Name()))
	}

	return &types.RateSample{
		CapturedAt:    s.now().UTC(),
		Source:        source,
		BaseRate:      base,
		SecondaryRate: mid,
		SellRate:      sell.Rate,
		BuyRate:       buy.Rate,
	}, nil
}

// findRate returns the first X/VES rate of the given base (and type, if set)
func findRate(
	rates []*types.ExchangeRate,
	base types.Currency,
	rateType types.RateType,
) *types.ExchangeRate {
	for _, rate := range rates {
		if rate == nil || rate.Base != base || rate.Target != currencies.VES {
			continue
		}

		if rateType != "" && rate.RateType != rateType {
			continue
		}

		return rate
	}

	return nil
}
