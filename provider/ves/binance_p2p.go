//nolint:tagliatelle // Binance API uses camel case
package ves

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sig-0/p2prates/provider/currencies"
	"github.com/sig-0/p2prates/storage/types"
)

// DefaultBinanceP2PURL is the public P2P advertisement search endpoint
const DefaultBinanceP2PURL = "https://p2p.binance.com/bapi/c2c/v2/friendly/c2c/adv/search"

const (
	pageCount = 3
	pageRows  = 10

	// medianWindow is the number of top offers the median is taken over
	medianWindow = 12

	// typicalAmount is the USDT amount an offer must accept
	typicalAmount = 100
)

var BinanceP2PSource types.Source = "BinanceP2P"

var errNoOffers = errors.New("no valid offers found")

// offerFilter are the advertiser thresholds an offer must satisfy
type offerFilter struct {
	minOrders    int
	minFinish    float64
	minAvailable float64
}

var (
	strictFilter  = offerFilter{minOrders: 50, minFinish: 0.95, minAvailable: 50}
	relaxedFilter = offerFilter{minOrders: 20, minFinish: 0.90, minAvailable: 50}
)

type p2pSearchRequest struct {
	Asset     types.Currency `json:"asset"`
	Fiat      types.Currency `json:"fiat"`
	TradeType types.RateType `json:"tradeType"`
	Rows      int            `json:"rows"`
	Page      int            `json:"page"`
}

type p2pSearchResponse struct {
	Data []p2pAd `json:"data"`
}

type p2pAd struct {
	Adv struct {
		Price                string `json:"price"`
		MinSingleTransAmount string `json:"minSingleTransAmount"`
		MaxSingleTransAmount string `json:"maxSingleTransAmount"`
		SurplusAmount        string `json:"surplusAmount"`
		TradableQuantity     string `json:"tradableQuantity"`
	} `json:"adv"`
	Advertiser struct {
		MonthOrderCount int     `json:"monthOrderCount"`
		MonthFinishRate float64 `json:"monthFinishRate"`
	} `json:"advertiser"`
}

// offer is a parsed P2P advertisement
type offer struct {
	price      decimal.Decimal
	minLimit   float64
	maxLimit   float64
	available  float64
	orders     int
	finishRate float64
	quality    float64
}

// BinanceP2PFetcher fetches the USDT/VES market from Binance P2P.
// BUY and SELL keep the advertiser side labels of the market
type BinanceP2PFetcher struct {
	client *http.Client
	url    string
}

// NewBinanceP2PFetcher creates a new instance of the Binance P2P fetcher
func NewBinanceP2PFetcher(url string, timeout time.Duration) *BinanceP2PFetcher {
	return &BinanceP2PFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		url: url,
	}
}

func (f *BinanceP2PFetcher) Name() string {
	return BinanceP2PSource.String()
}

// Fetch returns the BUY and SELL USDT/VES rates,
// each the median of the best quality offers
func (f *BinanceP2PFetcher) Fetch(ctx context.Context) ([]*types.ExchangeRate, error) {
	rates := make([]*types.ExchangeRate, 0, 2)

	for _, side := range []types.RateType{types.RateTypeBUY, types.RateTypeSELL} {
		price, err := f.medianPrice(ctx, side)
		if err != nil {
			return nil, fmt.Errorf("unable to fetch %s price: %w", side, err)
		}

		fetchedAt := time.Now().UTC()

		rates = append(rates, &types.ExchangeRate{
			AsOf:      fetchedAt,
			FetchedAt: fetchedAt,
			Base:      currencies.USDT,
			Target:    currencies.VES,
			RateType:  side,
			Source:    BinanceP2PSource,
			Rate:      price,
		})
	}

	return rates, nil
}

// medianPrice fetches one side of the market and returns its median price
func (f *BinanceP2PFetcher) medianPrice(
	ctx context.Context,
	side types.RateType,
) (decimal.Decimal, error) {
	offers, err := f.fetchOffers(ctx, side)
	if err != nil {
		return decimal.Zero, err
	}

	return selectMedian(offers, side)
}

// selectMedian filters the offers by advertiser quality and
// returns the median of the best priced ones
func selectMedian(offers []offer, side types.RateType) (decimal.Decimal, error) {
	selected := strictFilter.apply(offers)

	if len(selected) < medianWindow {
		if relaxed := relaxedFilter.apply(offers); len(relaxed) > len(selected) {
			selected = relaxed
		}
	}

	if len(selected) == 0 {
		// None match the criteria, use everything
		selected = slices.Clone(offers)
	}

	if len(selected) == 0 {
		return decimal.Zero, fmt.Errorf("%w for %s", errNoOffers, side)
	}

	slices.SortFunc(selected, func(a, b offer) int {
		if c := a.price.Cmp(b.price); c != 0 {
			if side == types.RateTypeBUY {
				return c
			}

			return -c
		}

		// Higher quality first
		switch {
		case a.quality > b.quality:
			return -1
		case a.quality < b.quality:
			return 1
		default:
			return 0
		}
	})

	if len(selected) > medianWindow {
		selected = selected[:medianWindow]
	}

	prices := make([]decimal.Decimal, len(selected))
	for i, o := range selected {
		prices[i] = o.price
	}

	return median(prices).Round(4), nil
}

// fetchOffers pages through the advertisements of one side of the market
func (f *BinanceP2PFetcher) fetchOffers(
	ctx context.Context,
	side types.RateType,
) ([]offer, error) {
	offers := make([]offer, 0, pageCount*pageRows)

	for page := 1; page <= pageCount; page++ {
		ads, err := f.fetchPage(ctx, side, page)
		if err != nil {
			return nil, err
		}

		if len(ads) == 0 {
			break
		}

		for _, ad := range ads {
			if o, ok := parseOffer(ad); ok {
				offers = append(offers, o)
			}
		}
	}

	if len(offers) == 0 {
		return nil, fmt.Errorf("%w for %s", errNoOffers, side)
	}

	return offers, nil
}

// fetchPage executes a single search request
func (f *BinanceP2PFetcher) fetchPage(
	ctx context.Context,
	side types.RateType,
	page int,
) ([]p2pAd, error) {
	body, err := json.Marshal(p2pSearchRequest{
		Asset:     currencies.USDT,
		Fiat:      currencies.VES,
		TradeType: side,
		Rows:      pageRows,
		Page:      page,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("unable to create POST request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to execute POST request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", errInvalidStatus, resp.StatusCode)
	}

	var searchResp p2pSearchResponse
	if err = json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("unable to decode response: %w", err)
	}

	return searchResp.Data, nil
}

// parseOffer converts the advertisement, dropping ones without a usable price
func parseOffer(ad p2pAd) (offer, bool) {
	price, err := decimal.NewFromString(ad.Adv.Price)
	if err != nil || !price.IsPositive() {
		return offer{}, false
	}

	var (
		minLimit, _ = parseFloat(ad.Adv.MinSingleTransAmount)
		maxLimit, _ = parseFloat(ad.Adv.MaxSingleTransAmount)
	)

	available, ok := parseFloat(ad.Adv.SurplusAmount)
	if !ok {
		available, _ = parseFloat(ad.Adv.TradableQuantity)
	}

	finishRate := normalizeFinishRate(ad.Advertiser.MonthFinishRate)

	return offer{
		price:      price,
		minLimit:   minLimit,
		maxLimit:   maxLimit,
		available:  available,
		orders:     ad.Advertiser.MonthOrderCount,
		finishRate: finishRate,
		quality:    wilsonLowerBound(finishRate, ad.Advertiser.MonthOrderCount),
	}, true
}

// apply returns the offers satisfying the filter
func (f offerFilter) apply(offers []offer) []offer {
	return slices.DeleteFunc(slices.Clone(offers), func(o offer) bool {
		if o.orders < f.minOrders || o.finishRate < f.minFinish {
			return true
		}

		if o.available > 0 && o.available < f.minAvailable {
			return true
		}

		if o.minLimit > 0 && typicalAmount < o.minLimit {
			return true
		}

		return o.maxLimit > 0 && typicalAmount > o.maxLimit
	})
}

// normalizeFinishRate maps the completion rate to [0, 1]
func normalizeFinishRate(rate float64) float64 {
	switch {
	case rate <= 0:
		return 0
	case rate > 1:
		return rate / 100
	default:
		return rate
	}
}

// wilsonLowerBound returns a conservative completion score,
// favoring advertisers with both a high rate and enough orders
func wilsonLowerBound(rate float64, n int) float64 {
	if n <= 0 {
		return 0
	}

	var (
		z           = 1.96
		count       = float64(n)
		denominator = 1 + z*z/count
		center      = rate + z*z/(2*count)
		adjust      = z * math.Sqrt((rate*(1-rate)+z*z/(4*count))/count)
	)

	return (center - adjust) / denominator
}

func parseFloat(value string) (float64, bool) {
	if value == "" {
		return 0, false
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}

	return parsed, true
}

// median returns the median of the (non-empty) values
func median(values []decimal.Decimal) decimal.Decimal {
	sorted := slices.Clone(values)
	slices.SortFunc(sorted, func(a, b decimal.Decimal) int {
		return a.Cmp(b)
	})

	n := len(sorted)
	if n%2 == 0 {
		return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
	}

	return sorted[n/2]
}
