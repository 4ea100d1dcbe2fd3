package types

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	errInvalidSellRate   = errors.New("sell rate must be positive")
	errInvalidBuyRate    = errors.New("buy rate must be positive")
	errMissingCapturedAt = errors.New("missing capture time")
	errMissingSource     = errors.New("missing source")
)

type Currency string

func (c Currency) String() string {
	return string(c)
}

type RateType string

const (
	RateTypeMID  RateType = "MID"
	RateTypeBUY  RateType = "BUY"
	RateTypeSELL RateType = "SELL"
)

func (r RateType) String() string {
	return string(r)
}

type Source string

func (s Source) String() string {
	return string(s)
}

// ExchangeRate is a single rate observation yielded by an upstream fetcher
type ExchangeRate struct {
	AsOf      time.Time
	FetchedAt time.Time
	Base      Currency
	Target    Currency
	RateType  RateType
	Source    Source
	Rate      decimal.Decimal
}

// RateSample is one point-in-time snapshot of the VES rates.
//
// SellRate and BuyRate keep the upstream P2P market labels
// (the advertiser's side of the trade). The end-user facing
// view is derived at the wire boundary, never stored.
type RateSample struct {
	// CapturedAt is when the scrape producing the sample completed
	CapturedAt time.Time

	// CreatedAt is assigned by the storage backend on insert
	CreatedAt time.Time

	// Source identifies the upstream feed / strategy
	Source Source

	// BaseRate is the primary reference rate (USD/VES)
	BaseRate decimal.Decimal

	// SecondaryRate shares the quote currency (USDT/VES)
	SecondaryRate decimal.Decimal

	SellRate decimal.Decimal
	BuyRate  decimal.Decimal
}

// Validate verifies the sample invariants
func (s *RateSample) Validate() error {
	if !s.SellRate.IsPositive() {
		return errInvalidSellRate
	}

	if !s.BuyRate.IsPositive() {
		return errInvalidBuyRate
	}

	if s.CapturedAt.IsZero() {
		return errMissingCapturedAt
	}

	if s.Source == "" {
		return errMissingSource
	}

	return nil
}

// Equal reports whether the public fields of both samples match.
// The storage-assigned CreatedAt is ignored
func (s *RateSample) Equal(o *RateSample) bool {
	if s == nil || o == nil {
		return s == o
	}

	return s.CapturedAt.Equal(o.CapturedAt) &&
		s.Source == o.Source &&
		s.BaseRate.Equal(o.BaseRate) &&
		s.SecondaryRate.Equal(o.SecondaryRate) &&
		s.SellRate.Equal(o.SellRate) &&
		s.BuyRate.Equal(o.BuyRate)
}
