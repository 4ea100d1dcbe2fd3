package broadcast

import (
	"time"

	"github.com/sig-0/p2prates/storage/types"
)

// Payload is the wire representation of a rate sample,
// shared by the live feed, the query routes and the NATS publisher
type Payload struct {
	LastUpdated time.Time `json:"lastUpdated"`
	Source      string    `json:"source"`
	USDVES      float64   `json:"usd_ves"`
	USDTVES     float64   `json:"usdt_ves"`
	SellRate    float64   `json:"sell_rate"`
	BuyRate     float64   `json:"buy_rate"`
}

// NewPayload converts the sample into the end-user view.
//
// Samples carry the P2P advertiser labels: SellRate is what
// advertisers sell USDT at, which is the price the end user buys at.
// The wire payload is labeled from the end user's side,
// so the two rates swap here, and only here
func NewPayload(sample *types.RateSample) *Payload {
	if sample == nil {
		return nil
	}

	return &Payload{
		LastUpdated: sample.CapturedAt.UTC(),
		Source:      sample.Source.String(),
		USDVES:      sample.BaseRate.InexactFloat64(),
		USDTVES:     sample.SecondaryRate.InexactFloat64(),
		BuyRate:     sample.SellRate.InexactFloat64(),
		SellRate:    sample.BuyRate.InexactFloat64(),
	}
}
