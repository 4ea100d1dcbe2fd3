package currencies

import "github.com/sig-0/p2prates/storage/types"

var (
	USD  types.Currency = "USD"
	USDT types.Currency = "USDT"
	VES  types.Currency = "VES"
)
