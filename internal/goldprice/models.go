// Package goldprice provides precious-metal price quotes from upstream feeds.
package goldprice

import (
	"context"
	"errors"
)

// DefaultCurrency is the currency used when a request does not name one.
const DefaultCurrency = "USD"

// Feed errors.
var (
	// ErrNoHistoricalData is returned when historical prices are requested.
	// The upstream feed only serves live quotes.
	ErrNoHistoricalData = errors.New("historical price data is not available")
)

// Quote is a point-in-time price quote for gold and silver in one currency.
type Quote struct {
	// Timestamp is the quote time in epoch seconds.
	Timestamp int64

	// Currency is the upper-cased ISO currency code of the quote.
	Currency string

	// Gold (XAU) figures, per troy ounce.
	GoldPrice         float64
	GoldChange        float64
	GoldChangePercent float64
	GoldClose         float64

	// Silver (XAG) figures, per troy ounce.
	SilverPrice         float64
	SilverChange        float64
	SilverChangePercent float64
	SilverClose         float64
}

// Client fetches live quotes from an upstream price feed.
type Client interface {
	// CurrentRates returns the latest quote for the given currency code.
	CurrentRates(ctx context.Context, currency string) (Quote, error)

	// Name returns the provider name.
	Name() string
}
