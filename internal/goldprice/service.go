package goldprice

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the price service.
type ServiceConfig struct {
	Client Client
	Logger zerolog.Logger

	// CacheTTL is how long a fetched quote stays fresh per currency.
	// Default: 30 seconds
	CacheTTL time.Duration
}

// Service provides price quotes with a short-lived per-currency cache so that
// the notification scheduler and the API surface don't hammer the upstream
// feed for the same currency.
type Service struct {
	client   Client
	logger   zerolog.Logger
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cachedQuote
}

type cachedQuote struct {
	quote     Quote
	fetchedAt time.Time
}

// NewService creates a new price service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		client:   cfg.Client,
		logger:   cfg.Logger,
		cacheTTL: cacheTTL,
		cache:    make(map[string]cachedQuote),
	}
}

// CurrentPrice returns the latest quote for a currency, served from cache
// when fresh.
func (s *Service) CurrentPrice(ctx context.Context, currency string) (Quote, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	s.mu.Lock()
	if cached, ok := s.cache[currency]; ok && time.Since(cached.fetchedAt) < s.cacheTTL {
		s.mu.Unlock()
		return cached.quote, nil
	}
	s.mu.Unlock()

	quote, err := s.client.CurrentRates(ctx, currency)
	if err != nil {
		return Quote{}, fmt.Errorf("fetching %s rates from %s: %w", currency, s.client.Name(), err)
	}

	s.mu.Lock()
	s.cache[currency] = cachedQuote{quote: quote, fetchedAt: time.Now()}
	s.mu.Unlock()

	return quote, nil
}

// HistoricalPoint is a single day in a historical price series.
type HistoricalPoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// Historical reports that no historical series is available. The upstream
// feed has no history endpoint and fabricating a series would be worse than
// returning nothing.
func (s *Service) Historical(_ context.Context, currency string, days int) ([]HistoricalPoint, error) {
	s.logger.Warn().
		Str("currency", currency).
		Int("days", days).
		Msg("historical price data requested but unavailable upstream")
	return nil, ErrNoHistoricalData
}
