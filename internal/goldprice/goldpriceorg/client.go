// Package goldpriceorg provides a price feed client for the goldprice.org API.
package goldpriceorg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/goldwatch/goldwatch/internal/goldprice"
	"github.com/goldwatch/goldwatch/internal/provider/resilience"
)

const (
	// ProviderName identifies this price feed provider.
	ProviderName = "goldpriceorg"

	// DefaultBaseURL is the goldprice.org rates API base URL.
	DefaultBaseURL = "https://data-asg.goldprice.org/dbXRates"
)

// ClientConfig holds configuration for the goldprice.org client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to goldprice.org).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a goldprice.org rates API client.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new goldprice.org client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// CurrentRates fetches the latest gold and silver quote for a currency.
func (c *Client) CurrentRates(ctx context.Context, currency string) (goldprice.Quote, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	url := fmt.Sprintf("%s/%s", c.baseURL, currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return goldprice.Quote{}, fmt.Errorf("creating request: %w", err)
	}
	setBrowserHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goldprice.Quote{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return goldprice.Quote{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var rates ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&rates); err != nil {
		return goldprice.Quote{}, fmt.Errorf("decoding response: %w", err)
	}

	if len(rates.Items) == 0 {
		return goldprice.Quote{}, fmt.Errorf("response contained no rate items")
	}

	return c.toQuote(&rates, currency), nil
}

// toQuote converts a goldprice.org response to the domain quote.
func (c *Client) toQuote(resp *ratesResponse, currency string) goldprice.Quote {
	item := resp.Items[0]

	quoteCurrency := strings.ToUpper(strings.TrimSpace(item.Curr))
	if quoteCurrency == "" {
		quoteCurrency = currency
	}

	// The feed reports its timestamp in epoch milliseconds.
	timestamp := resp.Ts / 1000
	if resp.Ts == 0 {
		timestamp = time.Now().Unix()
	}

	return goldprice.Quote{
		Timestamp:           timestamp,
		Currency:            quoteCurrency,
		GoldPrice:           float64(item.XauPrice),
		GoldChange:          float64(item.ChgXau),
		GoldChangePercent:   float64(item.PcXau),
		GoldClose:           float64(item.XauClose),
		SilverPrice:         float64(item.XagPrice),
		SilverChange:        float64(item.ChgXag),
		SilverChangePercent: float64(item.PcXag),
		SilverClose:         float64(item.XagClose),
	}
}

// setBrowserHeaders mirrors the headers the goldprice.org site itself sends.
// The feed rejects requests that look like bots.
func setBrowserHeaders(req *http.Request) {
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en-GB;q=0.9,en;q=0.8")
	req.Header.Set("DNT", "1")
	req.Header.Set("Origin", "https://goldprice.org")
	req.Header.Set("Referer", "https://goldprice.org/")
	req.Header.Set("User-Agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36")
}

// goldprice.org API response structures.

type ratesResponse struct {
	Ts    int64      `json:"ts"`
	Items []rateItem `json:"items"`
}

type rateItem struct {
	Curr     string    `json:"curr"`
	XauPrice flexFloat `json:"xauPrice"`
	XagPrice flexFloat `json:"xagPrice"`
	ChgXau   flexFloat `json:"chgXau"`
	ChgXag   flexFloat `json:"chgXag"`
	PcXau    flexFloat `json:"pcXau"`
	PcXag    flexFloat `json:"pcXag"`
	XauClose flexFloat `json:"xauClose"`
	XagClose flexFloat `json:"xagClose"`
}

// flexFloat decodes a JSON number that the feed sometimes serializes as a
// string. Invalid or non-finite values decode to zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)

	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		*f = 0
		return nil
	}

	*f = flexFloat(parsed)
	return nil
}
