package push

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/goldwatch/goldwatch/internal/goldprice"
)

// notificationPayload is the JSON document handed to the Web Push
// encryption layer and ultimately to the browser's notification API.
type notificationPayload struct {
	Title string           `json:"title"`
	Body  string           `json:"body"`
	Tag   string           `json:"tag"`
	Data  notificationData `json:"data"`
}

// notificationData mirrors the quote for client-side deep linking.
type notificationData struct {
	Currency      string  `json:"currency"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Timestamp     int64   `json:"timestamp"`
}

// FormatQuoteNotification renders a gold price quote as a notification
// payload string. The tag collapses superseded notifications for the same
// currency in the browser.
func FormatQuoteNotification(quote goldprice.Quote) (string, error) {
	direction := "▲"
	if quote.GoldChange < 0 {
		direction = "▼"
	}

	body := fmt.Sprintf("%s %s %s %s (%s%%)",
		formatAmount(quote.GoldPrice),
		quote.Currency,
		direction,
		formatSigned(quote.GoldChange),
		formatSigned(quote.GoldChangePercent),
	)

	payload := notificationPayload{
		Title: fmt.Sprintf("Gold price update (%s)", quote.Currency),
		Body:  body,
		Tag:   "gold-price-" + strings.ToLower(quote.Currency),
		Data: notificationData{
			Currency:      quote.Currency,
			Price:         quote.GoldPrice,
			Change:        quote.GoldChange,
			ChangePercent: quote.GoldChangePercent,
			Timestamp:     quote.Timestamp,
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding notification payload: %w", err)
	}
	return string(raw), nil
}

// formatAmount renders a value with two decimals; non-finite values render
// as 0.00.
func formatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.00"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// formatSigned renders a value with an explicit sign and two decimals.
func formatSigned(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.00"
	}
	sign := "+"
	if v < 0 {
		sign = "-"
	}
	return sign + decimal.NewFromFloat(math.Abs(v)).StringFixed(2)
}
