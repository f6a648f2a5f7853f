// Package handler provides HTTP handlers for the GoldWatch API.
package handler

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/goldwatch/goldwatch/internal/api/models"
	"github.com/goldwatch/goldwatch/internal/api/response"
	"github.com/goldwatch/goldwatch/internal/goldprice"
)

// GoldHandler handles gold price endpoints.
type GoldHandler struct {
	prices *goldprice.Service
	logger zerolog.Logger
}

// NewGoldHandler creates a new GoldHandler.
func NewGoldHandler(prices *goldprice.Service, logger zerolog.Logger) *GoldHandler {
	return &GoldHandler{
		prices: prices,
		logger: logger.With().Str("handler", "gold").Logger(),
	}
}

// GetPrice handles GET /v1/gold/price - proxy the latest spot quote.
func (h *GoldHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	currency := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency")))
	if currency == "" {
		currency = goldprice.DefaultCurrency
	}
	if len(currency) < 3 || len(currency) > 6 {
		response.BadRequest(w, r, "invalid currency code", []models.FieldError{
			{Field: "currency", Message: "must be a 3 to 6 character currency code", Code: "invalid_format"},
		})
		return
	}

	quote, err := h.prices.CurrentPrice(r.Context(), currency)
	if err != nil {
		h.logger.Error().Err(err).Str("currency", currency).Msg("price fetch failed")
		response.ServiceUnavailable(w, r, "gold price feed is currently unavailable")
		return
	}

	response.JSON(w, r, http.StatusOK, models.GoldPriceQuote{
		Timestamp: quote.Timestamp,
		Metal:     "gold",
		Currency:  quote.Currency,
		XauPrice:  quote.GoldPrice,
		XagPrice:  quote.SilverPrice,
		ChgXau:    quote.GoldChange,
		ChgXag:    quote.SilverChange,
		PcXau:     quote.GoldChangePercent,
		PcXag:     quote.SilverChangePercent,
		XauClose:  quote.GoldClose,
		XagClose:  quote.SilverClose,
	})
}
