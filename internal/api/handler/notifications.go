package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/goldwatch/goldwatch/internal/api/models"
	"github.com/goldwatch/goldwatch/internal/api/response"
	"github.com/goldwatch/goldwatch/internal/goldprice"
	"github.com/goldwatch/goldwatch/internal/push"
)

// NotificationsHandler handles push subscription endpoints.
type NotificationsHandler struct {
	service *push.Service
	logger  zerolog.Logger
}

// NewNotificationsHandler creates a new NotificationsHandler.
func NewNotificationsHandler(service *push.Service, logger zerolog.Logger) *NotificationsHandler {
	return &NotificationsHandler{
		service: service,
		logger:  logger.With().Str("handler", "notifications").Logger(),
	}
}

// GetPublicKey handles GET /v1/notifications/public-key - VAPID key discovery.
func (h *NotificationsHandler) GetPublicKey(w http.ResponseWriter, r *http.Request) {
	resp := models.PublicKeyResponse{
		Enabled:                h.service.Enabled(),
		RefreshIntervalSeconds: int(push.SubscriptionRefreshInterval / time.Second),
	}
	if key := h.service.PublicKey(); key != "" {
		resp.PublicKey = &key
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// GetStatus handles GET /v1/notifications/status - delivery service state.
func (h *NotificationsHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.service.Status())
}

// Subscribe handles POST /v1/notifications/subscriptions - register or
// refresh a browser push subscription.
func (h *NotificationsHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var input models.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var fieldErrors []models.FieldError
	if strings.TrimSpace(input.Subscription.Endpoint) == "" {
		fieldErrors = append(fieldErrors, models.FieldError{
			Field: "subscription.endpoint", Message: "must not be empty", Code: "required",
		})
	}
	if input.Metadata != nil {
		if err := validateCurrencyField("metadata.preferredCurrency", input.Metadata.PreferredCurrency); err != nil {
			fieldErrors = append(fieldErrors, *err)
		}
		if err := validateCurrencyField("metadata.currency", input.Metadata.Currency); err != nil {
			fieldErrors = append(fieldErrors, *err)
		}
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid subscription", fieldErrors)
		return
	}

	stored, err := h.service.Register(input.Subscription, input.Metadata)
	if err != nil {
		if errors.Is(err, push.ErrNotConfigured) {
			response.PushNotConfigured(w, r)
			return
		}
		h.logger.Error().Err(err).Msg("subscription registration failed")
		response.InternalError(w, r, "failed to register subscription")
		return
	}

	response.JSON(w, r, http.StatusOK, models.SubscribeResponse{
		Success:           true,
		Endpoint:          stored.Endpoint,
		PreferredCurrency: push.PreferredCurrency(stored.Metadata, goldprice.DefaultCurrency),
		NextRefreshAt:     time.Now().Add(push.SubscriptionRefreshInterval).UTC(),
	})
}

// Unsubscribe handles DELETE /v1/notifications/subscriptions - remove a
// subscription by endpoint.
func (h *NotificationsHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var input models.UnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	endpoint := strings.TrimSpace(input.Endpoint)
	if endpoint == "" {
		response.BadRequest(w, r, "invalid request", []models.FieldError{
			{Field: "endpoint", Message: "must not be empty", Code: "required"},
		})
		return
	}

	removed := h.service.Unregister(endpoint)
	response.JSON(w, r, http.StatusOK, models.UnsubscribeResponse{
		Success: true,
		Removed: removed,
	})
}

// validateCurrencyField checks an optional currency code field. Empty values
// are allowed, the registry falls back to the default currency.
func validateCurrencyField(field, value string) *models.FieldError {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	if len(v) < 3 || len(v) > 6 {
		return &models.FieldError{
			Field: field, Message: "must be a 3 to 6 character currency code", Code: "invalid_format",
		}
	}
	return nil
}
