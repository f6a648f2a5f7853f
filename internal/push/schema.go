package push

import (
	"math"
	"strings"
)

// SubscriptionPayload is a raw subscription as posted by the browser.
// Validation (non-empty endpoint) happens at the API boundary; the
// normalizer assumes validated input.
type SubscriptionPayload struct {
	Endpoint       string       `json:"endpoint"`
	ExpirationTime *float64     `json:"expirationTime"`
	Keys           *KeysPayload `json:"keys"`
}

// KeysPayload carries raw, untrimmed encryption keys.
type KeysPayload struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// MetadataPayload is raw client context as posted alongside a subscription.
type MetadataPayload struct {
	Currency          string `json:"currency"`
	PreferredCurrency string `json:"preferredCurrency"`
	UserAgent         string `json:"userAgent"`
	Language          string `json:"language"`
	Platform          string `json:"platform"`
	Source            string `json:"source"`
	Timezone          string `json:"timezone"`
}

// NormalizeSubscription canonicalizes a raw subscription payload: the
// endpoint is trimmed, the expiration time is kept only when finite, and
// each key survives only when non-empty after trimming.
func NormalizeSubscription(raw SubscriptionPayload) Subscription {
	sub := Subscription{
		Endpoint: strings.TrimSpace(raw.Endpoint),
	}

	if raw.ExpirationTime != nil {
		v := *raw.ExpirationTime
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			ms := int64(math.Round(v))
			sub.ExpirationTime = &ms
		}
	}

	if raw.Keys != nil {
		sub.Keys.P256dh = strings.TrimSpace(raw.Keys.P256dh)
		sub.Keys.Auth = strings.TrimSpace(raw.Keys.Auth)
	}

	return sub
}

// NormalizeMetadata trims every field, drops empties, and resolves the
// preferred currency (preferredCurrency wins over currency, stored
// upper-cased). Returns nil when nothing survives, so "no metadata" is
// represented as absence rather than an empty object.
func NormalizeMetadata(raw *MetadataPayload) *Metadata {
	if raw == nil {
		return nil
	}

	m := Metadata{
		Currency:  strings.TrimSpace(raw.Currency),
		UserAgent: strings.TrimSpace(raw.UserAgent),
		Language:  strings.TrimSpace(raw.Language),
		Platform:  strings.TrimSpace(raw.Platform),
		Source:    strings.TrimSpace(raw.Source),
		Timezone:  strings.TrimSpace(raw.Timezone),
	}

	preferred := strings.TrimSpace(raw.PreferredCurrency)
	if preferred == "" {
		preferred = m.Currency
	}
	m.PreferredCurrency = strings.ToUpper(preferred)

	if m == (Metadata{}) {
		return nil
	}
	return &m
}

// PreferredCurrency resolves the delivery currency for a subscription:
// preferredCurrency, else currency, upper-cased, else the fallback.
func PreferredCurrency(m *Metadata, fallback string) string {
	if m == nil {
		return fallback
	}

	candidate := m.PreferredCurrency
	if candidate == "" {
		candidate = m.Currency
	}
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return fallback
	}
	return strings.ToUpper(candidate)
}
