// Package push manages the Web Push subscription registry and delivers
// gold price notifications to subscribed browsers.
package push

import (
	"errors"
)

// Service errors.
var (
	// ErrNotConfigured is returned when VAPID credentials are missing.
	ErrNotConfigured = errors.New("push notifications are not configured")

	// ErrSubscriptionNotFound is returned for lookups of unknown endpoints.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// DefaultCurrency is the preferred currency assumed when a subscription
// carries no currency metadata.
const DefaultCurrency = "USD"

// Keys holds the client encryption keys of a Web Push subscription.
type Keys struct {
	P256dh string `json:"p256dh,omitempty"`
	Auth   string `json:"auth,omitempty"`
}

// Subscription is a normalized browser push subscription.
type Subscription struct {
	// Endpoint is the push service URL and the sole identity of a
	// subscription.
	Endpoint string `json:"endpoint"`

	// ExpirationTime is the subscription expiry in epoch milliseconds,
	// nil when the push service reports none.
	ExpirationTime *int64 `json:"expirationTime"`

	Keys Keys `json:"keys"`
}

// Metadata is normalized client context attached to a subscription.
type Metadata struct {
	PreferredCurrency string `json:"preferredCurrency,omitempty"`
	Currency          string `json:"currency,omitempty"`
	UserAgent         string `json:"userAgent,omitempty"`
	Language          string `json:"language,omitempty"`
	Platform          string `json:"platform,omitempty"`
	Source            string `json:"source,omitempty"`
	Timezone          string `json:"timezone,omitempty"`
}

// StoredSubscription is a subscription as kept in the registry, with
// lifecycle timestamps in epoch milliseconds.
type StoredSubscription struct {
	Subscription
	Metadata       *Metadata `json:"metadata,omitempty"`
	CreatedAt      int64     `json:"createdAt"`
	UpdatedAt      int64     `json:"updatedAt"`
	LastNotifiedAt int64     `json:"lastNotifiedAt,omitempty"`
}

// Stats summarizes one delivery cycle.
type Stats struct {
	Total     int `json:"total"`
	Delivered int `json:"delivered"`
	Failures  int `json:"failures"`
	Pruned    int `json:"pruned"`
	Skipped   int `json:"skipped"`
}

// ServiceStatus reports the current state of the push service.
type ServiceStatus struct {
	Enabled       bool     `json:"enabled"`
	Subscriptions int      `json:"subscriptions"`
	Currencies    []string `json:"currencies"`
}

func cloneStored(s *StoredSubscription) StoredSubscription {
	out := *s
	if s.ExpirationTime != nil {
		v := *s.ExpirationTime
		out.ExpirationTime = &v
	}
	if s.Metadata != nil {
		m := *s.Metadata
		out.Metadata = &m
	}
	return out
}
