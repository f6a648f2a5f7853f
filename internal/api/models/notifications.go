package models

import (
	"time"

	"github.com/goldwatch/goldwatch/internal/push"
)

// SubscribeRequest registers or refreshes a browser push subscription.
type SubscribeRequest struct {
	Subscription push.SubscriptionPayload `json:"subscription"`
	Metadata     *push.MetadataPayload    `json:"metadata,omitempty"`
}

// SubscribeResponse confirms a registration.
type SubscribeResponse struct {
	Success           bool      `json:"success"`
	Endpoint          string    `json:"endpoint"`
	PreferredCurrency string    `json:"preferredCurrency"`
	NextRefreshAt     time.Time `json:"nextRefreshAt"`
}

// UnsubscribeRequest removes a subscription by endpoint.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// UnsubscribeResponse confirms a removal attempt.
type UnsubscribeResponse struct {
	Success bool `json:"success"`
	Removed bool `json:"removed"`
}

// PublicKeyResponse exposes the VAPID public key clients subscribe with.
type PublicKeyResponse struct {
	Enabled                bool    `json:"enabled"`
	PublicKey              *string `json:"publicKey"`
	RefreshIntervalSeconds int     `json:"refreshIntervalSeconds"`
}

// Health is the liveness response.
type Health struct {
	Status  string                 `json:"status"`
	Time    time.Time              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}
