package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldwatch/goldwatch/internal/api"
	"github.com/goldwatch/goldwatch/internal/api/models"
	"github.com/goldwatch/goldwatch/internal/goldprice"
	"github.com/goldwatch/goldwatch/internal/push"
)

// stubFeedClient serves a canned quote or error for every currency.
type stubFeedClient struct {
	quote goldprice.Quote
	err   error
}

func (c *stubFeedClient) CurrentRates(_ context.Context, currency string) (goldprice.Quote, error) {
	if c.err != nil {
		return goldprice.Quote{}, c.err
	}
	q := c.quote
	q.Currency = currency
	return q, nil
}

func (c *stubFeedClient) Name() string { return "stub" }

// nopPusher accepts every delivery.
type nopPusher struct{}

func (nopPusher) Push(context.Context, push.Subscription, []byte, push.PushOptions) (int, error) {
	return http.StatusCreated, nil
}

type routerFixture struct {
	router http.Handler
	store  *push.Store
}

func newRouterFixture(t *testing.T, feed goldprice.Client) *routerFixture {
	t.Helper()

	store := push.NewStore(push.StoreConfig{
		Path:     filepath.Join(t.TempDir(), "subscriptions.json"),
		Debounce: -1,
		Logger:   zerolog.Nop(),
	})

	priceService := goldprice.NewService(goldprice.ServiceConfig{
		Client: feed,
		Logger: zerolog.Nop(),
	})

	pushService := push.NewService(push.ServiceConfig{
		Store:  store,
		Prices: priceService,
		Logger: zerolog.Nop(),
		Pusher: nopPusher{},
	})
	t.Cleanup(pushService.Stop)

	router := api.NewRouter(api.RouterConfig{
		Version:      "test",
		BuildTime:    "2026-01-01T00:00:00Z",
		Logger:       zerolog.New(io.Discard),
		PriceService: priceService,
		PushService:  pushService,
	})

	return &routerFixture{router: router, store: store}
}

func setVAPIDEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VAPID_PUBLIC_KEY", "test-public-key")
	t.Setenv("VAPID_PRIVATE_KEY", "test-private-key")
}

func clearVAPIDEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"VAPID_PUBLIC_KEY", "WEB_PUSH_PUBLIC_KEY", "VITE_VAPID_PUBLIC_KEY",
		"VAPID_PRIVATE_KEY", "WEB_PUSH_PRIVATE_KEY",
	} {
		t.Setenv(name, "")
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthCheck(t *testing.T) {
	clearVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	w := doJSON(t, f.router, http.MethodGet, "/v1/ops/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_SecurityHeaders(t *testing.T) {
	clearVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	w := doJSON(t, f.router, http.MethodGet, "/v1/ops/health", nil)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestRouter_GetPrice(t *testing.T) {
	clearVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{quote: goldprice.Quote{
		Timestamp:         1764000000,
		GoldPrice:         2345.67,
		GoldChange:        12.34,
		GoldChangePercent: 0.53,
		SilverPrice:       28.91,
	}})

	w := doJSON(t, f.router, http.MethodGet, "/v1/gold/price?currency=eur", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var quote models.GoldPriceQuote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.Equal(t, "gold", quote.Metal)
	assert.Equal(t, "EUR", quote.Currency)
	assert.InDelta(t, 2345.67, quote.XauPrice, 1e-9)
	assert.InDelta(t, 28.91, quote.XagPrice, 1e-9)
	assert.Equal(t, int64(1764000000), quote.Timestamp)
}

func TestRouter_GetPriceDefaultsToUSD(t *testing.T) {
	clearVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{quote: goldprice.Quote{GoldPrice: 2000}})

	w := doJSON(t, f.router, http.MethodGet, "/v1/gold/price", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var quote models.GoldPriceQuote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.Equal(t, "USD", quote.Currency)
}

func TestRouter_GetPriceInvalidCurrency(t *testing.T) {
	clearVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	for _, currency := range []string{"ab", "toolongcode"} {
		w := doJSON(t, f.router, http.MethodGet, "/v1/gold/price?currency="+currency, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

		var problem models.Problem
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
		require.Len(t, problem.Errors, 1)
		assert.Equal(t, "currency", problem.Errors[0].Field)
	}
}

func TestRouter_GetPriceUpstreamFailure(t *testing.T) {
	clearVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{err: errors.New("feed blocked")})

	w := doJSON(t, f.router, http.MethodGet, "/v1/gold/price", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeUnavailable, problem.Type)
}

func TestRouter_GetPublicKey(t *testing.T) {
	setVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	w := doJSON(t, f.router, http.MethodGet, "/v1/notifications/public-key", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.PublicKeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Enabled)
	require.NotNil(t, resp.PublicKey)
	assert.Equal(t, "test-public-key", *resp.PublicKey)
	assert.Equal(t, 43200, resp.RefreshIntervalSeconds)
}

func TestRouter_GetPublicKeyNotConfigured(t *testing.T) {
	clearVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	w := doJSON(t, f.router, http.MethodGet, "/v1/notifications/public-key", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.PublicKeyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Enabled)
	assert.Nil(t, resp.PublicKey)
}

func TestRouter_Subscribe(t *testing.T) {
	setVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	w := doJSON(t, f.router, http.MethodPost, "/v1/notifications/subscriptions", models.SubscribeRequest{
		Subscription: push.SubscriptionPayload{
			Endpoint: "https://push.example.com/send/abc",
			Keys:     &push.KeysPayload{P256dh: "k", Auth: "a"},
		},
		Metadata: &push.MetadataPayload{Currency: "eur"},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.SubscribeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "https://push.example.com/send/abc", resp.Endpoint)
	assert.Equal(t, "EUR", resp.PreferredCurrency)
	assert.False(t, resp.NextRefreshAt.IsZero())

	assert.Equal(t, 1, f.store.Len())
}

func TestRouter_SubscribeMissingEndpoint(t *testing.T) {
	setVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	w := doJSON(t, f.router, http.MethodPost, "/v1/notifications/subscriptions", models.SubscribeRequest{
		Subscription: push.SubscriptionPayload{Endpoint: "   "},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	require.NotEmpty(t, problem.Errors)
	assert.Equal(t, "subscription.endpoint", problem.Errors[0].Field)
	assert.Equal(t, 0, f.store.Len())
}

func TestRouter_SubscribeInvalidMetadataCurrency(t *testing.T) {
	setVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	w := doJSON(t, f.router, http.MethodPost, "/v1/notifications/subscriptions", models.SubscribeRequest{
		Subscription: push.SubscriptionPayload{Endpoint: "https://push.example.com/send/abc"},
		Metadata:     &push.MetadataPayload{PreferredCurrency: "a"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_SubscribeInvalidJSON(t *testing.T) {
	setVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/subscriptions", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_SubscribeNotConfigured(t *testing.T) {
	clearVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	w := doJSON(t, f.router, http.MethodPost, "/v1/notifications/subscriptions", models.SubscribeRequest{
		Subscription: push.SubscriptionPayload{Endpoint: "https://push.example.com/send/abc"},
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeNotConfigured, problem.Type)
}

func TestRouter_SubscribeRejectsNonJSONContentType(t *testing.T) {
	setVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/subscriptions", bytes.NewReader([]byte("endpoint=x")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_Unsubscribe(t *testing.T) {
	setVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	f.store.Upsert(push.Subscription{Endpoint: "https://push.example.com/send/abc"}, nil)

	w := doJSON(t, f.router, http.MethodDelete, "/v1/notifications/subscriptions", models.UnsubscribeRequest{
		Endpoint: "https://push.example.com/send/abc",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.UnsubscribeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Removed)
	assert.Equal(t, 0, f.store.Len())
}

func TestRouter_UnsubscribeUnknownEndpoint(t *testing.T) {
	setVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	w := doJSON(t, f.router, http.MethodDelete, "/v1/notifications/subscriptions", models.UnsubscribeRequest{
		Endpoint: "https://push.example.com/send/missing",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.UnsubscribeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.False(t, resp.Removed)
}

func TestRouter_UnsubscribeMissingEndpoint(t *testing.T) {
	setVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	w := doJSON(t, f.router, http.MethodDelete, "/v1/notifications/subscriptions", models.UnsubscribeRequest{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_Status(t *testing.T) {
	setVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	f.store.Upsert(push.Subscription{Endpoint: "https://push.example.com/send/a"}, &push.Metadata{PreferredCurrency: "EUR"})
	f.store.Upsert(push.Subscription{Endpoint: "https://push.example.com/send/b"}, nil)

	w := doJSON(t, f.router, http.MethodGet, "/v1/notifications/status", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var status push.ServiceStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Enabled)
	assert.Equal(t, 2, status.Subscriptions)
	assert.Equal(t, []string{"EUR", "USD"}, status.Currencies)
}

func TestRouter_UnknownRoute(t *testing.T) {
	clearVAPIDEnv(t)
	f := newRouterFixture(t, &stubFeedClient{})

	w := doJSON(t, f.router, http.MethodGet, "/v1/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
