package push

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"

	"github.com/goldwatch/goldwatch/internal/goldprice"
)

const (
	// DefaultNotifyInterval is how often the delivery cycle runs.
	DefaultNotifyInterval = 60 * time.Second

	// SubscriptionRefreshInterval is how often clients should re-post their
	// subscription to keep it fresh.
	SubscriptionRefreshInterval = 12 * time.Hour

	// DefaultSubject is the VAPID contact used when none is configured.
	DefaultSubject = "mailto:notifications@goldwatch.app"
)

// PriceSource provides the quote for one currency per delivery cycle.
type PriceSource interface {
	CurrentPrice(ctx context.Context, currency string) (goldprice.Quote, error)
}

// PushOptions carries the per-message Web Push parameters.
type PushOptions struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int
	Topic           string
}

// Pusher delivers one encrypted message to a push service endpoint and
// returns the HTTP status code the push service answered with.
type Pusher interface {
	Push(ctx context.Context, sub Subscription, payload []byte, opts PushOptions) (int, error)
}

// ServiceConfig holds configuration for the push delivery service.
type ServiceConfig struct {
	Store  *Store
	Prices PriceSource
	Logger zerolog.Logger

	// Interval between delivery cycles. Default: DefaultNotifyInterval.
	Interval time.Duration

	// Subject is the fallback VAPID contact. Default: DefaultSubject.
	Subject string

	// Pusher overrides the Web Push transport, used by tests.
	// Default: webpush-go.
	Pusher Pusher
}

// Service owns the notification pipeline: it registers subscriptions,
// groups them by preferred currency, fetches one quote per currency,
// and delivers one formatted payload per group on a fixed interval.
type Service struct {
	store           *Store
	prices          PriceSource
	logger          zerolog.Logger
	interval        time.Duration
	fallbackSubject string
	pusher          Pusher

	// VAPID credentials, re-read from the environment on every
	// config-sensitive call so keys can rotate without a restart.
	cfgMu           sync.Mutex
	vapidPublicKey  string
	vapidPrivateKey string
	vapidSubject    string
	configured      bool

	// Re-entrancy guard for delivery cycles: at most one cycle runs and at
	// most one more is queued.
	runMu      sync.Mutex
	inFlight   bool
	pendingRun bool

	schedMu sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewService creates a push delivery service.
func NewService(cfg ServiceConfig) *Service {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultNotifyInterval
	}

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}

	pusher := cfg.Pusher
	if pusher == nil {
		pusher = webPusher{}
	}

	s := &Service{
		store:           cfg.Store,
		prices:          cfg.Prices,
		logger:          cfg.Logger,
		interval:        interval,
		fallbackSubject: subject,
		pusher:          pusher,
	}
	s.SyncConfiguration()
	return s
}

// SyncConfiguration re-reads the VAPID credentials from the environment and
// applies them only when something actually changed.
func (s *Service) SyncConfiguration() {
	publicKey := strings.TrimSpace(firstEnv("VAPID_PUBLIC_KEY", "WEB_PUSH_PUBLIC_KEY", "VITE_VAPID_PUBLIC_KEY"))
	privateKey := strings.TrimSpace(firstEnv("VAPID_PRIVATE_KEY", "WEB_PUSH_PRIVATE_KEY"))
	subject := strings.TrimSpace(firstEnv("VAPID_SUBJECT", "WEB_PUSH_CONTACT"))
	if subject == "" {
		subject = s.fallbackSubject
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	if publicKey == s.vapidPublicKey && privateKey == s.vapidPrivateKey && subject == s.vapidSubject {
		return
	}

	s.vapidPublicKey = publicKey
	s.vapidPrivateKey = privateKey
	s.vapidSubject = subject
	s.configured = publicKey != "" && privateKey != ""
}

// Enabled reports whether both VAPID keys are configured.
func (s *Service) Enabled() bool {
	s.SyncConfiguration()
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.configured
}

// PublicKey returns the VAPID public key clients subscribe with, or empty
// when the service is not configured.
func (s *Service) PublicKey() string {
	s.SyncConfiguration()
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.vapidPublicKey
}

// Interval returns the delivery cycle interval.
func (s *Service) Interval() time.Duration {
	return s.interval
}

// Status reports the current service state for the API surface.
func (s *Service) Status() ServiceStatus {
	subs := s.store.List()

	seen := make(map[string]struct{})
	for i := range subs {
		seen[PreferredCurrency(subs[i].Metadata, DefaultCurrency)] = struct{}{}
	}
	currencies := make([]string, 0, len(seen))
	for c := range seen {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	return ServiceStatus{
		Enabled:       s.Enabled(),
		Subscriptions: len(subs),
		Currencies:    currencies,
	}
}

// Register normalizes and stores a subscription. Returns ErrNotConfigured
// when VAPID credentials are absent, so the API layer can answer with a
// dedicated "not configured" status.
func (s *Service) Register(raw SubscriptionPayload, metadata *MetadataPayload) (StoredSubscription, error) {
	if !s.Enabled() {
		return StoredSubscription{}, ErrNotConfigured
	}

	sub := NormalizeSubscription(raw)
	stored := s.store.Upsert(sub, NormalizeMetadata(metadata))
	return stored, nil
}

// Unregister removes a subscription and flushes the registry to disk.
func (s *Service) Unregister(endpoint string) bool {
	removed := s.store.Remove(endpoint)
	if err := s.store.Flush(); err != nil {
		s.logger.Error().Err(err).Msg("failed to flush subscription registry")
	}
	return removed
}

// NotifySubscribers runs one delivery cycle and returns its stats. Fetch,
// delivery, and persistence problems are handled inside the cycle; they are
// logged and counted, never returned.
func (s *Service) NotifySubscribers(ctx context.Context) Stats {
	s.SyncConfiguration()

	subscriptions := s.store.List()
	stats := Stats{Total: len(subscriptions)}

	s.cfgMu.Lock()
	configured := s.configured
	opts := PushOptions{
		Subscriber:      s.vapidSubject,
		VAPIDPublicKey:  s.vapidPublicKey,
		VAPIDPrivateKey: s.vapidPrivateKey,
		TTL:             int(s.interval/time.Second) + 30,
	}
	s.cfgMu.Unlock()

	if !configured || len(subscriptions) == 0 {
		stats.Skipped = len(subscriptions)
		return stats
	}

	// Bucket subscriptions by preferred currency so the feed is queried
	// once per distinct currency.
	grouped := make(map[string][]StoredSubscription)
	for _, sub := range subscriptions {
		currency := PreferredCurrency(sub.Metadata, DefaultCurrency)
		grouped[currency] = append(grouped[currency], sub)
	}

	quotes := make(map[string]goldprice.Quote, len(grouped))
	for currency := range grouped {
		quote, err := s.prices.CurrentPrice(ctx, currency)
		if err != nil {
			// This bucket sits out the cycle; the next tick retries.
			s.logger.Error().Err(err).Str("currency", currency).Msg("failed to fetch gold price")
			continue
		}
		quotes[currency] = quote
	}

	results := make(chan deliveryResult)
	var wg sync.WaitGroup

	for currency, group := range grouped {
		quote, ok := quotes[currency]
		if !ok {
			stats.Skipped += len(group)
			continue
		}

		payload, err := FormatQuoteNotification(quote)
		if err != nil {
			s.logger.Error().Err(err).Str("currency", currency).Msg("failed to format notification payload")
			stats.Skipped += len(group)
			continue
		}

		topic := "gold-" + strings.ToLower(currency)
		for _, sub := range group {
			wg.Add(1)
			go func(sub StoredSubscription) {
				defer wg.Done()
				sendOpts := opts
				sendOpts.Topic = topic
				results <- s.send(ctx, sub, payload, sendOpts, quote.Timestamp)
			}(sub)
		}
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		switch {
		case result.delivered:
			stats.Delivered++
		case result.pruned:
			stats.Pruned++
		default:
			stats.Failures++
		}
	}

	return stats
}

type deliveryResult struct {
	delivered bool
	pruned    bool
}

// send delivers one notification and records the outcome in the store.
func (s *Service) send(ctx context.Context, sub StoredSubscription, payload string, opts PushOptions, quoteTimestamp int64) deliveryResult {
	status, err := s.pusher.Push(ctx, sub.Subscription, []byte(payload), opts)
	masked := maskEndpoint(sub.Endpoint)

	if err != nil {
		s.logger.Error().Err(err).Str("endpoint", masked).Msg("failed to deliver notification")
		return deliveryResult{}
	}

	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		// The push service no longer knows this subscription; retrying is
		// meaningless.
		s.logger.Warn().Str("endpoint", masked).Int("status", status).Msg("removing unreachable subscription")
		s.store.Remove(sub.Endpoint)
		return deliveryResult{pruned: true}
	case status >= 200 && status < 300:
		if _, err := s.store.MarkDelivered(sub.Endpoint, toEpochMillis(quoteTimestamp)); err != nil {
			s.logger.Warn().Str("endpoint", masked).Msg("delivered to subscription no longer in registry")
		}
		return deliveryResult{delivered: true}
	default:
		s.logger.Error().Str("endpoint", masked).Int("status", status).Msg("push service rejected notification")
		return deliveryResult{}
	}
}

// Start launches the delivery scheduler: one immediate cycle, then one per
// interval. Calling Start while running is a no-op, as is starting an
// unconfigured service.
func (s *Service) Start() {
	s.schedMu.Lock()
	defer s.schedMu.Unlock()

	if s.stopCh != nil {
		return
	}

	if !s.Enabled() {
		s.logger.Warn().Msg("push notifications disabled: VAPID credentials are missing")
		return
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.loop(s.stopCh, s.doneCh)
}

func (s *Service) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runCycle()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.runCycle()
		}
	}
}

// runCycle executes delivery cycles under the re-entrancy guard: a trigger
// arriving while a cycle is in flight queues exactly one follow-up cycle
// instead of running concurrently.
func (s *Service) runCycle() {
	s.runMu.Lock()
	if s.inFlight {
		s.pendingRun = true
		s.runMu.Unlock()
		return
	}
	s.inFlight = true
	s.runMu.Unlock()

	for {
		stats := s.NotifySubscribers(context.Background())
		if stats.Delivered > 0 || stats.Pruned > 0 || stats.Failures > 0 {
			s.logger.Info().
				Int("total", stats.Total).
				Int("delivered", stats.Delivered).
				Int("failures", stats.Failures).
				Int("pruned", stats.Pruned).
				Int("skipped", stats.Skipped).
				Msg("notification cycle completed")
		}

		s.runMu.Lock()
		if s.pendingRun {
			s.pendingRun = false
			s.runMu.Unlock()
			continue
		}
		s.inFlight = false
		s.runMu.Unlock()
		return
	}
}

// TriggerCycle requests a delivery cycle outside the schedule, subject to
// the same re-entrancy guard. It returns without waiting for the cycle.
func (s *Service) TriggerCycle() {
	go s.runCycle()
}

// Stop halts the scheduler and flushes the registry. Safe to call more than
// once and on a never-started service.
func (s *Service) Stop() {
	s.schedMu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.schedMu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	if err := s.store.Flush(); err != nil {
		s.logger.Error().Err(err).Msg("failed to flush subscription registry")
	}
}

// webPusher is the production Pusher backed by webpush-go.
type webPusher struct{}

func (webPusher) Push(ctx context.Context, sub Subscription, payload []byte, opts PushOptions) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		Subscriber:      opts.Subscriber,
		VAPIDPublicKey:  opts.VAPIDPublicKey,
		VAPIDPrivateKey: opts.VAPIDPrivateKey,
		TTL:             opts.TTL,
		Topic:           opts.Topic,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// maskEndpoint truncates a push endpoint for logging so full push URLs,
// which act as capabilities, never land in logs.
func maskEndpoint(endpoint string) string {
	if len(endpoint) <= 33 {
		return endpoint
	}
	return endpoint[:25] + "…" + endpoint[len(endpoint)-8:]
}

// toEpochMillis normalizes a timestamp that may be in epoch seconds or
// epoch milliseconds to milliseconds.
func toEpochMillis(ts int64) int64 {
	if ts <= 0 {
		return time.Now().UnixMilli()
	}
	if ts > 1_000_000_000_000 {
		return ts
	}
	return ts * 1000
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
