package push

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultPersistDebounce is the default window in which registry mutations
// collapse into a single disk write.
const DefaultPersistDebounce = 250 * time.Millisecond

// StoreConfig holds configuration for the subscription store.
type StoreConfig struct {
	// Path is the JSON registry file backing the store.
	Path string

	// Debounce is the persist debounce window. Zero uses
	// DefaultPersistDebounce; a negative value persists synchronously on
	// every mutation, which tests rely on.
	Debounce time.Duration

	// Logger for store operations.
	Logger zerolog.Logger
}

// Store is a durable registry of push subscriptions keyed by endpoint.
// Mutations update the in-memory map synchronously and schedule a debounced
// write of the full registry to disk; the file is replaced atomically so a
// crash mid-write never corrupts the previously committed state.
type Store struct {
	path     string
	debounce time.Duration
	logger   zerolog.Logger

	mu   sync.Mutex
	subs map[string]*StoredSubscription

	timerMu      sync.Mutex
	persistTimer *time.Timer

	// persistMu serializes writes of the registry file.
	persistMu sync.Mutex
}

// NewStore creates a store backed by the given file, loading any existing
// registry. A missing or unreadable file is not fatal: the store starts
// empty and logs the problem.
func NewStore(cfg StoreConfig) *Store {
	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = DefaultPersistDebounce
	}
	if debounce < 0 {
		debounce = 0
	}

	s := &Store{
		path:     cfg.Path,
		debounce: debounce,
		logger:   cfg.Logger,
		subs:     make(map[string]*StoredSubscription),
	}
	s.loadFromDisk()
	return s
}

// List returns a snapshot copy of all subscriptions.
func (s *Store) List() []StoredSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StoredSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, cloneStored(sub))
	}
	return out
}

// Len returns the number of registered subscriptions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Get retrieves a subscription by endpoint.
func (s *Store) Get(endpoint string) (StoredSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[endpoint]
	if !ok {
		return StoredSubscription{}, ErrSubscriptionNotFound
	}
	return cloneStored(sub), nil
}

// Upsert adds or updates a subscription. Re-registering an endpoint keeps
// its original createdAt and lastNotifiedAt and replaces keys and metadata.
func (s *Store) Upsert(sub Subscription, metadata *Metadata) StoredSubscription {
	now := time.Now().UnixMilli()

	s.mu.Lock()
	record := &StoredSubscription{
		Subscription: sub,
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing, ok := s.subs[sub.Endpoint]; ok {
		record.CreatedAt = existing.CreatedAt
		record.LastNotifiedAt = existing.LastNotifiedAt
	}
	s.subs[sub.Endpoint] = record
	out := cloneStored(record)
	s.mu.Unlock()

	s.schedulePersist()
	return out
}

// Remove deletes a subscription by endpoint and reports whether it existed.
func (s *Store) Remove(endpoint string) bool {
	s.mu.Lock()
	_, existed := s.subs[endpoint]
	delete(s.subs, endpoint)
	s.mu.Unlock()

	if existed {
		s.schedulePersist()
	}
	return existed
}

// MarkDelivered records a successful delivery for an endpoint.
func (s *Store) MarkDelivered(endpoint string, timestamp int64) (StoredSubscription, error) {
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}

	s.mu.Lock()
	sub, ok := s.subs[endpoint]
	if !ok {
		s.mu.Unlock()
		return StoredSubscription{}, ErrSubscriptionNotFound
	}
	sub.UpdatedAt = timestamp
	sub.LastNotifiedAt = timestamp
	out := cloneStored(sub)
	s.mu.Unlock()

	s.schedulePersist()
	return out, nil
}

// Flush cancels any pending debounce timer and persists immediately,
// returning once the registry is durably on disk.
func (s *Store) Flush() error {
	s.timerMu.Lock()
	if s.persistTimer != nil {
		s.persistTimer.Stop()
		s.persistTimer = nil
	}
	s.timerMu.Unlock()

	return s.persist()
}

func (s *Store) loadFromDisk() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error().Err(err).Str("path", s.path).Msg("failed to read subscription registry")
		}
		return
	}
	if len(raw) == 0 {
		return
	}

	var records []StoredSubscription
	if err := json.Unmarshal(raw, &records); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("subscription registry contained invalid data, starting empty")
		return
	}

	now := time.Now().UnixMilli()
	for i := range records {
		rec := records[i]
		if rec.Endpoint == "" {
			continue
		}
		if rec.Metadata != nil {
			rec.Metadata = NormalizeMetadata(&MetadataPayload{
				Currency:          rec.Metadata.Currency,
				PreferredCurrency: rec.Metadata.PreferredCurrency,
				UserAgent:         rec.Metadata.UserAgent,
				Language:          rec.Metadata.Language,
				Platform:          rec.Metadata.Platform,
				Source:            rec.Metadata.Source,
				Timezone:          rec.Metadata.Timezone,
			})
		}
		if rec.CreatedAt == 0 {
			rec.CreatedAt = now
		}
		if rec.UpdatedAt == 0 {
			rec.UpdatedAt = now
		}
		s.subs[rec.Endpoint] = &rec
	}
}

func (s *Store) schedulePersist() {
	if s.debounce == 0 {
		if err := s.persist(); err != nil {
			s.logger.Error().Err(err).Str("path", s.path).Msg("failed to persist subscription registry")
		}
		return
	}

	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.persistTimer != nil {
		s.persistTimer.Stop()
	}
	s.persistTimer = time.AfterFunc(s.debounce, func() {
		s.timerMu.Lock()
		s.persistTimer = nil
		s.timerMu.Unlock()

		if err := s.persist(); err != nil {
			s.logger.Error().Err(err).Str("path", s.path).Msg("failed to persist subscription registry")
		}
	})
}

// persist writes the full registry to a uniquely named temp file in the
// destination directory and renames it over the registry file.
func (s *Store) persist() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	records := make([]StoredSubscription, 0, len(s.subs))
	for _, sub := range s.subs {
		records = append(records, cloneStored(sub))
	}
	s.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Endpoint < records[j].Endpoint
	})

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	tempPath := s.path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		switch {
		case errors.Is(err, fs.ErrExist) || errors.Is(err, fs.ErrPermission):
			// Locked or undeletable destination: force-remove and retry.
			_ = os.Remove(s.path)
			if renameErr := os.Rename(tempPath, s.path); renameErr != nil {
				_ = os.Remove(tempPath)
				return renameErr
			}
		case errors.Is(err, fs.ErrNotExist):
			// Directory vanished between MkdirAll and the rename; fall back
			// to a direct write.
			if writeErr := os.WriteFile(s.path, data, 0o600); writeErr != nil {
				_ = os.Remove(tempPath)
				return writeErr
			}
			_ = os.Remove(tempPath)
		default:
			_ = os.Remove(tempPath)
			return err
		}
	}

	return nil
}
