// Package securestore wraps a raw key-value backend with authenticated
// encryption, tamper-evident checksums and staleness eviction. It is the
// integrity contract for all persisted application state: a value that
// cannot be verified is deleted, never returned.
//
// The configured secret provides tamper detection, not confidentiality
// against a local attacker who can read the configuration.
package securestore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pawsy/sessiond/internal/util"
)

// Well-known record keys. Each is independently encrypted and swept.
const (
	KeySession   = "session"
	KeyCart      = "cart"
	KeyCheckout  = "checkout"
	KeyLastOrder = "last-order"
)

// DefaultProtectedKeys is the fixed set of records covered by the periodic
// sweep and external-change verification.
var DefaultProtectedKeys = []string{KeySession, KeyCart, KeyCheckout, KeyLastOrder}

const (
	defaultRetention     = 24 * time.Hour
	defaultSweepInterval = 5 * time.Minute

	cipherKeyInfo   = "sessiond:record-cipher:v1"
	checksumKeyInfo = "sessiond:record-checksum:v1"
	recordAADPrefix = "record:"
)

// Event notifies subscribers that a protected record was evicted because it
// failed verification. Dependent state must be reloaded, not reconciled.
type Event struct {
	Key string
}

// Store is the encrypted key-value store.
type Store struct {
	backend   Backend
	cipherKey []byte
	macKey    []byte
	retention time.Duration
	interval  time.Duration
	protected []string
	logger    *slog.Logger

	mu   sync.Mutex
	subs map[string]chan Event
}

// Option configures the Store.
type Option func(*Store)

// WithRetention overrides the 24h retention window.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// WithSweepInterval overrides the 5m sweep interval.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.interval = d }
}

// WithProtectedKeys overrides the swept key set.
func WithProtectedKeys(keys []string) Option {
	return func(s *Store) { s.protected = keys }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a Store over backend. Independent cipher and checksum keys are
// derived from secret with HKDF-SHA256.
func New(backend Backend, secret string, opts ...Option) (*Store, error) {
	if secret == "" {
		return nil, fmt.Errorf("storage secret must not be empty")
	}
	seed := []byte(util.Normalize(secret))
	cipherKey, err := util.HKDF(seed, nil, []byte(cipherKeyInfo))
	if err != nil {
		return nil, fmt.Errorf("deriving cipher key: %w", err)
	}
	macKey, err := util.HKDF(seed, nil, []byte(checksumKeyInfo))
	if err != nil {
		return nil, fmt.Errorf("deriving checksum key: %w", err)
	}

	s := &Store{
		backend:   backend,
		cipherKey: cipherKey,
		macKey:    macKey,
		retention: defaultRetention,
		interval:  defaultSweepInterval,
		protected: DefaultProtectedKeys,
		subs:      make(map[string]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return s, nil
}

// Write serializes v, seals it and persists the envelope under key.
func (s *Store) Write(ctx context.Context, key string, v any) error {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serializing %s: %w", key, err)
	}
	data, err := util.EncryptAES(plaintext, s.cipherKey, []byte(recordAADPrefix+key))
	if err != nil {
		return fmt.Errorf("sealing %s: %w", key, err)
	}
	env := Envelope{
		SchemaVersion: envelopeSchemaVersion,
		Data:          data,
		Checksum:      s.checksum(plaintext),
		Timestamp:     time.Now().UTC(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding envelope for %s: %w", key, err)
	}
	return s.backend.Put(ctx, key, raw)
}

// Read opens the envelope under key into out. It returns false when the key
// is absent. A value that fails decryption, checksum verification or parsing
// is deleted and reported absent; partially-trusted data is never returned.
func (s *Store) Read(ctx context.Context, key string, out any) (bool, error) {
	raw, err := s.backend.Get(ctx, key)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}

	plaintext, err := s.open(key, raw)
	if err != nil {
		s.logger.Warn("evicting unverifiable record", "key", key, "error", err)
		if derr := s.backend.Delete(ctx, key); derr != nil {
			s.logger.Warn("failed to delete unverifiable record", "key", key, "error", derr)
		}
		return false, nil
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		s.logger.Warn("evicting unparsable record", "key", key, "error", err)
		if derr := s.backend.Delete(ctx, key); derr != nil {
			s.logger.Warn("failed to delete unparsable record", "key", key, "error", derr)
		}
		return false, nil
	}
	return true, nil
}

// Delete removes the record under key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil && err != ErrNotFound {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Subscribe registers for eviction events. The returned cancel func must be
// called when the subscriber is done.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)
	id := uuid.NewString()
	s.mu.Lock()
	s.subs[id] = ch
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Run drives the periodic sweep and, when the backend supports it, the
// external-change verification loop. It blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	var changes <-chan Change
	if w, ok := s.backend.(Watcher); ok {
		ch, err := w.Watch(ctx)
		if err != nil {
			s.logger.Warn("backend watch unavailable", "error", err)
		} else {
			changes = ch
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			s.handleExternalChange(ctx, change)
		}
	}
}

// Sweep verifies every protected key, evicting envelopes older than the
// retention window or failing verification.
func (s *Store) Sweep(ctx context.Context) {
	for _, key := range s.protected {
		raw, err := s.backend.Get(ctx, key)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			s.logger.Warn("sweep read failed", "key", key, "error", err)
			continue
		}
		if _, err := s.open(key, raw); err != nil {
			s.logger.Info("sweep evicting record", "key", key, "reason", err)
			if derr := s.backend.Delete(ctx, key); derr != nil {
				s.logger.Warn("sweep delete failed", "key", key, "error", derr)
			}
		}
	}
}

// handleExternalChange re-verifies a value written by another execution
// context. Verification failure is a tamper signal: the key is deleted and
// subscribers are told to reload dependent state.
func (s *Store) handleExternalChange(ctx context.Context, change Change) {
	if change.Deleted || !s.isProtected(change.Key) {
		return
	}
	if _, err := s.open(change.Key, change.Value); err != nil {
		s.logger.Warn("external change failed verification", "key", change.Key, "error", err)
		if derr := s.backend.Delete(ctx, change.Key); derr != nil {
			s.logger.Warn("failed to delete tampered record", "key", change.Key, "error", derr)
		}
		s.notify(Event{Key: change.Key})
	}
}

func (s *Store) isProtected(key string) bool {
	for _, k := range s.protected {
		if k == key {
			return true
		}
	}
	return false
}

func (s *Store) notify(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Subscriber is not keeping up; it will re-verify on next read.
		}
	}
}

// open decodes raw into an envelope and returns the verified plaintext.
func (s *Store) open(key string, raw []byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.SchemaVersion != envelopeSchemaVersion {
		return nil, fmt.Errorf("unsupported envelope schema version: %d", env.SchemaVersion)
	}
	if age := time.Since(env.Timestamp); age > s.retention {
		return nil, fmt.Errorf("envelope exceeded retention window: age %s", age.Round(time.Second))
	}
	plaintext, err := util.DecryptAES(env.Data, s.cipherKey, []byte(recordAADPrefix+key))
	if err != nil {
		return nil, fmt.Errorf("opening envelope: %w", err)
	}
	if !hmac.Equal(env.Checksum, s.checksum(plaintext)) {
		return nil, fmt.Errorf("checksum mismatch")
	}
	return plaintext, nil
}

func (s *Store) checksum(plaintext []byte) []byte {
	mac := hmac.New(sha256.New, s.macKey)
	mac.Write(plaintext)
	return mac.Sum(nil)
}
