// Package store keeps the snapshot of the one in-progress trip under a single
// well-known key so it can be resumed after a restart.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"trip-tracker/internal/model"
)

const (
	DefaultKey = "active_trip"
	DefaultTTL = 24 * time.Hour
)

var ErrNotFound = errors.New("record not found")

// Backend is a durable key-value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type Metrics interface {
	RecordSaved()
}

type Store struct {
	backend Backend
	key     string
	ttl     time.Duration
	now     func() time.Time
	metrics Metrics
}

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithMetrics(m Metrics) Option { return func(s *Store) { s.metrics = m } }

func New(b Backend, key string, ttl time.Duration, opts ...Option) *Store {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{backend: b, key: key, ttl: ttl, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Save replaces the stored record, stamping SavedAtMs with the current time.
func (s *Store) Save(ctx context.Context, snap model.Snapshot) error {
	rec := model.Record{Snapshot: snap, SavedAtMs: s.now().UnixMilli()}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := s.backend.Set(ctx, s.key, b); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordSaved()
	}
	return nil
}

// Load returns the stored record, or nil when there is none. Expired or
// unreadable records are cleared and reported as absent.
func (s *Store) Load(ctx context.Context) (*model.Record, error) {
	b, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	var rec model.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		log.Printf("discarding unreadable trip record: %v", err)
		return nil, s.Clear(ctx)
	}
	age := s.now().Sub(time.UnixMilli(rec.SavedAtMs))
	if age > s.ttl {
		log.Printf("discarding trip record %s saved %s ago", rec.TripID, age.Round(time.Minute))
		return nil, s.Clear(ctx)
	}
	return &rec, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, s.key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("clear record: %w", err)
	}
	return nil
}
