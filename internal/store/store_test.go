package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"trip-tracker/internal/db"
	"trip-tracker/internal/geo"
	"trip-tracker/internal/model"
	"trip-tracker/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newStore(t *testing.T, c *clock) (*store.Store, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return store.New(db.NewRedisKV(client, 0), "", 0, store.WithClock(c.now)), s
}

func snapshot() model.Snapshot {
	last := geo.NewSample(geo.Coordinate{Latitude: 1, Longitude: 2}, time.UnixMilli(1000))
	return model.Snapshot{
		TripID:       "ride-1",
		RequestID:    "req-1",
		Role:         model.RoleDriver,
		Phase:        model.PhaseToDropoff,
		Status:       model.StatusOngoing,
		Pickup:       geo.Coordinate{Latitude: 1, Longitude: 2},
		Dropoff:      geo.Coordinate{Latitude: 3, Longitude: 4},
		CurrentRoute: geo.Route{{Latitude: 1, Longitude: 2}, {Latitude: 3, Longitude: 4}},
		LastPosition: &last,
		EtaMinutes:   12,
		RemainingKm:  5.5,
	}
}

func TestSaveLoadClear(t *testing.T) {
	c := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	st, _ := newStore(t, c)
	ctx := context.Background()

	rec, err := st.Load(ctx)
	if err != nil || rec != nil {
		t.Fatalf("expected empty store, got %v %v", rec, err)
	}

	if err := st.Save(ctx, snapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec, err = st.Load(ctx)
	if err != nil || rec == nil {
		t.Fatalf("load: %v %v", rec, err)
	}
	if rec.TripID != "ride-1" || rec.Phase != model.PhaseToDropoff || rec.SavedAtMs != c.t.UnixMilli() {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.LastPosition == nil || rec.LastPosition.Coordinate.Longitude != 2 || len(rec.CurrentRoute) != 2 {
		t.Fatalf("snapshot fields lost: %+v", rec)
	}

	if err := st.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if rec, _ := st.Load(ctx); rec != nil {
		t.Fatalf("expected nil after clear")
	}
	if err := st.Clear(ctx); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestLoadStaleness(t *testing.T) {
	tests := []struct {
		name    string
		age     time.Duration
		present bool
	}{
		{"23 hours", 23 * time.Hour, true},
		{"25 hours", 25 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			saved := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			c := &clock{t: saved}
			st, mr := newStore(t, c)
			ctx := context.Background()
			if err := st.Save(ctx, snapshot()); err != nil {
				t.Fatalf("save: %v", err)
			}

			c.t = saved.Add(tt.age)
			rec, err := st.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if (rec != nil) != tt.present {
				t.Fatalf("present=%v, want %v", rec != nil, tt.present)
			}
			if tt.present && rec.EtaMinutes != 12 {
				t.Fatalf("record not intact: %+v", rec)
			}
			if !tt.present && mr.Exists(store.DefaultKey) {
				t.Fatalf("expired record not cleared")
			}
		})
	}
}

func TestLoadUnreadableRecordIsCleared(t *testing.T) {
	st, mr := newStore(t, &clock{t: time.Now()})
	if err := mr.Set(store.DefaultKey, "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec, err := st.Load(context.Background())
	if err != nil || rec != nil {
		t.Fatalf("expected nil record, got %v %v", rec, err)
	}
	if mr.Exists(store.DefaultKey) {
		t.Fatalf("expected key removed")
	}
}
