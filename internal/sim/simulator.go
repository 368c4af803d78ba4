package sim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"trip-tracker/internal/geo"
	"trip-tracker/internal/polyline"
)

var ErrInvalidSpeed = errors.New("simulation speed must be positive")

// Publisher forwards a simulated sample to the backend.
type Publisher interface {
	PublishPosition(ctx context.Context, tripID string, s geo.PositionSample) error
}

// Metrics is the subset of the collector the simulator reports to.
type Metrics interface {
	TickObserve(d time.Duration)
}

type Config struct {
	TripID    string
	Start     geo.Coordinate
	End       geo.Coordinate
	SpeedMps  float64
	LocalOnly bool
	// Polyline, when it decodes to at least two points, is followed instead
	// of the straight line from Start to End.
	Polyline string
}

type Handle struct {
	ID string
}

func (h Handle) Valid() bool { return h.ID != "" }

type Listener func(h Handle, s geo.PositionSample)

// Simulator advances a virtual position along a route on a fixed tick. It
// runs at most one simulation at a time; Start replaces a running one.
type Simulator struct {
	pub      Publisher
	interval time.Duration
	metrics  Metrics
	now      func() time.Time

	mu       sync.Mutex
	listener Listener
	current  *run
	live     map[string]*run
}

type run struct {
	handle Handle
	cancel context.CancelFunc
	done   chan struct{}
}

func New(pub Publisher, interval time.Duration, m Metrics) *Simulator {
	if interval <= 0 {
		interval = time.Second
	}
	return &Simulator{pub: pub, interval: interval, metrics: m, now: time.Now, live: make(map[string]*run)}
}

func (s *Simulator) SetListener(l Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

// Start launches a simulation and returns its handle. Any simulation already
// running is stopped first.
func (s *Simulator) Start(parent context.Context, cfg Config) (Handle, error) {
	if cfg.SpeedMps <= 0 {
		return Handle{}, ErrInvalidSpeed
	}
	path := pathFor(cfg)
	for _, c := range path {
		if err := c.Validate(); err != nil {
			return Handle{}, fmt.Errorf("simulation path: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(parent)
	r := &run{handle: Handle{ID: uuid.NewString()}, cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.current
	s.current = r
	s.live[r.handle.ID] = r
	s.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}

	mode := "broadcast"
	if cfg.LocalOnly {
		mode = "local-only"
	}
	log.Printf("starting simulation %s for trip %s (%d points, %.1f m/s, %s)", r.handle.ID, cfg.TripID, len(path), cfg.SpeedMps, mode)
	go func() {
		defer close(r.done)
		s.loop(ctx, r.handle, cfg, path)
		s.mu.Lock()
		if s.current == r {
			s.current = nil
		}
		delete(s.live, r.handle.ID)
		s.mu.Unlock()
	}()
	return r.handle, nil
}

// Stop cancels the simulation behind h. It is safe to call repeatedly and
// with stale handles. It does not wait for the loop; see Done.
func (s *Simulator) Stop(h Handle) {
	s.mu.Lock()
	r := s.current
	if r != nil && r.handle == h {
		s.current = nil
	} else {
		r = nil
	}
	s.mu.Unlock()
	if r != nil {
		r.cancel()
		log.Printf("stopped simulation %s", h.ID)
	}
}

// Running reports whether h is the active simulation.
func (s *Simulator) Running(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.handle == h
}

// Done returns a channel closed once the loop for h has exited. For an
// unknown handle the channel is already closed.
func (s *Simulator) Done(h Handle) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.live[h.ID]; ok {
		return r.done
	}
	c := make(chan struct{})
	close(c)
	return c
}

func pathFor(cfg Config) geo.Route {
	if cfg.Polyline != "" {
		if r := polyline.Decode(cfg.Polyline); len(r) >= 2 {
			return r
		}
		log.Printf("simulation polyline unusable for trip %s, using straight line", cfg.TripID)
	}
	return geo.Route{cfg.Start, cfg.End}
}

func (s *Simulator) loop(ctx context.Context, h Handle, cfg Config, path geo.Route) {
	cum := geo.CumDistances(path)
	total := cum[len(cum)-1]
	step := cfg.SpeedMps * s.interval.Seconds()

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	travelled := 0.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		tickStart := time.Now()
		travelled += step
		if travelled > total {
			travelled = total
		}
		pos, bearing := geo.Interpolate(path, cum, travelled)
		sample := geo.NewSample(pos, s.now()).WithMotion(cfg.SpeedMps, bearing)
		if travelled >= total {
			sample = sample.WithMotion(0, bearing)
		}

		// a Stop racing the tick must not deliver
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		l := s.listener
		s.mu.Unlock()
		if l != nil {
			l(h, sample)
		}
		if !cfg.LocalOnly && s.pub != nil {
			if err := s.pub.PublishPosition(ctx, cfg.TripID, sample); err != nil {
				log.Printf("simulation publish error for trip %s: %v", cfg.TripID, err)
			}
		}
		if s.metrics != nil {
			s.metrics.TickObserve(time.Since(tickStart))
		}
		if travelled >= total {
			log.Printf("simulation %s reached end of route for trip %s", h.ID, cfg.TripID)
			return
		}
	}
}
