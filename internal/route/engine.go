package route

import (
	"errors"
	"sync"

	"trip-tracker/internal/geo"
)

// Progress is the result of projecting a position onto the primed route.
type Progress struct {
	Remaining   geo.Route
	RemainingKm float64
	EtaMinutes  int
	// Trimmed is false when the engine fell back to the full route.
	Trimmed bool
}

// Engine holds the authoritative route for the current phase. Prime swaps it.
type Engine struct {
	mu       sync.RWMutex
	route    geo.Route
	speedKph float64
}

func NewEngine(assumedSpeedKph float64) *Engine {
	if assumedSpeedKph <= 0 {
		assumedSpeedKph = DefaultAssumedSpeedKph
	}
	return &Engine{speedKph: assumedSpeedKph}
}

func (e *Engine) Prime(r geo.Route) {
	e.mu.Lock()
	e.route = r
	e.mu.Unlock()
}

func (e *Engine) Route() geo.Route {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.route
}

func (e *Engine) Project(pos *geo.Coordinate) Progress {
	e.mu.RLock()
	r := e.route
	e.mu.RUnlock()

	remaining, err := ProjectRemaining(r, pos)
	p := Progress{Remaining: remaining, Trimmed: err == nil && pos != nil}
	if errors.Is(err, ErrInsufficientRoute) {
		p.Remaining = r
	}
	if p.Trimmed {
		p.RemainingKm = RemainingKm(p.Remaining, pos)
	} else {
		p.RemainingKm = geo.LengthKm(p.Remaining)
		if pos != nil && len(remaining) > 0 {
			// at or past the final vertex: only the leg to it remains
			p.RemainingKm = geo.HaversineKm(*pos, remaining[len(remaining)-1])
		}
	}
	p.EtaMinutes = EstimateEtaMinutes(p.RemainingKm, e.speedKph)
	return p
}
