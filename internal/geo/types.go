package geo

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidCoordinate = errors.New("invalid coordinate")

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks latitude is within [-90,90] and longitude within [-180,180].
func (c Coordinate) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, c.Longitude)
	}
	return nil
}

func (c Coordinate) IsZero() bool { return c.Latitude == 0 && c.Longitude == 0 }

// Route is an ordered path from origin to destination. Treat as immutable;
// a new Route is built whenever the backend sends a new encoded path.
type Route []Coordinate

func (r Route) Empty() bool { return len(r) == 0 }

func (r Route) First() (Coordinate, bool) {
	if len(r) == 0 {
		return Coordinate{}, false
	}
	return r[0], true
}

func (r Route) Last() (Coordinate, bool) {
	if len(r) == 0 {
		return Coordinate{}, false
	}
	return r[len(r)-1], true
}

type PositionSample struct {
	Coordinate  Coordinate `json:"coordinate"`
	TimestampMs int64      `json:"timestampMs"`
	SpeedMps    *float64   `json:"speedMps,omitempty"`
	HeadingDeg  *float64   `json:"headingDeg,omitempty"`
}

func NewSample(c Coordinate, at time.Time) PositionSample {
	return PositionSample{Coordinate: c, TimestampMs: at.UnixMilli()}
}

func (s PositionSample) WithMotion(speedMps, headingDeg float64) PositionSample {
	s.SpeedMps = &speedMps
	s.HeadingDeg = &headingDeg
	return s
}

func (s PositionSample) Time() time.Time { return time.UnixMilli(s.TimestampMs) }
