// Package route trims a planned route to what is still ahead of a position
// and derives remaining distance and ETA from it.
package route

import (
	"errors"
	"math"

	"trip-tracker/internal/geo"
)

const DefaultAssumedSpeedKph = 30.0

// ErrInsufficientRoute is returned when the trimmed route has fewer than two
// points; callers fall back to the untrimmed route.
var ErrInsufficientRoute = errors.New("insufficient route")

// NearestIndex returns the index of the route vertex closest to pos, or -1
// for an empty route.
func NearestIndex(r geo.Route, pos geo.Coordinate) int {
	best := -1
	bestDist := math.MaxFloat64
	for i, c := range r {
		d := geo.HaversineKm(pos, c)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// ProjectRemaining returns the suffix of r starting at the vertex nearest to
// pos. A nil pos or empty route returns r unchanged. When the suffix has
// fewer than two points it is still returned, together with
// ErrInsufficientRoute.
func ProjectRemaining(r geo.Route, pos *geo.Coordinate) (geo.Route, error) {
	if len(r) == 0 || pos == nil {
		return r, nil
	}
	idx := NearestIndex(r, *pos)
	remaining := r[idx:]
	if len(remaining) < 2 {
		return remaining, ErrInsufficientRoute
	}
	return remaining, nil
}

// EstimateEtaMinutes is ceil(distanceKm / speedKph * 60). A non-positive
// speed uses DefaultAssumedSpeedKph.
func EstimateEtaMinutes(distanceKm, assumedSpeedKph float64) int {
	if assumedSpeedKph <= 0 {
		assumedSpeedKph = DefaultAssumedSpeedKph
	}
	if distanceKm <= 0 {
		return 0
	}
	return int(math.Ceil(distanceKm / assumedSpeedKph * 60))
}

// RemainingKm is the path length from pos along the remaining route: the
// leg from pos to the first remaining vertex plus the route length after it.
func RemainingKm(remaining geo.Route, pos *geo.Coordinate) float64 {
	if len(remaining) == 0 {
		return 0
	}
	km := geo.LengthKm(remaining)
	if pos != nil {
		km += geo.HaversineKm(*pos, remaining[0])
	}
	return km
}
