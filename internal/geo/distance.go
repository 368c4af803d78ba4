package geo

import "math"

const EarthRadiusKm = 6371.0

func toRad(d float64) float64 { return d * math.Pi / 180 }

// HaversineKm is the great-circle distance between two coordinates in kilometers.
func HaversineKm(a, b Coordinate) float64 {
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

func HaversineMeters(a, b Coordinate) float64 { return HaversineKm(a, b) * 1000 }

// CumDistances returns cumulative distances in meters along the route.
func CumDistances(r Route) []float64 {
	n := len(r)
	if n == 0 {
		return nil
	}
	cum := make([]float64, n)
	sum := 0.0
	for i := 1; i < n; i++ {
		sum += HaversineMeters(r[i-1], r[i])
		cum[i] = sum
	}
	return cum
}

// LengthKm is the total path length of the route.
func LengthKm(r Route) float64 {
	cum := CumDistances(r)
	if len(cum) == 0 {
		return 0
	}
	return cum[len(cum)-1] / 1000
}

// Interpolate returns the point at dist meters along the route and the
// bearing of the segment it falls on.
func Interpolate(r Route, cum []float64, dist float64) (Coordinate, float64) {
	n := len(r)
	if n == 0 {
		return Coordinate{}, 0
	}
	total := cum[n-1]
	if total == 0 {
		return r[0], 0
	}
	if dist <= 0 {
		if n > 1 {
			return r[0], Bearing(r[0], r[1])
		}
		return r[0], 0
	}
	if dist >= total {
		return r[n-1], Bearing(r[n-2], r[n-1])
	}
	i := 1
	for i < n && cum[i] < dist {
		i++
	}
	if i >= n {
		i = n - 1
	}
	d0, d1 := cum[i-1], cum[i]
	p0, p1 := r[i-1], r[i]
	if d1 == d0 {
		return p0, Bearing(p0, p1)
	}
	frac := (dist - d0) / (d1 - d0)
	return Coordinate{
		Latitude:  p0.Latitude + (p1.Latitude-p0.Latitude)*frac,
		Longitude: p0.Longitude + (p1.Longitude-p0.Longitude)*frac,
	}, Bearing(p0, p1)
}

// Bearing is the initial compass bearing from a to b in degrees [0,360).
func Bearing(a, b Coordinate) float64 {
	y := math.Sin(toRad(b.Longitude-a.Longitude)) * math.Cos(toRad(b.Latitude))
	x := math.Cos(toRad(a.Latitude))*math.Sin(toRad(b.Latitude)) - math.Sin(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Cos(toRad(b.Longitude-a.Longitude))
	brng := math.Atan2(y, x) * 180 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}
