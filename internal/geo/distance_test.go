package geo

import (
	"math"
	"testing"
)

func TestHaversineKm(t *testing.T) {
	// Jakarta to Bandung is roughly 115-120 km
	d := HaversineKm(Coordinate{-6.2, 106.816}, Coordinate{-6.9175, 107.6191})
	if d < 100 || d > 140 {
		t.Fatalf("unexpected distance: %v", d)
	}
	if HaversineKm(Coordinate{10, 10}, Coordinate{10, 10}) != 0 {
		t.Fatalf("expected zero distance")
	}
}

func TestInterpolate(t *testing.T) {
	r := Route{{0, 0}, {0, 1}, {0, 2}}
	cum := CumDistances(r)
	if len(cum) != 3 || cum[0] != 0 {
		t.Fatalf("unexpected cum: %v", cum)
	}

	mid, brng := Interpolate(r, cum, cum[2]/2)
	if math.Abs(mid.Longitude-1) > 1e-9 || math.Abs(mid.Latitude) > 1e-9 {
		t.Fatalf("unexpected midpoint: %+v", mid)
	}
	if math.Abs(brng-90) > 1e-6 {
		t.Fatalf("expected east bearing, got %v", brng)
	}

	end, _ := Interpolate(r, cum, cum[2]*2)
	if end != r[2] {
		t.Fatalf("expected clamp to last point, got %+v", end)
	}
	start, _ := Interpolate(r, cum, -5)
	if start != r[0] {
		t.Fatalf("expected clamp to first point, got %+v", start)
	}
}

func TestCoordinateValidate(t *testing.T) {
	tests := []struct {
		name string
		c    Coordinate
		ok   bool
	}{
		{"origin", Coordinate{0, 0}, true},
		{"bounds", Coordinate{90, -180}, true},
		{"lat too high", Coordinate{90.1, 0}, false},
		{"lon too low", Coordinate{0, -180.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if (err == nil) != tt.ok {
				t.Fatalf("validate(%+v) = %v", tt.c, err)
			}
		})
	}
}
