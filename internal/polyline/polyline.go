// Package polyline implements the encoded polyline format: coordinates are
// scaled by 1e5, delta-encoded against the previous point, zig-zag encoded
// and packed into 5-bit chunks offset by 63 with 0x20 as the continuation bit.
package polyline

import (
	"math"
	"strings"

	"trip-tracker/internal/geo"
)

const precision = 1e5

// Encode returns the encoded form of coords.
func Encode(coords []geo.Coordinate) string {
	if len(coords) == 0 {
		return ""
	}
	var b strings.Builder
	var prevLat, prevLng int64
	for _, c := range coords {
		lat := int64(math.Round(c.Latitude * precision))
		lng := int64(math.Round(c.Longitude * precision))
		writeSigned(&b, lat-prevLat)
		writeSigned(&b, lng-prevLng)
		prevLat, prevLng = lat, lng
	}
	return b.String()
}

func writeSigned(b *strings.Builder, v int64) {
	u := uint64(v) << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		b.WriteByte(byte((0x20 | (u & 0x1f)) + 63))
		u >>= 5
	}
	b.WriteByte(byte(u + 63))
}

// Decode parses s into a route. Doubled backslashes introduced by JSON
// escaping in transit are collapsed first. Malformed input never fails the
// call: decoding stops at the last complete point and returns what was read.
func Decode(s string) geo.Route {
	s = strings.ReplaceAll(s, `\\`, `\`)
	var (
		route    geo.Route
		lat, lng int64
		i        int
	)
	for i < len(s) {
		dLat, next, ok := readSigned(s, i)
		if !ok {
			break
		}
		dLng, next, ok := readSigned(s, next)
		if !ok {
			break
		}
		i = next
		lat += dLat
		lng += dLng
		route = append(route, geo.Coordinate{
			Latitude:  float64(lat) / precision,
			Longitude: float64(lng) / precision,
		})
	}
	return route
}

// readSigned reads one varint starting at i. ok is false when the input ends
// mid-value or holds a byte outside the encoding alphabet.
func readSigned(s string, i int) (int64, int, bool) {
	var result uint64
	var shift uint
	for {
		if i >= len(s) || shift > 60 {
			return 0, i, false
		}
		c := s[i]
		if c < 63 || c > 126 {
			return 0, i, false
		}
		chunk := uint64(c - 63)
		i++
		result |= (chunk & 0x1f) << shift
		shift += 5
		if chunk < 0x20 {
			break
		}
	}
	v := int64(result >> 1)
	if result&1 != 0 {
		v = ^v
	}
	return v, i, true
}
