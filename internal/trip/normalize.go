package trip

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"trip-tracker/internal/geo"
	"trip-tracker/internal/model"
	"trip-tracker/internal/polyline"
)

// Point is a location as the backend sends it. Older payloads use lat/lng,
// newer ones latitude/longitude.
type Point struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
}

func (p *Point) coordinate() (geo.Coordinate, bool) {
	if p == nil {
		return geo.Coordinate{}, false
	}
	lat, lng := p.Latitude, p.Longitude
	if lat == nil {
		lat = p.Lat
	}
	if lng == nil {
		lng = p.Lng
	}
	if lat == nil || lng == nil {
		return geo.Coordinate{}, false
	}
	c := geo.Coordinate{Latitude: *lat, Longitude: *lng}
	if c.Validate() != nil {
		return geo.Coordinate{}, false
	}
	return c, true
}

// RawTrip is a ride payload as returned by the backend, with every field
// spelling seen in the wild.
type RawTrip struct {
	ID                         string `json:"id"`
	RideID                     string `json:"ride_id"`
	RequestID                  string `json:"request_id"`
	Status                     string `json:"status"`
	PickupLocation             *Point `json:"pickup_location"`
	StartLocation              *Point `json:"start_location"`
	DropoffLocation            *Point `json:"dropoff_location"`
	EndLocation                *Point `json:"end_location"`
	Destination                *Point `json:"destination"`
	Polyline                   string `json:"polyline"`
	EncodedPolyline            string `json:"encoded_polyline"`
	PolylineFromDriverToPickup string `json:"polyline_from_driver_to_pickup"`
}

// Details is the canonical form of a trip. Nothing downstream looks at
// RawTrip.
type Details struct {
	RideID         string
	RequestID      string
	Status         model.Status
	Pickup         geo.Coordinate
	Dropoff        geo.Coordinate
	MainPolyline   string
	PickupPolyline string
	MainRoute      geo.Route
	PickupRoute    geo.Route
}

// Normalize resolves the overlapping optional fields of raw. Missing pickup
// or dropoff points fall back to the ends of the main route.
func Normalize(raw RawTrip) (Details, error) {
	d := Details{
		RideID:         firstNonEmpty(raw.RideID, raw.ID),
		RequestID:      raw.RequestID,
		Status:         model.ParseStatus(raw.Status),
		MainPolyline:   firstNonEmpty(raw.EncodedPolyline, raw.Polyline),
		PickupPolyline: raw.PolylineFromDriverToPickup,
	}
	if d.RideID == "" {
		return Details{}, fmt.Errorf("%w: no ride id", ErrIncompleteTrip)
	}
	d.MainRoute = polyline.Decode(d.MainPolyline)
	d.PickupRoute = polyline.Decode(d.PickupPolyline)

	var ok bool
	if d.Pickup, ok = firstPoint(raw.PickupLocation, raw.StartLocation); !ok {
		if d.Pickup, ok = d.MainRoute.First(); !ok {
			return Details{}, fmt.Errorf("%w: ride %s has no pickup", ErrIncompleteTrip, d.RideID)
		}
	}
	if d.Dropoff, ok = firstPoint(raw.DropoffLocation, raw.EndLocation, raw.Destination); !ok {
		if d.Dropoff, ok = d.MainRoute.Last(); !ok {
			return Details{}, fmt.Errorf("%w: ride %s has no dropoff", ErrIncompleteTrip, d.RideID)
		}
	}
	return d, nil
}

// ParseTrip decodes and normalizes a JSON ride payload.
func ParseTrip(b []byte) (Details, error) {
	var raw RawTrip
	if err := json.Unmarshal(b, &raw); err != nil {
		return Details{}, fmt.Errorf("decode trip: %w", err)
	}
	return Normalize(raw)
}

func firstPoint(ps ...*Point) (geo.Coordinate, bool) {
	for _, p := range ps {
		if c, ok := p.coordinate(); ok {
			return c, true
		}
	}
	return geo.Coordinate{}, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Frame is one inbound message on a trip tracking topic. Any subset of the
// fields may be present.
type Frame struct {
	RideID           string   `json:"rideId"`
	CurrentLat       *float64 `json:"currentLat"`
	CurrentLng       *float64 `json:"currentLng"`
	Polyline         *string  `json:"polyline"`
	DistanceKm       *float64 `json:"distanceKm"`
	EstimatedArrival *Minutes `json:"estimatedArrival"`
	Status           *string  `json:"status"`
}

// Minutes accepts a JSON number or a numeric string.
type Minutes float64

func (m *Minutes) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*m = Minutes(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("estimatedArrival %q: %w", s, err)
	}
	*m = Minutes(n)
	return nil
}

// Ceil returns the whole minutes, rounded up.
func (m Minutes) Ceil() int { return int(math.Ceil(float64(m))) }

func ParseFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// Position returns the frame's coordinate when both halves are present and
// in range.
func (f Frame) Position() (geo.Coordinate, bool) {
	if f.CurrentLat == nil || f.CurrentLng == nil {
		return geo.Coordinate{}, false
	}
	c := geo.Coordinate{Latitude: *f.CurrentLat, Longitude: *f.CurrentLng}
	if c.Validate() != nil {
		return geo.Coordinate{}, false
	}
	return c, true
}
