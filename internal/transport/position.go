package transport

import (
	"context"
	"encoding/json"
	"time"

	"trip-tracker/internal/geo"
)

// PositionMessage is the outbound location payload on TripLocation topics.
type PositionMessage struct {
	RideID     string    `json:"rideId"`
	Timestamp  time.Time `json:"timestamp"`
	Lat        float64   `json:"currentLat"`
	Lng        float64   `json:"currentLng"`
	SpeedMps   *float64  `json:"speedMps,omitempty"`
	HeadingDeg *float64  `json:"headingDeg,omitempty"`
}

func NewPositionMessage(rideID string, s geo.PositionSample) PositionMessage {
	return PositionMessage{
		RideID:     rideID,
		Timestamp:  s.Time().UTC(),
		Lat:        s.Coordinate.Latitude,
		Lng:        s.Coordinate.Longitude,
		SpeedMps:   s.SpeedMps,
		HeadingDeg: s.HeadingDeg,
	}
}

// PublishPosition sends a sample for tripID on its location topic.
func (t *Transport) PublishPosition(ctx context.Context, tripID string, s geo.PositionSample) error {
	b, err := json.Marshal(NewPositionMessage(tripID, s))
	if err != nil {
		return err
	}
	return t.Publish(ctx, TripLocation(tripID), b)
}

// PublishDiagnostic sends a test message on the diagnostics channel.
func (t *Transport) PublishDiagnostic(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.Publish(ctx, DiagnosticsTopic, b)
}
