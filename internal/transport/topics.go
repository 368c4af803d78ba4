package transport

import (
	"strings"

	"github.com/mmcloughlin/geohash"

	"trip-tracker/internal/geo"
)

// Topic names are dot separated so they map directly onto NATS subjects and
// AMQP routing keys.

const (
	DiagnosticsTopic = "app.diagnostics"
	offerCellChars   = 5
)

// DriverOffers is the offer queue for the geohash cell containing pos.
func DriverOffers(pos geo.Coordinate) string {
	return "driver.offers." + geohash.EncodeWithPrecision(pos.Latitude, pos.Longitude, offerCellChars)
}

func RiderMatching(userID string) string {
	return "rider.matching." + subjectToken(userID)
}

func TripTracking(tripID string) string {
	return "trip." + subjectToken(tripID) + ".tracking"
}

// TripLocation is where position samples for a trip are published.
func TripLocation(tripID string) string {
	return "trip." + subjectToken(tripID) + ".location"
}

func UserNotifications(userID string) string {
	return "user." + subjectToken(userID) + ".notifications"
}

// Kind returns a low-cardinality label for a topic, for metrics.
func Kind(topic string) string {
	switch {
	case strings.HasPrefix(topic, "driver.offers."):
		return "driver_offers"
	case strings.HasPrefix(topic, "rider.matching."):
		return "rider_matching"
	case strings.HasPrefix(topic, "trip.") && strings.HasSuffix(topic, ".tracking"):
		return "trip_tracking"
	case strings.HasPrefix(topic, "trip.") && strings.HasSuffix(topic, ".location"):
		return "trip_location"
	case strings.HasPrefix(topic, "user."):
		return "notifications"
	case topic == DiagnosticsTopic:
		return "diagnostics"
	}
	return "other"
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_", "#", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
