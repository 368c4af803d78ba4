package trip

import (
	"context"
	"errors"
	"net"

	"trip-tracker/internal/auth"
	"trip-tracker/internal/backend"
	"trip-tracker/internal/transport"
)

var (
	ErrIncompleteTrip      = errors.New("incomplete trip payload")
	ErrInvalidPhase        = errors.New("operation not valid in current phase")
	ErrSessionClosed       = errors.New("session closed")
	ErrLocationUnavailable = errors.New("device location unavailable")
	ErrNoSimulator         = errors.New("no simulator configured")
	ErrNoTransport         = errors.New("no transport configured")
)

// UserMessage turns err into text for the rider or driver and reports
// whether offering a retry makes sense.
func UserMessage(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	switch backend.ErrorID(err) {
	case backend.ErrIDActiveRequests:
		return "Finish or cancel the remaining passenger requests before completing the ride.", false
	case backend.ErrIDTooFarFromDropoff:
		return "You are too far from the drop-off point to complete this trip.", false
	case backend.ErrIDTooFarFromPickup:
		return "You are too far from the pickup point to start this trip.", false
	case backend.ErrIDRideNotOngoing:
		return "This ride has not started yet.", false
	case backend.ErrIDRequestNotFound:
		return "This request no longer exists.", false
	}

	var apiErr *backend.APIError
	var netErr net.Error
	switch {
	case errors.Is(err, ErrLocationUnavailable):
		return "Your location is unavailable. Try again or switch to simulation mode.", true
	case errors.Is(err, auth.ErrTokenExpired):
		return "Your session has expired. Please sign in again.", false
	case errors.Is(err, ErrInvalidPhase):
		return "That action is not available at this point of the trip.", false
	case errors.Is(err, transport.ErrAllEndpointsFailed), errors.Is(err, transport.ErrNotConnected):
		return "Could not reach the tracking service. Check your connection and try again.", true
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return "The network is not responding. Try again.", true
	case errors.As(err, &apiErr):
		if apiErr.Status >= 500 {
			return "The service is having trouble. Try again shortly.", true
		}
		if apiErr.Message != "" {
			return apiErr.Message, false
		}
		return "The request was rejected.", false
	}
	return "Something went wrong. Try again.", true
}
