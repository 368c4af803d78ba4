package trip

import (
	"trip-tracker/internal/geo"
	"trip-tracker/internal/model"
)

type EventKind string

const (
	EventArrivalPrompt       EventKind = "arrival_prompt"
	EventPhaseChanged        EventKind = "phase_changed"
	EventPositionUpdated     EventKind = "position_updated"
	EventError               EventKind = "error"
	EventLocationUnavailable EventKind = "location_unavailable"
)

// Event is what a session reports to whoever renders it.
type Event struct {
	Kind  EventKind
	Phase model.Phase
	// From is the previous phase on EventPhaseChanged.
	From     model.Phase
	Position *geo.PositionSample
	// Counterparty marks position updates for the other party.
	Counterparty bool
	// DistanceM is the distance to the pickup on EventArrivalPrompt.
	DistanceM float64
	Err       error
}

const eventBuffer = 64
