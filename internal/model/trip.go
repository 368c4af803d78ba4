package model

import (
	"strings"

	"trip-tracker/internal/geo"
)

type Role string

const (
	RoleDriver Role = "driver"
	RoleRider  Role = "rider"
)

func (r Role) Valid() bool { return r == RoleDriver || r == RoleRider }

// Phase is the local tracking phase. It is derived from Status plus local
// progress and is not the same thing.
type Phase string

const (
	PhaseToPickup  Phase = "to_pickup"
	PhaseToDropoff Phase = "to_dropoff"
	PhaseCompleted Phase = "completed"
	PhaseCancelled Phase = "cancelled"
)

func (p Phase) Terminal() bool { return p == PhaseCompleted || p == PhaseCancelled }

// Status mirrors the backend ride/request lifecycle.
type Status string

const (
	StatusUnknown   Status = ""
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusScheduled Status = "scheduled"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus accepts the spellings the backend has used over time.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "requested", "searching":
		return StatusPending
	case "confirmed", "accepted", "matched":
		return StatusConfirmed
	case "scheduled":
		return StatusScheduled
	case "ongoing", "in_progress", "in-progress", "started", "active":
		return StatusOngoing
	case "completed", "complete", "finished":
		return StatusCompleted
	case "cancelled", "canceled":
		return StatusCancelled
	}
	return StatusUnknown
}

// DerivePhase maps a backend status to the tracking phase. Pre-ride statuses
// are ToPickup; a ride the backend reports as started is ToDropoff.
func DerivePhase(s Status) Phase {
	switch s {
	case StatusOngoing:
		return PhaseToDropoff
	case StatusCompleted:
		return PhaseCompleted
	case StatusCancelled:
		return PhaseCancelled
	}
	return PhaseToPickup
}

// Snapshot is the persisted view of a tracking session.
type Snapshot struct {
	TripID               string              `json:"tripId"`
	RequestID            string              `json:"requestId,omitempty"`
	Role                 Role                `json:"role"`
	Phase                Phase               `json:"phase"`
	Status               Status              `json:"status"`
	Pickup               geo.Coordinate      `json:"pickup"`
	Dropoff              geo.Coordinate      `json:"dropoff"`
	MainPolyline         string              `json:"mainPolyline,omitempty"`
	PickupPolyline       string              `json:"pickupPolyline,omitempty"`
	CurrentRoute         geo.Route           `json:"currentRoute,omitempty"`
	LastPosition         *geo.PositionSample `json:"lastPosition,omitempty"`
	CounterpartyPosition *geo.PositionSample `json:"counterpartyPosition,omitempty"`
	EtaMinutes           int                 `json:"etaMinutes"`
	RemainingKm          float64             `json:"remainingKm"`
	// RequestOpen is true while the sub-request is started but not completed.
	RequestOpen bool `json:"requestOpen,omitempty"`
}

// Record is the ActiveTripRecord: a snapshot plus when it was written.
type Record struct {
	Snapshot
	SavedAtMs int64 `json:"savedAtMs"`
}
