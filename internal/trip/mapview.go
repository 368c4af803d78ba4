package trip

import (
	"fmt"

	"trip-tracker/internal/geo"
	"trip-tracker/internal/model"
)

const (
	MarkerSelf         = "self"
	MarkerCounterparty = "counterparty"
	MarkerPickup       = "pickup"
	MarkerDropoff      = "dropoff"
)

type Marker struct {
	ID          string         `json:"id"`
	Coordinate  geo.Coordinate `json:"coordinate"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Icon        string         `json:"icon,omitempty"`
}

// MapView is what the map widget draws: markers, the remaining route and
// the points the camera should fit.
type MapView struct {
	TripID      string           `json:"tripId"`
	Phase       model.Phase      `json:"phase"`
	Markers     []Marker         `json:"markers"`
	Polyline    geo.Route        `json:"polyline"`
	FitPoints   []geo.Coordinate `json:"fitPoints"`
	EtaMinutes  int              `json:"etaMinutes"`
	RemainingKm float64          `json:"remainingKm"`
}

func (s *Session) MapView() MapView {
	snap := s.Snapshot()
	v := MapView{
		TripID:      snap.TripID,
		Phase:       snap.Phase,
		Polyline:    snap.CurrentRoute,
		EtaMinutes:  snap.EtaMinutes,
		RemainingKm: snap.RemainingKm,
	}
	if v.Polyline == nil {
		v.Polyline = geo.Route{}
	}

	selfIcon, otherIcon, otherTitle := "car", "person", "Rider"
	if snap.Role == model.RoleRider {
		selfIcon, otherIcon, otherTitle = "person", "car", "Driver"
	}
	if snap.LastPosition != nil {
		v.Markers = append(v.Markers, Marker{
			ID:          MarkerSelf,
			Coordinate:  snap.LastPosition.Coordinate,
			Title:       "You",
			Description: "Current location",
			Icon:        selfIcon,
		})
	}
	if snap.CounterpartyPosition != nil {
		desc := "Live location"
		if snap.Role == model.RoleRider && !snap.Phase.Terminal() {
			desc = fmt.Sprintf("%d min away", snap.EtaMinutes)
		}
		v.Markers = append(v.Markers, Marker{
			ID:          MarkerCounterparty,
			Coordinate:  snap.CounterpartyPosition.Coordinate,
			Title:       otherTitle,
			Description: desc,
			Icon:        otherIcon,
		})
	}
	if snap.Phase == model.PhaseToPickup {
		v.Markers = append(v.Markers, Marker{ID: MarkerPickup, Coordinate: snap.Pickup, Title: "Pickup", Description: "Pickup point"})
	}
	v.Markers = append(v.Markers, Marker{ID: MarkerDropoff, Coordinate: snap.Dropoff, Title: "Drop-off", Description: "Destination"})

	for _, m := range v.Markers {
		v.FitPoints = append(v.FitPoints, m.Coordinate)
	}
	if last, ok := v.Polyline.Last(); ok {
		v.FitPoints = append(v.FitPoints, last)
	}
	return v
}
