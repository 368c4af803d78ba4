package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"trip-tracker/internal/trip"
)

type errorResponse struct {
	Error string `json:"error"`
	Retry bool   `json:"retry"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// writeError reports err with the text the user should see.
func writeError(w http.ResponseWriter, err error) {
	msg, retry := trip.UserMessage(err)
	status := http.StatusConflict
	switch {
	case errors.Is(err, trip.ErrSessionClosed):
		status = http.StatusGone
	case retry:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorResponse{Error: msg, Retry: retry})
}

func (s *Server) current(w http.ResponseWriter) *trip.Session {
	sess := s.Session()
	if sess == nil {
		http.Error(w, "no active trip", http.StatusNotFound)
	}
	return sess
}

// BeginSession starts tracking the ride in the request body.
func (s *Server) BeginSession(w http.ResponseWriter, r *http.Request) {
	if sess := s.Session(); sess != nil && !sess.Phase().Terminal() {
		http.Error(w, "a trip is already being tracked", http.StatusConflict)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	d, err := trip.ParseTrip(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, err := s.begin(r.Context(), d)
	if err != nil {
		if errors.Is(err, trip.ErrInvalidPhase) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeError(w, err)
		return
	}
	s.SetSession(sess)
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	if sess := s.current(w); sess != nil {
		writeJSON(w, http.StatusOK, sess.Snapshot())
	}
}

func (s *Server) GetMap(w http.ResponseWriter, r *http.Request) {
	if sess := s.current(w); sess != nil {
		writeJSON(w, http.StatusOK, sess.MapView())
	}
}

func (s *Server) ConfirmPickup(w http.ResponseWriter, r *http.Request) {
	s.act(w, func(sess *trip.Session) error { return sess.ConfirmPickup(r.Context()) })
}

func (s *Server) CompleteTrip(w http.ResponseWriter, r *http.Request) {
	s.act(w, func(sess *trip.Session) error { return sess.CompleteTrip(r.Context()) })
}

func (s *Server) CancelTrip(w http.ResponseWriter, r *http.Request) {
	s.act(w, func(sess *trip.Session) error { return sess.Cancel(r.Context()) })
}

func (s *Server) StartSimulation(w http.ResponseWriter, r *http.Request) {
	s.act(w, func(sess *trip.Session) error {
		_, err := sess.StartSimulation()
		return err
	})
}

func (s *Server) StopSimulation(w http.ResponseWriter, r *http.Request) {
	s.act(w, func(sess *trip.Session) error {
		sess.StopSimulation()
		return nil
	})
}

func (s *Server) act(w http.ResponseWriter, fn func(*trip.Session) error) {
	sess := s.current(w)
	if sess == nil {
		return
	}
	if err := fn(sess); err != nil {
		writeError(w, err)
		return
	}
	snap := sess.Snapshot()
	if snap.Phase.Terminal() {
		log.Printf("trip %s ended in phase %s", snap.TripID, snap.Phase)
	}
	writeJSON(w, http.StatusOK, snap)
}
