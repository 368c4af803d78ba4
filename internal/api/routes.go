// Package api exposes the tracking session over HTTP for the presentation
// layer: the map model, the session snapshot and the user actions.
package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"trip-tracker/internal/trip"
)

// BeginFunc opens a session for a normalized trip.
type BeginFunc func(ctx context.Context, d trip.Details) (*trip.Session, error)

type Server struct {
	begin   BeginFunc
	metrics http.Handler

	mu      sync.Mutex
	session *trip.Session
}

// NewServer returns a server with no session. metrics may be nil.
func NewServer(begin BeginFunc, metrics http.Handler) *Server {
	return &Server{begin: begin, metrics: metrics}
}

func (s *Server) Session() *trip.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// SetSession installs sess, closing the one it replaces.
func (s *Server) SetSession(sess *trip.Session) {
	s.mu.Lock()
	prev := s.session
	s.session = sess
	s.mu.Unlock()
	if prev != nil && prev != sess {
		prev.Close()
	}
}

func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/session", s.BeginSession).Methods("POST")
	router.HandleFunc("/session", s.GetSession).Methods("GET")
	router.HandleFunc("/session/pickup", s.ConfirmPickup).Methods("POST")
	router.HandleFunc("/session/complete", s.CompleteTrip).Methods("POST")
	router.HandleFunc("/session/cancel", s.CancelTrip).Methods("POST")
	router.HandleFunc("/session/simulation", s.StartSimulation).Methods("POST")
	router.HandleFunc("/session/simulation", s.StopSimulation).Methods("DELETE")
	router.HandleFunc("/map", s.GetMap).Methods("GET")
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods("GET")
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	return handlers.RecoveryHandler()(cors(router))
}
