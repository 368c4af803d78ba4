// Package trip runs the tracking session for the one trip in progress: it
// keeps phase and status in step with the backend, projects positions onto
// the active route and decides which positions leave the device.
package trip

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"trip-tracker/internal/backend"
	"trip-tracker/internal/geo"
	"trip-tracker/internal/model"
	"trip-tracker/internal/polyline"
	"trip-tracker/internal/route"
	"trip-tracker/internal/sim"
	"trip-tracker/internal/store"
	"trip-tracker/internal/transport"
)

const (
	DefaultArrivalThresholdM = 30
	DefaultSaveInterval      = 5 * time.Second
	DefaultSimSpeedMps       = 13.9
	forwardTimeout           = 5 * time.Second
)

// Transport is the part of the realtime layer a session uses.
type Transport interface {
	Subscribe(topic string) (*transport.Subscription, error)
	Unsubscribe(id string) error
	PublishPosition(ctx context.Context, tripID string, s geo.PositionSample) error
}

type Metrics interface {
	SessionOpened()
	SessionClosed()
	PositionForwarded(err error)
	PhaseTransition(from, to model.Phase)
	TransitionFailed(op string)
}

type Config struct {
	ArrivalThresholdM float64
	AssumedSpeedKph   float64
	SaveInterval      time.Duration
	SimSpeedMps       float64
}

func (c Config) withDefaults() Config {
	if c.ArrivalThresholdM <= 0 {
		c.ArrivalThresholdM = DefaultArrivalThresholdM
	}
	if c.AssumedSpeedKph <= 0 {
		c.AssumedSpeedKph = route.DefaultAssumedSpeedKph
	}
	if c.SaveInterval <= 0 {
		c.SaveInterval = DefaultSaveInterval
	}
	if c.SimSpeedMps <= 0 {
		c.SimSpeedMps = DefaultSimSpeedMps
	}
	return c
}

// Deps are the collaborators of a session. Backend is required; the rest
// may be nil, which disables the matching feature.
type Deps struct {
	Backend   backend.TripControl
	Transport Transport
	Simulator *sim.Simulator
	Store     *store.Store
	Metrics   Metrics
	Now       func() time.Time
}

// Session is the tracking state of one trip. All state changes happen under
// mu, so frames, position samples and user actions never interleave.
type Session struct {
	cfg    Config
	deps   Deps
	engine *route.Engine
	now    func() time.Time
	base   context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	snap       model.Snapshot
	prompted   bool
	closed     bool
	lastSave   time.Time
	simHandle  sim.Handle
	stopDevice context.CancelFunc
	sub        *transport.Subscription
	stopTrack  context.CancelFunc
	events     chan Event
}

// Begin opens a session for a trip the backend just handed over and saves
// it right away.
func Begin(ctx context.Context, cfg Config, deps Deps, d Details, role model.Role) (*Session, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	phase := model.DerivePhase(d.Status)
	if phase.Terminal() {
		return nil, fmt.Errorf("%w: ride %s is %s", ErrInvalidPhase, d.RideID, d.Status)
	}
	s := newSession(cfg, deps, model.Snapshot{
		TripID:         d.RideID,
		RequestID:      d.RequestID,
		Role:           role,
		Phase:          phase,
		Status:         d.Status,
		Pickup:         d.Pickup,
		Dropoff:        d.Dropoff,
		MainPolyline:   d.MainPolyline,
		PickupPolyline: d.PickupPolyline,
		RequestOpen:    d.Status == model.StatusOngoing && d.RequestID != "",
	})
	log.Printf("trip %s tracking started as %s in phase %s", d.RideID, role, phase)
	s.mu.Lock()
	s.saveLocked(ctx)
	s.mu.Unlock()
	return s, nil
}

// Resume reopens the session saved in deps.Store. It returns nil when there
// is nothing to resume.
func Resume(ctx context.Context, cfg Config, deps Deps) (*Session, error) {
	if deps.Store == nil {
		return nil, nil
	}
	rec, err := deps.Store.Load(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Phase.Terminal() || !rec.Role.Valid() {
		log.Printf("discarding finished trip record %s (%s)", rec.TripID, rec.Phase)
		return nil, deps.Store.Clear(ctx)
	}
	s := newSession(cfg, deps, rec.Snapshot)
	s.mu.Lock()
	s.lastSave = time.UnixMilli(rec.SavedAtMs)
	s.mu.Unlock()
	log.Printf("trip %s resumed in phase %s", rec.TripID, rec.Phase)
	return s, nil
}

func newSession(cfg Config, deps Deps, snap model.Snapshot) *Session {
	cfg = cfg.withDefaults()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:    cfg,
		deps:   deps,
		engine: route.NewEngine(cfg.AssumedSpeedKph),
		now:    deps.Now,
		base:   base,
		cancel: cancel,
		snap:   snap,
		events: make(chan Event, eventBuffer),
	}
	s.engine.Prime(s.authoritativeRoute())
	s.project()
	if deps.Simulator != nil {
		deps.Simulator.SetListener(s.onSimSample)
	}
	if deps.Metrics != nil {
		deps.Metrics.SessionOpened()
	}
	return s
}

func (s *Session) TripID() string { return s.snap.TripID }

func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Session) Phase() model.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Phase
}

// authoritativeRoute is the route the engine follows in the current phase.
// Without an encoded route the target point alone is used, which makes the
// estimate a straight line.
func (s *Session) authoritativeRoute() geo.Route {
	switch s.snap.Phase {
	case model.PhaseToPickup:
		if r := polyline.Decode(s.snap.PickupPolyline); len(r) >= 2 {
			return r
		}
		return geo.Route{s.snap.Pickup}
	case model.PhaseToDropoff:
		if r := polyline.Decode(s.snap.MainPolyline); len(r) >= 2 {
			return r
		}
		return geo.Route{s.snap.Dropoff}
	}
	return nil
}

// vehicle is the position the route is measured from: our own for a
// driver, the driver's for a rider.
func (s *Session) vehicle() *geo.PositionSample {
	if s.snap.Role == model.RoleRider {
		return s.snap.CounterpartyPosition
	}
	return s.snap.LastPosition
}

// broadcasting reports whether our own samples go to the backend. The
// backend rejects positions for a ride it has not started.
func (s *Session) broadcasting() bool {
	if s.snap.Role != model.RoleDriver {
		return false
	}
	return !(s.snap.Phase == model.PhaseToPickup && s.snap.Status != model.StatusOngoing)
}

func (s *Session) project() {
	if s.snap.Phase.Terminal() {
		return
	}
	var pos *geo.Coordinate
	if v := s.vehicle(); v != nil {
		c := v.Coordinate
		pos = &c
	}
	p := s.engine.Project(pos)
	s.snap.CurrentRoute = p.Remaining
	s.snap.RemainingKm = p.RemainingKm
	s.snap.EtaMinutes = p.EtaMinutes
}

func (s *Session) checkArrival() {
	if s.snap.Role != model.RoleDriver || s.snap.Phase != model.PhaseToPickup || s.snap.LastPosition == nil {
		return
	}
	d := geo.HaversineMeters(s.snap.LastPosition.Coordinate, s.snap.Pickup)
	if d > s.cfg.ArrivalThresholdM {
		s.prompted = false
		return
	}
	if s.prompted {
		return
	}
	s.prompted = true
	log.Printf("trip %s within %.0fm of pickup", s.snap.TripID, d)
	s.emit(Event{Kind: EventArrivalPrompt, Phase: s.snap.Phase, Position: s.snap.LastPosition, DistanceM: d})
}

func (s *Session) emit(e Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default:
		if e.Kind != EventPositionUpdated {
			log.Printf("trip %s event buffer full, dropping %s", s.snap.TripID, e.Kind)
		}
	}
}

// applyLocked records one of our own samples. It reports false when the
// session no longer accepts positions.
func (s *Session) applyLocked(sample geo.PositionSample) bool {
	if s.closed || s.snap.Phase.Terminal() {
		return false
	}
	s.snap.LastPosition = &sample
	if s.snap.Role == model.RoleDriver {
		s.project()
	}
	s.checkArrival()
	s.emit(Event{Kind: EventPositionUpdated, Phase: s.snap.Phase, Position: &sample})
	s.saveIfDue(s.base)
	return true
}

// onSimSample receives simulator ticks. The simulator publishes on its own
// when broadcasting, so nothing is forwarded here.
func (s *Session) onSimSample(h sim.Handle, sample geo.PositionSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h != s.simHandle {
		return
	}
	s.applyLocked(sample)
}

func (s *Session) applyDevice(ctx context.Context, sample geo.PositionSample) {
	s.mu.Lock()
	if ctx.Err() != nil || !s.applyLocked(sample) {
		s.mu.Unlock()
		return
	}
	forward := s.broadcasting()
	tripID := s.snap.TripID
	s.mu.Unlock()
	if forward {
		s.forward(ctx, tripID, sample)
	}
}

// forward publishes a sample. Failures are logged and dropped; the next
// sample supersedes this one.
func (s *Session) forward(ctx context.Context, tripID string, sample geo.PositionSample) {
	if s.deps.Transport == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()
	err := s.deps.Transport.PublishPosition(ctx, tripID, sample)
	if err != nil {
		log.Printf("trip %s position forward failed: %v", tripID, err)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.PositionForwarded(err)
	}
}

func (s *Session) saveLocked(ctx context.Context) {
	if s.deps.Store == nil {
		return
	}
	s.lastSave = s.now()
	if err := s.deps.Store.Save(ctx, s.snap); err != nil {
		log.Printf("trip %s save failed: %v", s.snap.TripID, err)
	}
}

func (s *Session) saveIfDue(ctx context.Context) {
	if s.now().Sub(s.lastSave) >= s.cfg.SaveInterval {
		s.saveLocked(ctx)
	}
}

// HandleFrame applies an inbound tracking frame. Absent fields are left
// alone; a frame for another ride is ignored.
func (s *Session) HandleFrame(ctx context.Context, f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.snap.Phase.Terminal() {
		return
	}
	if f.RideID != "" && f.RideID != s.snap.TripID {
		log.Printf("trip %s ignoring frame for ride %s", s.snap.TripID, f.RideID)
		return
	}
	if pos, ok := f.Position(); ok {
		sample := geo.NewSample(pos, s.now())
		switch {
		case s.snap.Role == model.RoleRider:
			s.snap.CounterpartyPosition = &sample
			s.emit(Event{Kind: EventPositionUpdated, Phase: s.snap.Phase, Position: &sample, Counterparty: true})
		case s.snap.LastPosition == nil:
			// Frames carry the driver's location; a driver without a live
			// source takes it as its own last known position.
			s.snap.LastPosition = &sample
			s.emit(Event{Kind: EventPositionUpdated, Phase: s.snap.Phase, Position: &sample})
		}
	}
	if f.Polyline != nil {
		if r := polyline.Decode(*f.Polyline); len(r) >= 2 {
			if s.snap.Phase == model.PhaseToPickup {
				s.snap.PickupPolyline = *f.Polyline
			} else {
				s.snap.MainPolyline = *f.Polyline
			}
			s.engine.Prime(r)
		} else {
			log.Printf("trip %s ignoring unusable polyline in frame", s.snap.TripID)
		}
	}
	s.project()
	if f.DistanceKm != nil && *f.DistanceKm >= 0 {
		s.snap.RemainingKm = *f.DistanceKm
		s.snap.EtaMinutes = route.EstimateEtaMinutes(*f.DistanceKm, s.cfg.AssumedSpeedKph)
	}
	if f.EstimatedArrival != nil && *f.EstimatedArrival >= 0 {
		s.snap.EtaMinutes = f.EstimatedArrival.Ceil()
	}
	if f.Status != nil {
		s.applyStatus(ctx, model.ParseStatus(*f.Status))
	}
	if !s.snap.Phase.Terminal() {
		s.saveIfDue(ctx)
	}
}

// applyStatus follows a status the backend pushed. Phases are never skipped:
// a completion seen while still heading to pickup passes through ToDropoff.
func (s *Session) applyStatus(ctx context.Context, st model.Status) {
	if st == model.StatusUnknown {
		return
	}
	if st != s.snap.Status {
		log.Printf("trip %s status %s -> %s", s.snap.TripID, s.snap.Status, st)
		s.snap.Status = st
	}
	switch st {
	case model.StatusOngoing:
		if s.snap.Phase == model.PhaseToPickup {
			s.transition(ctx, model.PhaseToDropoff)
		}
	case model.StatusCompleted:
		if s.snap.Phase == model.PhaseToPickup {
			s.transition(ctx, model.PhaseToDropoff)
		}
		s.snap.RequestOpen = false
		s.transition(ctx, model.PhaseCompleted)
		s.finish(ctx)
	case model.StatusCancelled:
		s.snap.RequestOpen = false
		s.transition(ctx, model.PhaseCancelled)
		s.finish(ctx)
	}
}

// transition moves to phase to, re-primes the engine with that phase's
// route and saves.
func (s *Session) transition(ctx context.Context, to model.Phase) {
	from := s.snap.Phase
	if from == to {
		return
	}
	s.snap.Phase = to
	s.prompted = false
	log.Printf("trip %s phase %s -> %s", s.snap.TripID, from, to)
	if s.deps.Metrics != nil {
		s.deps.Metrics.PhaseTransition(from, to)
	}
	if to.Terminal() {
		s.engine.Prime(nil)
		s.snap.CurrentRoute = nil
		s.snap.RemainingKm = 0
		s.snap.EtaMinutes = 0
	} else {
		s.engine.Prime(s.authoritativeRoute())
		s.project()
		s.saveLocked(ctx)
		if s.simHandle.Valid() {
			if _, err := s.startSimLocked(); err != nil {
				log.Printf("trip %s simulation restart failed: %v", s.snap.TripID, err)
			}
		}
	}
	s.emit(Event{Kind: EventPhaseChanged, Phase: to, From: from})
}

func (s *Session) transitionFailed(op string, err error) error {
	log.Printf("trip %s %s failed: %v", s.snap.TripID, op, err)
	if s.deps.Metrics != nil {
		s.deps.Metrics.TransitionFailed(op)
	}
	err = fmt.Errorf("%s: %w", op, err)
	s.emit(Event{Kind: EventError, Phase: s.snap.Phase, Err: err})
	return err
}

func (s *Session) ready() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.snap.Phase.Terminal() {
		return fmt.Errorf("%w: trip is %s", ErrInvalidPhase, s.snap.Phase)
	}
	return nil
}

// ConfirmPickup asks the backend to start the ride and the passenger's
// request. The phase flips to ToDropoff only once both calls succeed.
func (s *Session) ConfirmPickup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	if s.snap.Phase != model.PhaseToPickup {
		return fmt.Errorf("%w: confirm pickup in %s", ErrInvalidPhase, s.snap.Phase)
	}
	if s.snap.Status != model.StatusOngoing {
		if err := s.deps.Backend.StartRide(ctx, s.snap.TripID); err != nil {
			return s.transitionFailed("start_ride", err)
		}
		s.snap.Status = model.StatusOngoing
	}
	if s.snap.RequestID != "" && !s.snap.RequestOpen {
		if err := s.deps.Backend.StartRequest(ctx, s.snap.RequestID); err != nil {
			return s.transitionFailed("start_request", err)
		}
		s.snap.RequestOpen = true
	}
	s.transition(ctx, model.PhaseToDropoff)
	return nil
}

// CompleteTrip completes any open request, flushes the latest position and
// completes the ride. A rejection leaves the session in ToDropoff.
func (s *Session) CompleteTrip(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	if s.snap.Phase != model.PhaseToDropoff {
		return fmt.Errorf("%w: complete trip in %s", ErrInvalidPhase, s.snap.Phase)
	}
	if s.snap.RequestOpen {
		if err := s.deps.Backend.CompleteRequest(ctx, s.snap.RequestID); err != nil {
			return s.transitionFailed("complete_request", err)
		}
		s.snap.RequestOpen = false
		s.saveLocked(ctx)
	}
	if s.snap.LastPosition != nil && s.broadcasting() {
		s.forward(ctx, s.snap.TripID, *s.snap.LastPosition)
	}
	if err := s.deps.Backend.CompleteRide(ctx, s.snap.TripID); err != nil {
		return s.transitionFailed("complete_ride", err)
	}
	s.snap.Status = model.StatusCompleted
	s.transition(ctx, model.PhaseCompleted)
	s.finish(ctx)
	return nil
}

// Cancel cancels the passenger request, if any, and ends the session. The
// session always ends locally; a backend failure is still returned so the
// caller can report it. A request the backend no longer knows counts as
// cancelled.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.snap.Phase.Terminal() {
		return nil
	}
	var failed error
	if s.snap.RequestID != "" {
		err := s.deps.Backend.CancelRequest(ctx, s.snap.RequestID)
		if err != nil && backend.ErrorID(err) != backend.ErrIDRequestNotFound {
			failed = s.transitionFailed("cancel_request", err)
		}
	}
	s.snap.Status = model.StatusCancelled
	s.snap.RequestOpen = false
	s.transition(ctx, model.PhaseCancelled)
	s.finish(ctx)
	return failed
}

// finish tears down a session that reached a terminal phase and clears the
// stored record.
func (s *Session) finish(ctx context.Context) {
	s.teardownLocked()
	if s.deps.Store != nil {
		if err := s.deps.Store.Clear(ctx); err != nil {
			log.Printf("trip %s clear record failed: %v", s.snap.TripID, err)
		}
	}
}

func (s *Session) teardownLocked() {
	s.stopSimLocked()
	s.stopDeviceLocked()
	if s.stopTrack != nil {
		s.stopTrack()
		s.stopTrack = nil
	}
	if s.sub != nil {
		err := s.deps.Transport.Unsubscribe(s.sub.ID)
		if err != nil && !errors.Is(err, transport.ErrUnknownSubscription) {
			log.Printf("trip %s unsubscribe failed: %v", s.snap.TripID, err)
		}
		s.sub = nil
	}
}

// Close stops simulation and tracking and releases the subscription. The
// stored record is kept so the trip can be resumed. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.closed = true
	s.cancel()
	close(s.events)
	tripID := s.snap.TripID
	s.mu.Unlock()

	if s.deps.Metrics != nil {
		s.deps.Metrics.SessionClosed()
	}
	log.Printf("trip %s session closed", tripID)
}

// Track subscribes to the trip's tracking topic and applies its frames
// until the session ends or the connection drops.
func (s *Session) Track() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	if s.deps.Transport == nil {
		return ErrNoTransport
	}
	if s.stopTrack != nil {
		s.stopTrack()
		s.stopTrack = nil
	}
	sub, err := s.deps.Transport.Subscribe(transport.TripTracking(s.snap.TripID))
	if err != nil {
		return fmt.Errorf("track trip %s: %w", s.snap.TripID, err)
	}
	ctx, cancel := context.WithCancel(s.base)
	s.sub = sub
	s.stopTrack = cancel
	go s.readFrames(ctx, sub)
	return nil
}

func (s *Session) readFrames(ctx context.Context, sub *transport.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.C:
			if !ok {
				s.trackingLost(sub)
				return
			}
			f, err := ParseFrame(m.Body)
			if err != nil {
				log.Printf("trip %s dropping frame: %v", s.TripID(), err)
				continue
			}
			s.HandleFrame(ctx, f)
		}
	}
}

func (s *Session) trackingLost(sub *transport.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != sub || s.closed {
		return
	}
	s.sub = nil
	if s.stopTrack != nil {
		s.stopTrack()
		s.stopTrack = nil
	}
	log.Printf("trip %s tracking stream closed", s.snap.TripID)
	s.emit(Event{Kind: EventError, Phase: s.snap.Phase, Err: transport.ErrNotConnected})
}

// StartSimulation drives the session from the simulator along the rest of
// the active route. It replaces device tracking. While the ride has not
// started the samples stay local.
func (s *Session) StartSimulation() (sim.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return sim.Handle{}, err
	}
	if s.deps.Simulator == nil {
		return sim.Handle{}, ErrNoSimulator
	}
	return s.startSimLocked()
}

func (s *Session) startSimLocked() (sim.Handle, error) {
	s.stopDeviceLocked()

	end := s.snap.Dropoff
	if s.snap.Phase == model.PhaseToPickup {
		end = s.snap.Pickup
	}
	start, ok := s.engine.Route().First()
	if s.snap.LastPosition != nil {
		start, ok = s.snap.LastPosition.Coordinate, true
	}
	if !ok {
		start = end
	}
	cfg := sim.Config{
		TripID:    s.snap.TripID,
		Start:     start,
		End:       end,
		SpeedMps:  s.cfg.SimSpeedMps,
		LocalOnly: !s.broadcasting(),
	}
	if rest := s.engine.Project(&start).Remaining; len(rest) >= 2 {
		path := append(geo.Route{start}, rest...)
		cfg.Polyline = polyline.Encode(path)
	}
	h, err := s.deps.Simulator.Start(s.base, cfg)
	if err != nil {
		return sim.Handle{}, fmt.Errorf("start simulation: %w", err)
	}
	s.simHandle = h
	return h, nil
}

// StopSimulation is safe to call when nothing is running.
func (s *Session) StopSimulation() {
	s.mu.Lock()
	s.stopSimLocked()
	s.mu.Unlock()
}

func (s *Session) stopSimLocked() {
	if s.simHandle.Valid() {
		s.deps.Simulator.Stop(s.simHandle)
		s.simHandle = sim.Handle{}
	}
}

// StartDeviceTracking feeds samples from src into the session, stopping any
// simulation. When src closes the session reports the location as
// unavailable.
func (s *Session) StartDeviceTracking(ctx context.Context, src <-chan geo.PositionSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	s.stopSimLocked()
	s.stopDeviceLocked()
	dctx, cancel := context.WithCancel(ctx)
	s.stopDevice = cancel
	go s.readDevice(dctx, src)
	return nil
}

func (s *Session) StopDeviceTracking() {
	s.mu.Lock()
	s.stopDeviceLocked()
	s.mu.Unlock()
}

func (s *Session) stopDeviceLocked() {
	if s.stopDevice != nil {
		s.stopDevice()
		s.stopDevice = nil
	}
}

func (s *Session) readDevice(ctx context.Context, src <-chan geo.PositionSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-src:
			if !ok {
				s.deviceLost(ctx)
				return
			}
			s.applyDevice(ctx, sample)
		}
	}
}

func (s *Session) deviceLost(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil || s.closed {
		return
	}
	s.stopDeviceLocked()
	log.Printf("trip %s device location stream ended", s.snap.TripID)
	s.emit(Event{Kind: EventLocationUnavailable, Phase: s.snap.Phase, Err: ErrLocationUnavailable})
}
