package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trip-tracker/internal/api"
	"trip-tracker/internal/auth"
	"trip-tracker/internal/backend"
	"trip-tracker/internal/config"
	"trip-tracker/internal/db"
	"trip-tracker/internal/metrics"
	"trip-tracker/internal/model"
	"trip-tracker/internal/sim"
	"trip-tracker/internal/store"
	"trip-tracker/internal/transport"
	"trip-tracker/internal/trip"
)

func main() {
	// Load configuration from .env, optional YAML file and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mcol := metrics.NewCollector(cfg.ArrivalThresholdM, cfg.SimTick)
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = mcol.Serve(cfg.MetricsAddr)
	}

	backendStore, closeStore := openStore(ctx, cfg)
	defer closeStore()
	st := store.New(backendStore, cfg.StoreKey, cfg.RecordTTL, store.WithMetrics(mcol))

	tr := transport.New(transport.Options{
		Endpoints:      cfg.Endpoints,
		Token:          cfg.Token,
		AttemptTimeout: cfg.ConnectTimeout,
		Heartbeat:      cfg.Heartbeat,
		Metrics:        mcol,
		LogFrames:      cfg.LogTransportFrames,
	})
	if err := tr.Connect(ctx); err != nil {
		msg, _ := trip.UserMessage(err)
		log.Printf("transport unavailable, tracking offline: %v (%s)", err, msg)
	} else {
		if err := tr.PublishDiagnostic(ctx, map[string]any{"event": "tracker_started", "role": cfg.Role, "at": time.Now().UTC()}); err != nil {
			log.Printf("diagnostic publish error: %v", err)
		}
	}

	simulator := sim.New(tr, cfg.SimTick, mcol)
	deps := trip.Deps{
		Backend:   backend.NewClient(cfg.BackendURL, cfg.Token, cfg.ConnectTimeout),
		Transport: tr,
		Simulator: simulator,
		Store:     st,
		Metrics:   mcol,
	}
	tcfg := trip.Config{
		ArrivalThresholdM: cfg.ArrivalThresholdM,
		AssumedSpeedKph:   cfg.AssumedSpeedKph,
		SaveInterval:      cfg.SaveInterval,
		SimSpeedMps:       cfg.SimSpeedMps,
	}
	role := model.Role(cfg.Role)

	begin := func(ctx context.Context, d trip.Details) (*trip.Session, error) {
		sess, err := trip.Begin(ctx, tcfg, deps, d, role)
		if err != nil {
			return nil, err
		}
		attach(sess, tr)
		return sess, nil
	}
	srv := api.NewServer(begin, mcol.Handler())

	sess, err := trip.Resume(ctx, tcfg, deps)
	if err != nil {
		log.Printf("resume error: %v", err)
	}
	if sess != nil {
		attach(sess, tr)
	} else if cfg.SimulateTrip != "" {
		sess = simulateFromFile(ctx, cfg.SimulateTrip, begin)
	}
	srv.SetSession(sess)
	if tr.Connected() {
		watchQueues(ctx, tr, cfg, sess)
	}

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Routes()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()
	log.Printf("tracker listening on %s as %s", cfg.HTTPAddr, cfg.Role)

	// Block until context cancelled
	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelShutdown()
	_ = httpSrv.Shutdown(shutdownCtx)
	// sessions stop tracking before the transport goes away
	srv.SetSession(nil)
	if err := tr.Disconnect(); err != nil {
		log.Printf("transport disconnect error: %v", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Println("shutdown complete")
}

// openStore connects the configured record backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Backend, func()) {
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db open error: %v", err)
		}
		if err := db.Ping(ctx, pool); err != nil {
			log.Fatalf("db ping error: %v", err)
		}
		tbl := db.NewRecordTable(pool, "")
		if err := tbl.EnsureSchema(ctx); err != nil {
			log.Fatalf("db schema error: %v", err)
		}
		return tbl, pool.Close
	default:
		client := db.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping error: %v", err)
		}
		return db.NewRedisKV(client, cfg.RecordTTL), func() { _ = client.Close() }
	}
}

// attach starts frame tracking and event logging for a session.
func attach(sess *trip.Session, tr *transport.Transport) {
	if tr.Connected() {
		if err := sess.Track(); err != nil {
			log.Printf("trip %s tracking error: %v", sess.TripID(), err)
		}
	}
	go logEvents(sess)
}

func logEvents(sess *trip.Session) {
	for e := range sess.Events() {
		switch e.Kind {
		case trip.EventArrivalPrompt:
			log.Printf("trip %s: %.0fm from pickup, confirm with POST /session/pickup", sess.TripID(), e.DistanceM)
		case trip.EventPhaseChanged:
			log.Printf("trip %s: now %s", sess.TripID(), e.Phase)
		case trip.EventError, trip.EventLocationUnavailable:
			msg, retry := trip.UserMessage(e.Err)
			log.Printf("trip %s: %s (retry=%v)", sess.TripID(), msg, retry)
		}
	}
}

func simulateFromFile(ctx context.Context, path string, begin api.BeginFunc) *trip.Session {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Printf("simulate trip: %v", err)
		return nil
	}
	d, err := trip.ParseTrip(b)
	if err != nil {
		log.Printf("simulate trip: %v", err)
		return nil
	}
	sess, err := begin(ctx, d)
	if err != nil {
		log.Printf("simulate trip %s: %v", d.RideID, err)
		return nil
	}
	if _, err := sess.StartSimulation(); err != nil {
		log.Printf("simulate trip %s: %v", d.RideID, err)
	}
	return sess
}

// watchQueues subscribes to the role's inbound queues and logs what
// arrives. Offers and matches are acted on by the booking flow, not here.
func watchQueues(ctx context.Context, tr *transport.Transport, cfg *config.Config, sess *trip.Session) {
	var topics []string
	if claims, err := auth.Parse(cfg.Token); err == nil && claims.Subject != "" {
		topics = append(topics, transport.UserNotifications(claims.Subject))
		if cfg.Role == string(model.RoleRider) {
			topics = append(topics, transport.RiderMatching(claims.Subject))
		}
	} else {
		log.Printf("no user subject in token, skipping user queues")
	}
	// drivers get offers for the cell they are in
	if cfg.Role == string(model.RoleDriver) && sess != nil {
		if last := sess.Snapshot().LastPosition; last != nil {
			topics = append(topics, transport.DriverOffers(last.Coordinate))
		}
	}
	for _, topic := range topics {
		sub, err := tr.Subscribe(topic)
		if err != nil {
			log.Printf("subscribe %s: %v", topic, err)
			continue
		}
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case m, ok := <-sub.C:
					if !ok {
						return
					}
					log.Printf("queue %s: %d bytes", m.Topic, len(m.Body))
				}
			}
		}()
	}
}
