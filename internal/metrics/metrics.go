package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trip-tracker/internal/model"
	"trip-tracker/internal/transport"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveSessions prometheus.Gauge

	FramesReceived      *prometheus.CounterVec // topic_kind label
	PositionsForwarded  prometheus.Counter
	PositionForwardErrs prometheus.Counter
	PublishDuration     prometheus.Histogram
	Publishes           *prometheus.CounterVec // result label

	ConnectAttempts    *prometheus.CounterVec // scheme, result labels
	TransportConnected prometheus.Gauge

	PhaseTransitions *prometheus.CounterVec // from, to labels
	TransitionErrors *prometheus.CounterVec // op label

	TickDuration prometheus.Histogram
	RecordSaves  prometheus.Counter

	ArrivalThreshold prometheus.Gauge // meters
	SimTickInterval  prometheus.Gauge // seconds
}

func NewCollector(arrivalThresholdM float64, simTick time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_active_sessions",
			Help: "Number of open tracking sessions.",
		}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_frames_received_total",
			Help: "Inbound realtime frames by topic kind.",
		}, []string{"topic_kind"}),
		PositionsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_positions_forwarded_total",
			Help: "Position samples forwarded to the backend.",
		}),
		PositionForwardErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_position_forward_errors_total",
			Help: "Position samples dropped because forwarding failed.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_publish_duration_seconds",
			Help:    "Duration of a realtime publish.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_publishes_total",
			Help: "Realtime publishes by result.",
		}, []string{"result"}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_connect_attempts_total",
			Help: "Endpoint connection attempts by scheme and result.",
		}, []string{"scheme", "result"}),
		TransportConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_transport_connected",
			Help: "1 if the realtime transport is connected, 0 otherwise.",
		}),
		PhaseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_phase_transitions_total",
			Help: "Trip phase transitions.",
		}, []string{"from", "to"}),
		TransitionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_transition_errors_total",
			Help: "Backend calls for phase transitions that failed.",
		}, []string{"op"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_sim_tick_duration_seconds",
			Help:    "Duration of simulation tick computations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		RecordSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_record_saves_total",
			Help: "Active trip record writes.",
		}),
		ArrivalThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_arrival_threshold_meters",
			Help: "Distance from pickup that triggers the arrival prompt.",
		}),
		SimTickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_sim_tick_interval_seconds",
			Help: "Simulator tick interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.ActiveSessions,
		c.FramesReceived, c.PositionsForwarded, c.PositionForwardErrs, c.PublishDuration, c.Publishes,
		c.ConnectAttempts, c.TransportConnected,
		c.PhaseTransitions, c.TransitionErrors,
		c.TickDuration, c.RecordSaves,
		c.ArrivalThreshold, c.SimTickInterval,
	)

	c.ArrivalThreshold.Set(arrivalThresholdM)
	c.SimTickInterval.Set(simTick.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}

// transport

func (c *Collector) ConnectAttempt(scheme string, ok bool) {
	c.ConnectAttempts.WithLabelValues(scheme, result(ok)).Inc()
}

func (c *Collector) SetConnected(connected bool) {
	if connected {
		c.TransportConnected.Set(1)
	} else {
		c.TransportConnected.Set(0)
	}
}

func (c *Collector) FrameReceived(topic string) {
	c.FramesReceived.WithLabelValues(transport.Kind(topic)).Inc()
}

func (c *Collector) PublishObserve(d time.Duration, err error) {
	c.PublishDuration.Observe(d.Seconds())
	c.Publishes.WithLabelValues(result(err == nil)).Inc()
}

// simulator

func (c *Collector) TickObserve(d time.Duration) { c.TickDuration.Observe(d.Seconds()) }

// store

func (c *Collector) RecordSaved() { c.RecordSaves.Inc() }

// session

func (c *Collector) SessionOpened() { c.ActiveSessions.Inc() }

func (c *Collector) SessionClosed() { c.ActiveSessions.Dec() }

func (c *Collector) PositionForwarded(err error) {
	if err != nil {
		c.PositionForwardErrs.Inc()
		return
	}
	c.PositionsForwarded.Inc()
}

func (c *Collector) PhaseTransition(from, to model.Phase) {
	c.PhaseTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (c *Collector) TransitionFailed(op string) { c.TransitionErrors.WithLabelValues(op).Inc() }

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
