// Package metrics exposes post office client activity as Prometheus
// metrics.
//
// A Collector is a protocol log sink: attach it to the session or
// connection config (directly or through a MultiLogger) and every
// frame, envelope, control action, state change and error is counted.
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewCollector("postoffice")
//	m.MustRegister(reg)
//	cfg.ProtocolLogger = plog.NewMultiLogger(fileLogger, m)
//	http.Handle("/metrics", metrics.Handler(reg))
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	plog "github.com/zhycit/postoffice-go/pkg/log"
	"github.com/zhycit/postoffice-go/pkg/transport"
)

// Collector counts protocol events.
type Collector struct {
	frames        *prometheus.CounterVec
	frameBytes    *prometheus.CounterVec
	envelopes     *prometheus.CounterVec
	controls      *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	errors        *prometheus.CounterVec
	open          prometheus.Gauge
	lastHeartbeat prometheus.Gauge
}

var _ plog.Logger = (*Collector)(nil)

// NewCollector creates the metrics under namespace. They are not
// registered until Register or MustRegister is called.
func NewCollector(namespace string) *Collector {
	return &Collector{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_total",
			Help:      "Number of WebSocket data frames sent or received.",
		}, []string{"direction", "kind"}),
		frameBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frame_bytes_total",
			Help:      "Payload bytes of WebSocket data frames.",
		}, []string{"direction"}),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "envelopes_total",
			Help:      "Number of envelopes sent or received, by envelope type.",
		}, []string{"direction", "type"}),
		controls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "control_total",
			Help:      "Number of control actions (heartbeat, login, logout, close).",
		}, []string{"direction", "type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Number of state transitions, by entity and new state.",
		}, []string{"entity", "state"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Number of errors, by layer.",
		}, []string{"layer"}),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connections_open",
			Help:      "Number of connections in the OPEN state.",
		}),
		lastHeartbeat: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "last_heartbeat_timestamp_seconds",
			Help:      "Unix time of the last heartbeat sent.",
		}),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.frames, c.frameBytes, c.envelopes, c.controls,
		c.transitions, c.errors, c.open, c.lastHeartbeat,
	}
}

// Register registers all metrics with reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range c.collectors() {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister registers all metrics with reg and panics on conflict.
func (c *Collector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(c.collectors()...)
}

// Log counts a protocol event.
func (c *Collector) Log(ev plog.Event) {
	dir := label(ev.Direction.String())

	if ev.Frame != nil {
		kind := "text"
		if ev.Frame.Binary {
			kind = "binary"
		}
		c.frames.WithLabelValues(dir, kind).Inc()
		c.frameBytes.WithLabelValues(dir).Add(float64(ev.Frame.Size))
	}

	if ev.Envelope != nil {
		c.envelopes.WithLabelValues(dir, ev.Envelope.Type).Inc()
	}

	if ev.Control != nil {
		c.controls.WithLabelValues(dir, label(ev.Control.Type.String())).Inc()
		if ev.Control.Type == plog.ControlHeartbeat {
			c.lastHeartbeat.Set(float64(ev.Timestamp.UnixNano()) / 1e9)
		}
	}

	if sc := ev.StateChange; sc != nil {
		c.transitions.WithLabelValues(label(sc.Entity.String()), label(sc.NewState)).Inc()
		if sc.Entity == plog.StateEntityConnection {
			open := transport.StateOpen.String()
			switch {
			case sc.NewState == open:
				c.open.Inc()
			case sc.OldState == open:
				c.open.Dec()
			}
		}
	}

	if ev.Error != nil {
		c.errors.WithLabelValues(label(ev.Error.Layer.String())).Inc()
	}
}

// Handler serves the metrics gathered by reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func label(s string) string {
	return strings.ToLower(s)
}
