// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package metrics exposes node activity counters on a Prometheus HTTP
// endpoint, implementing node.MetricsRecorder.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NeuroRehack/WMORE/node"
)

// Recorder implements node.MetricsRecorder, registering its metrics into a
// private registry rather than prometheus's global default so that running
// several nodes (or tests) in one process never collides on metric names.
type Recorder struct {
	reg   *prometheus.Registry
	role  *prometheus.GaugeVec
	ticks prometheus.Counter
	polls prometheus.Counter
	stops prometheus.Counter
}

// New builds a Recorder for nodeID with its own Prometheus registry.
func New(nodeID string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"node_id": nodeID}

	return &Recorder{
		reg: reg,
		role: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "wmore",
			Name:        "node_role",
			Help:        "Current role of the node: 0=idle, 1=coord, 2=logger.",
			ConstLabels: labels,
		}, nil),
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "wmore",
			Name:        "node_ticks_total",
			Help:        "Number of START_TICK broadcasts sent while coordinating.",
			ConstLabels: labels,
		}),
		polls: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "wmore",
			Name:        "node_polls_total",
			Help:        "Number of unicast POLL frames sent to logger pipes.",
			ConstLabels: labels,
		}),
		stops: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "wmore",
			Name:        "node_stops_total",
			Help:        "Number of STOP broadcast handshakes initiated.",
			ConstLabels: labels,
		}),
	}
}

// SetRole records the node's current role as a gauge.
func (r *Recorder) SetRole(role node.Role) {
	r.role.WithLabelValues().Set(float64(role))
}

// IncTicks counts one START_TICK broadcast.
func (r *Recorder) IncTicks() { r.ticks.Inc() }

// IncPolls counts one unicast POLL frame.
func (r *Recorder) IncPolls() { r.polls.Inc() }

// IncStops counts one STOP broadcast handshake.
func (r *Recorder) IncStops() { r.stops.Inc() }

// ListenAndServe starts the Prometheus scrape endpoint for this Recorder's
// registry and blocks until it fails. Run it in its own goroutine.
func (r *Recorder) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
