package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	scriptStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devmon",
			Subsystem: "script",
			Name:      "starts_total",
			Help:      "Number of command chain executions (initial start and reloads).",
		}, []string{"script"},
	)
	scriptReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devmon",
			Subsystem: "script",
			Name:      "reloads_total",
			Help:      "Number of reloads triggered by file changes.",
		}, []string{"script"},
	)
	processKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devmon",
			Subsystem: "process",
			Name:      "kills_total",
			Help:      "Number of forced terminations issued by the supervisor.",
		}, []string{"script"},
	)
	processExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devmon",
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Number of natural main process exits by cleanliness.",
		}, []string{"script", "clean"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{scriptStarts, scriptReloads, processKills, processExits}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// default gatherer. The caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(script string)  { scriptStarts.WithLabelValues(script).Inc() }
func IncReload(script string) { scriptReloads.WithLabelValues(script).Inc() }
func IncKill(script string)   { processKills.WithLabelValues(script).Inc() }

func IncExit(script string, clean bool) {
	processExits.WithLabelValues(script, strconv.FormatBool(clean)).Inc()
}
