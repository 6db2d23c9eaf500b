// Package metrics exposes Prometheus instrumentation for the procmux CLI.
package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	processesStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "procmux",
		Name:      "processes_started_total",
		Help:      "Total number of child processes launched.",
	})

	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procmux",
		Name:      "events_total",
		Help:      "Total number of process events observed, by event type.",
	}, []string{"type"})

	killsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procmux",
		Name:      "kills_total",
		Help:      "Total number of termination attempts, by outcome.",
	}, []string{"outcome"})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "procmux",
		Name:      "build_info",
		Help:      "Build metadata for the running procmux binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(processesStarted, eventsTotal, killsTotal, buildInfo)
}

// Registry returns the Prometheus registry containing all procmux metrics.
func Registry() *prometheus.Registry {
	return registry
}

// IncProcessStarted records one launched child process.
func IncProcessStarted() {
	processesStarted.Inc()
}

// IncEvent records one observed process event of the given type.
func IncEvent(eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	eventsTotal.WithLabelValues(eventType).Inc()
}

// IncKill records the outcome of one termination attempt.
func IncKill(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	killsTotal.WithLabelValues(outcome).Inc()
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
