package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set holds the recorder's observable counters on a private registry, so the
// /metrics endpoint never exposes unrelated process-global collectors.
type Set struct {
	Registry *prometheus.Registry

	EventsAccepted  prometheus.Counter
	EventsRejected  prometheus.Counter
	SinkDropped     *prometheus.CounterVec
	FramesExtracted prometheus.Counter
	FramesFailed    prometheus.Counter
}

// New creates and registers the counter set.
func New() *Set {
	s := &Set{
		Registry: prometheus.NewRegistry(),
		EventsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracecap_events_accepted_total",
			Help: "Events accepted by the capture pipeline.",
		}),
		EventsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracecap_events_rejected_total",
			Help: "Raw notifications rejected (unparseable, unmarked, or filtered).",
		}),
		SinkDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracecap_sink_dropped_total",
			Help: "Items dropped at a full sink instead of blocking the producer.",
		}, []string{"sink"}),
		FramesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracecap_frames_extracted_total",
			Help: "Still frames successfully extracted during reconciliation.",
		}),
		FramesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracecap_frames_failed_total",
			Help: "Per-event frame extraction failures (skipped, not fatal).",
		}),
	}

	s.Registry.MustRegister(
		s.EventsAccepted, s.EventsRejected, s.SinkDropped,
		s.FramesExtracted, s.FramesFailed,
	)
	return s
}

// Handler returns the promhttp handler for this set's registry.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})
}
