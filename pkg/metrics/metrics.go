// Package metrics exposes pipeline activity as Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-drivemind/pkg/pipeline"
	"github.com/teslashibe/go-drivemind/pkg/wellness"
)

const namespace = "drivemind"

// Store names for WriteFailures.
const (
	StoreProfiles = "profiles"
	StoreEvents   = "events"
	StoreFanout   = "fanout"
)

// Recorder holds the collectors. It implements pipeline.Observer.
type Recorder struct {
	registry *prometheus.Registry

	Frames        prometheus.Counter
	FacesAbsent   prometheus.Counter
	Alerts        *prometheus.CounterVec
	Reasons       *prometheus.CounterVec
	Advisories    *prometheus.CounterVec
	Skipped       prometheus.Counter
	WriteFailures *prometheus.CounterVec
	FrameSeconds  prometheus.Histogram

	EAR     prometheus.Gauge
	PERCLOS prometheus.Gauge
	Yawn    prometheus.Gauge
	Stress  prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		Frames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Total number of frames run through the pipeline",
		}),
		FacesAbsent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_without_landmarks_total",
			Help:      "Frames in which no usable face landmarks were found",
		}),
		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Samples that needed intervention, by alert level",
		}, []string{"level"}),
		Reasons: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_reasons_total",
			Help:      "Matched alert reasons on samples that needed intervention",
		}, []string{"reason"}),
		Advisories: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisories_dispatched_total",
			Help:      "Advisories dispatched, by kind",
		}, []string{"kind"}),
		Skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisories_suppressed_total",
			Help:      "Eligible advisories suppressed by the cooldown",
		}),
		WriteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Failed best-effort writes, by store",
		}, []string{"store"}),
		FrameSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Time from capture to decision for one frame",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		}),
		EAR: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ear_average",
			Help:      "Current windowed mean eye aspect ratio",
		}),
		PERCLOS: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "perclos",
			Help:      "Current fraction of closed-eye samples in the window",
		}),
		Yawn: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "yawn_opening",
			Help:      "Latest mouth opening in pixels",
		}),
		Stress: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stress_score",
			Help:      "Latest stress score in [0, 1]",
		}),
	}
}

// Observe implements pipeline.Observer.
func (r *Recorder) Observe(_ context.Context, res pipeline.Result) {
	r.Frames.Inc()
	r.Stress.Set(res.Affect.Stress)

	if res.Metrics.NoData {
		r.FacesAbsent.Inc()
	} else {
		r.EAR.Set(res.Metrics.EARAvg)
		r.PERCLOS.Set(res.Metrics.PERCLOS)
		r.Yawn.Set(res.Metrics.Yawn)
	}

	if res.Status.NeedsIntervention {
		r.Alerts.WithLabelValues(res.Status.Level.String()).Inc()
		for _, reason := range res.Status.Reasons {
			r.Reasons.WithLabelValues(string(reason)).Inc()
		}
	}
	if res.Advisory != nil {
		r.Advisories.WithLabelValues(string(res.Advisory.Kind)).Inc()
	}
}

// ObserveFrame records how long one frame took end to end.
func (r *Recorder) ObserveFrame(d time.Duration) {
	r.FrameSeconds.Observe(d.Seconds())
}

// SkipHook counts cooldown suppressions. Assign it to Scheduler.OnSkip.
func (r *Recorder) SkipHook(wellness.Status) {
	r.Skipped.Inc()
}

// WriteFailureHook returns a callback counting failures for store.
func (r *Recorder) WriteFailureHook(store string) func(error) {
	c := r.WriteFailures.WithLabelValues(store)
	return func(error) { c.Inc() }
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

var _ pipeline.Observer = (*Recorder)(nil)
