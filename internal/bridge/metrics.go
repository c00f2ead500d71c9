package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the driver's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	Ticks         prometheus.Counter
	BundlesSent   prometheus.Counter
	MessagesSent  *prometheus.CounterVec
	SendErrors    prometheus.Counter
	SampleErrors  *prometheus.CounterVec
	RefreshErrors prometheus.Counter
	BundleBytes   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vr2osc_ticks_total",
			Help: "Polling ticks executed.",
		}),
		BundlesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vr2osc_bundles_sent_total",
			Help: "OSC bundles handed to the transport.",
		}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vr2osc_messages_sent_total",
			Help: "OSC messages produced, by action.",
		}, []string{"group", "action"}),
		SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vr2osc_send_errors_total",
			Help: "Bundles dropped because the transport failed.",
		}),
		SampleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vr2osc_sample_errors_total",
			Help: "Failed input samples, by action.",
		}, []string{"group", "action"}),
		RefreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vr2osc_refresh_errors_total",
			Help: "Ticks skipped because the input source could not refresh.",
		}),
		BundleBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vr2osc_bundle_bytes",
			Help:    "Encoded bundle size in bytes.",
			Buckets: prometheus.ExponentialBuckets(32, 2, 8),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Ticks,
			m.BundlesSent,
			m.MessagesSent,
			m.SendErrors,
			m.SampleErrors,
			m.RefreshErrors,
			m.BundleBytes,
		)
	}
	return m
}

func (m *Metrics) tick() {
	if m == nil {
		return
	}
	m.Ticks.Inc()
}

func (m *Metrics) refreshError() {
	if m == nil {
		return
	}
	m.RefreshErrors.Inc()
}

func (m *Metrics) sampleError(st *ActionState) {
	if m == nil {
		return
	}
	m.SampleErrors.WithLabelValues(st.Group(), st.Action().ID).Inc()
}

func (m *Metrics) messages(st *ActionState, n int) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(st.Group(), st.Action().ID).Add(float64(n))
}

func (m *Metrics) sendError() {
	if m == nil {
		return
	}
	m.SendErrors.Inc()
}

func (m *Metrics) bundle(size int) {
	if m == nil {
		return
	}
	m.BundlesSent.Inc()
	m.BundleBytes.Observe(float64(size))
}
