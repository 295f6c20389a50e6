package dashboard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("lakedash/dashboard")

// Metrics records pipeline timings. A nil *Metrics records nothing.
type Metrics struct {
	uploadSeconds *prometheus.HistogramVec
	reports       *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		uploadSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lakedash",
			Name:      "bundle_upload_seconds",
			Help:      "Time spent uploading staged dashboard bundles.",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		reports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lakedash",
			Name:      "reports_created_total",
			Help:      "Report registration attempts by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) observeUpload(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.uploadSeconds.WithLabelValues(outcome(err)).Observe(d.Seconds())
}

func (m *Metrics) countReport(err error) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
