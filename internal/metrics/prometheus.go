package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/notionclean/internal/models"
)

const namespace = "notionclean"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	files       *prom.CounterVec
	runDuration prom.Histogram
	collisions  prom.Counter
}

// NewPrometheusRecorder constructs the metrics and registers them on reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		files: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Processed export files by kind and outcome",
		}, []string{"kind", "status"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of full cleaning runs",
			Buckets:   prom.DefBuckets,
		}),
		collisions: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "collisions_total",
			Help:      "Destinations claimed by more than one source",
		}),
	}
	reg.MustRegister(pr.files, pr.runDuration, pr.collisions)
	return pr
}

func (p *PrometheusRecorder) IncFileResult(kind models.Kind, status models.Status) {
	p.files.WithLabelValues(string(kind), string(status)).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddCollisions(n int) {
	if n > 0 {
		p.collisions.Add(float64(n))
	}
}

// HTTPHandler serves the metrics of reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
