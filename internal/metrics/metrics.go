// Package metrics exposes the engine's prometheus instruments. HTTP-level
// metrics come from the echoprometheus middleware in the web package, this
// covers the dispatch pipeline itself.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	sent     *prometheus.CounterVec
	failed   *prometheus.CounterVec
	requeued prometheus.Counter
}

// New registers the engine instruments on the default registerer. pending
// reports the current spool depth and is scraped lazily.
func New(pending func() float64) *Metrics {
	factory := promauto.With(prometheus.DefaultRegisterer)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "courier_spool_pending",
		Help: "Number of jobs waiting in the dispatch queue.",
	}, pending)

	return &Metrics{
		sent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_emails_sent_total",
			Help: "Emails dispatched successfully.",
		}, []string{"app"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_emails_failed_total",
			Help: "Emails that reached a terminal failure.",
		}, []string{"app"}),
		requeued: factory.NewCounter(prometheus.CounterOpts{
			Name: "courier_jobs_requeued_total",
			Help: "Jobs sent back to the queue after quota exhaustion.",
		}),
	}
}

// The increment methods tolerate a nil receiver so tests can run the
// dispatcher without a registry.

func (m *Metrics) Sent(app string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(app).Inc()
}

func (m *Metrics) Failed(app string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(app).Inc()
}

func (m *Metrics) Requeued() {
	if m == nil {
		return
	}
	m.requeued.Inc()
}
