package remote

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the hub collectors.
type Metrics struct {
	Active  prometheus.Gauge
	Created *prometheus.CounterVec
	Evicted prometheus.Counter
	Lines   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ason_hub_sessions_active",
			Help: "Number of live remote sessions",
		}),
		Created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ason_hub_sessions_created_total",
			Help: "Remote sessions created, by execution mode",
		}, []string{"mode"}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ason_hub_sessions_evicted_total",
			Help: "Remote sessions disposed by the idle sweeper",
		}),
		Lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ason_hub_lines_total",
			Help: "Protocol lines relayed, by direction",
		}, []string{"direction"}),
	}
	reg.MustRegister(m.Active, m.Created, m.Evicted, m.Lines)
	return m
}
