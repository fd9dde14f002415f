package internal

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "webidctl"

// Metrics records cache activity in Prometheus collectors.
type Metrics struct {
	hits       prometheus.Counter
	exchanges  *prometheus.CounterVec
	expiration prometheus.Gauge
}

var _ Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Credential requests served from the cache without an exchange.",
		}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "exchanges_total",
			Help:      "Web identity token exchanges by result.",
		}, []string{"result"}),
		expiration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "credentials_expiration_timestamp_seconds",
			Help:      "Expiration of the cached credentials as a Unix timestamp.",
		}),
	}
	for _, c := range []prometheus.Collector{m.hits, m.exchanges, m.expiration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) CacheHit() {
	m.hits.Inc()
}

func (m *Metrics) ExchangeCompleted(creds Credentials, err error) {
	if err != nil {
		m.exchanges.WithLabelValues("error").Inc()
		return
	}
	m.exchanges.WithLabelValues("success").Inc()
	m.expiration.Set(float64(creds.Expiration.Unix()))
}
