package session

import (
	"context"

	"github.com/gocql/gocql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the sessions of every provider.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		requestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cqlflow",
			Name:      "cassandra_request_duration_seconds",
			Help:      "Time spent doing Cassandra requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9),
		}, []string{"provider", "status_code"}),
	}
}

func (m *Metrics) observer(provider string) observer {
	return observer{provider: provider, m: m}
}

type observer struct {
	provider string
	m        *Metrics
}

func (o observer) ObserveQuery(_ context.Context, q gocql.ObservedQuery) {
	status := "success"
	if q.Err != nil {
		status = "failure"
	}
	o.m.requestDuration.WithLabelValues(o.provider, status).Observe(q.End.Sub(q.Start).Seconds())
}
