package trigger

import (
	"context"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grafana/cqlflow/pkg/metrics"
	"github.com/grafana/cqlflow/pkg/runner"
)

const (
	resultSuccess = "success"
	resultEmpty   = "empty"
	resultError   = "error"
)

type Metrics struct {
	evaluations *prometheus.CounterVec
	executions  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		evaluations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "cqlflow",
			Name:      "trigger_evaluations_total",
			Help:      "Total number of trigger evaluations by result.",
		}, []string{"trigger", "result"}),
		executions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "cqlflow",
			Name:      "trigger_executions_total",
			Help:      "Total number of executions created by triggers.",
		}, []string{"trigger"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cqlflow",
			Name:      "trigger_evaluation_duration_seconds",
			Help:      "Time spent evaluating a trigger.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"}),
	}
}

// Service evaluates a trigger on every tick of its interval. A failed
// evaluation is logged and counted; the next tick runs as scheduled.
type Service struct {
	services.Service

	trigger *Trigger
	rc      *runner.Context
	metrics *Metrics
	clock   quartz.Clock
	logger  log.Logger
}

// NewService schedules t. Counters emitted by its runs are exported under
// the trigger ID through counters.
func NewService(t *Trigger, rc *runner.Context, m *Metrics, counters *metrics.Prometheus) *Service {
	if counters != nil {
		rc = rc.WithMetrics(counters.ForTask(t.ID()))
	}
	s := &Service{
		trigger: t,
		rc:      rc,
		metrics: m,
		clock:   t.clock,
		logger:  t.logger,
	}
	s.Service = services.NewBasicService(nil, s.running, nil).WithName("trigger " + t.ID())
	return s
}

func (s *Service) running(ctx context.Context) error {
	level.Info(s.logger).Log("msg", "trigger started", "interval", s.trigger.Interval())
	w := s.clock.TickerFunc(ctx, s.trigger.Interval(), func() error {
		s.evaluate(ctx)
		return nil
	}, "trigger", s.trigger.ID())

	err := w.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Service) evaluate(ctx context.Context) {
	start := s.clock.Now()
	e, err := s.trigger.Evaluate(ctx, s.rc)
	s.metrics.duration.WithLabelValues(s.trigger.ID()).Observe(s.clock.Since(start).Seconds())

	switch {
	case err != nil:
		if ctx.Err() != nil {
			return
		}
		s.metrics.evaluations.WithLabelValues(s.trigger.ID(), resultError).Inc()
		level.Error(s.logger).Log("msg", "trigger evaluation failed", "err", err)
	case e == nil:
		s.metrics.evaluations.WithLabelValues(s.trigger.ID(), resultEmpty).Inc()
	default:
		s.metrics.evaluations.WithLabelValues(s.trigger.ID(), resultSuccess).Inc()
		s.metrics.executions.WithLabelValues(s.trigger.ID()).Inc()
		level.Info(s.logger).Log("msg", "execution created", "execution", e.ID, "rows", e.Trigger.Variables.RowCount())
	}
}

// Manager runs the services of every configured trigger.
type Manager struct {
	services.Service

	subservices        *services.Manager
	subservicesWatcher *services.FailureWatcher
}

func NewManager(triggers []*Service) (*Manager, error) {
	m := &Manager{}
	if len(triggers) > 0 {
		svcs := make([]services.Service, 0, len(triggers))
		for _, t := range triggers {
			svcs = append(svcs, t)
		}
		var err error
		m.subservices, err = services.NewManager(svcs...)
		if err != nil {
			return nil, errors.Wrap(err, "services manager")
		}
		m.subservicesWatcher = services.NewFailureWatcher()
		m.subservicesWatcher.WatchManager(m.subservices)
	}
	m.Service = services.NewBasicService(m.starting, m.running, m.stopping).WithName("triggers")
	return m, nil
}

func (m *Manager) starting(ctx context.Context) error {
	if m.subservices == nil {
		return nil
	}
	return services.StartManagerAndAwaitHealthy(ctx, m.subservices)
}

func (m *Manager) running(ctx context.Context) error {
	if m.subservices == nil {
		<-ctx.Done()
		return nil
	}
	select {
	case <-ctx.Done():
		return nil
	case err := <-m.subservicesWatcher.Chan():
		return errors.Wrap(err, "trigger failed")
	}
}

func (m *Manager) stopping(_ error) error {
	if m.subservices == nil {
		return nil
	}
	return services.StopManagerAndAwaitStopped(context.Background(), m.subservices)
}
