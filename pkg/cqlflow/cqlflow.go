// Package cqlflow wires configured queries and triggers to their storage,
// execution and metrics collaborators.
package cqlflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/grafana/cqlflow/pkg/compression"
	"github.com/grafana/cqlflow/pkg/execution"
	"github.com/grafana/cqlflow/pkg/materialize"
	"github.com/grafana/cqlflow/pkg/metrics"
	"github.com/grafana/cqlflow/pkg/query"
	"github.com/grafana/cqlflow/pkg/runner"
	"github.com/grafana/cqlflow/pkg/session"
	"github.com/grafana/cqlflow/pkg/storage"
	"github.com/grafana/cqlflow/pkg/storage/bucket"
	"github.com/grafana/cqlflow/pkg/trigger"
	util_log "github.com/grafana/cqlflow/pkg/util/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CQLFlow is the root datastructure for cqlflow.
type CQLFlow struct {
	Cfg Config

	logger   log.Logger
	reg      prometheus.Registerer
	gatherer prometheus.Gatherer
	clock    quartz.Clock
	fs       afero.Fs

	results        *storage.Results
	counters       *metrics.Prometheus
	sessionMetrics *session.Metrics
	triggerMetrics *trigger.Metrics

	enqueuer      execution.Enqueuer
	closeEnqueuer func()

	queries  map[string]*query.Query
	triggers []*trigger.Trigger
}

// New makes a new CQLFlow from a validated config.
func New(ctx context.Context, cfg Config, logger log.Logger, reg *prometheus.Registry) (*CQLFlow, error) {
	c := &CQLFlow{
		Cfg:      cfg,
		logger:   logger,
		reg:      reg,
		gatherer: reg,
		clock:    quartz.NewReal(),
		fs:       afero.NewOsFs(),
		queries:  map[string]*query.Query{},
	}
	session.SetDriverLogger(logger)

	bkt, err := bucket.NewClient(ctx, cfg.Storage.Config, "results", logger, reg)
	if err != nil {
		return nil, errors.Wrap(err, "creating result storage")
	}
	c.results = storage.NewResults(bkt)
	c.counters = metrics.NewPrometheus(reg)
	c.sessionMetrics = session.NewMetrics(reg)
	c.triggerMetrics = trigger.NewMetrics(reg)

	c.enqueuer, c.closeEnqueuer, err = execution.NewEnqueuer(cfg.Execution, logger, reg)
	if err != nil {
		return nil, errors.Wrap(err, "creating execution enqueuer")
	}

	for _, qc := range cfg.Queries {
		q, err := query.NewFromConfig(qc, c.sessionMetrics, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.queries[qc.ID] = q
	}

	factory := execution.NewFactory(c.enqueuer, c.clock)
	for _, tc := range cfg.Triggers {
		q, err := query.NewFromConfig(tc.Config, c.sessionMetrics, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.triggers = append(c.triggers, trigger.New(tc, q, factory, c.clock, logger))
	}
	return c, nil
}

// RunContext returns a fresh run context for task.
func (c *CQLFlow) RunContext(task string) *runner.Context {
	return runner.New(runner.Context{
		Logger:      log.With(c.logger, "task", task),
		Metrics:     c.counters.ForTask(task),
		Clock:       c.clock,
		Storage:     c.results,
		FS:          c.fs,
		WorkingDir:  c.Cfg.WorkingDirectory,
		Compression: c.Cfg.Storage.Compression,
		KeyPrefix:   path.Join(c.Cfg.Storage.KeyPrefix, task),
	})
}

// RunQuery runs the configured query id once.
func (c *CQLFlow) RunQuery(ctx context.Context, id string) (*materialize.Output, error) {
	q, ok := c.queries[id]
	if !ok {
		return nil, fmt.Errorf("unknown query %q", id)
	}
	return q.Run(ctx, c.RunContext(id))
}

// ReadResult writes the rows of the stored result uri to w, one JSON
// object per line, and returns the number of rows.
func (c *CQLFlow) ReadResult(ctx context.Context, uri string, w io.Writer) (n int64, err error) {
	key, err := storage.KeyFromURI(uri)
	if err != nil {
		return 0, err
	}
	codec, err := compression.FromFileName(path.Base(key), materialize.FileExtension)
	if err != nil {
		return 0, err
	}

	rc, err := c.results.Get(ctx, uri)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	zr, err := compression.NewReader(codec, rc)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	r, err := materialize.NewReader(zr)
	if err != nil {
		return 0, err
	}
	for {
		row, err := r.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		b, err := row.MarshalJSON()
		if err != nil {
			return n, err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return n, err
		}
		n++
	}
}

// TriggerManager returns a service running every configured trigger.
func (c *CQLFlow) TriggerManager() (*trigger.Manager, error) {
	svcs := make([]*trigger.Service, 0, len(c.triggers))
	for _, t := range c.triggers {
		svcs = append(svcs, trigger.NewService(t, c.RunContext(t.ID()), c.triggerMetrics, nil))
	}
	return trigger.NewManager(svcs)
}

// Handler serves metrics, config, version and log level endpoints.
func (c *CQLFlow) Handler(defaultCfg Config) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/config", configHandler(c.Cfg, defaultCfg))
	mux.Handle("/version", versionHandler())
	mux.Handle("/log_level", util_log.LevelHandler(&c.Cfg.LogLevel))
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "ready", http.StatusOK)
	})
	return mux
}

// Close releases the execution enqueuer.
func (c *CQLFlow) Close() {
	if c.closeEnqueuer != nil {
		c.closeEnqueuer()
	}
	level.Debug(c.logger).Log("msg", "cqlflow closed")
}
