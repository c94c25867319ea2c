// Package trigger polls a query on an interval and creates an execution
// whenever it returns rows.
package trigger

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/grafana/cqlflow/pkg/execution"
	"github.com/grafana/cqlflow/pkg/materialize"
	"github.com/grafana/cqlflow/pkg/query"
	"github.com/grafana/cqlflow/pkg/runner"
)

// Type is the trigger type recorded in created executions.
const Type = "cqlflow.cql.Trigger"

const DefaultInterval = time.Minute

// Config is a polling trigger: a query plus the flow it starts.
type Config struct {
	query.Config `yaml:",inline"`

	Namespace    string        `yaml:"namespace"`
	FlowID       string        `yaml:"flow_id"`
	FlowRevision int           `yaml:"flow_revision"`
	Interval     time.Duration `yaml:"interval"`
}

func (cfg *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	cfg.Interval = DefaultInterval
	type plain Config
	return unmarshal((*plain)(cfg))
}

func (cfg *Config) Validate() error {
	if err := cfg.Config.Validate(); err != nil {
		return err
	}
	if cfg.Namespace == "" || cfg.FlowID == "" {
		return errors.Errorf("%s: namespace and flow_id are required", cfg.ID)
	}
	if cfg.Interval <= 0 {
		return errors.Errorf("%s: interval must be positive", cfg.ID)
	}
	return nil
}

// ResolvedFetchType defaults to Fetch when neither fetch_type nor a legacy
// flag is set.
func (cfg *Config) ResolvedFetchType() materialize.FetchType {
	if cfg.FetchType == nil && !cfg.Fetch && !cfg.FetchOne && !cfg.Store {
		return materialize.Fetch
	}
	return cfg.Config.ResolvedFetchType()
}

// Trigger evaluates its query and creates executions from non-empty results.
type Trigger struct {
	cfg     Config
	query   *query.Query
	creator execution.Creator
	clock   quartz.Clock
	logger  log.Logger
}

// New returns a trigger running its query through q's provider with the
// resolved fetch type.
func New(cfg Config, q *query.Query, creator execution.Creator, clock quartz.Clock, logger log.Logger) *Trigger {
	if clock == nil {
		clock = quartz.NewReal()
	}
	ft := cfg.ResolvedFetchType()
	qcfg := q.Config()
	qcfg.FetchType = &ft
	return &Trigger{
		cfg:     cfg,
		query:   query.New(qcfg, q.Provider(), logger),
		creator: creator,
		clock:   clock,
		logger:  log.With(logger, "trigger", cfg.ID),
	}
}

func (t *Trigger) ID() string {
	return t.cfg.ID
}

func (t *Trigger) Interval() time.Duration {
	return t.cfg.Interval
}

func (t *Trigger) triggerContext() execution.TriggerContext {
	return execution.TriggerContext{
		Namespace:    t.cfg.Namespace,
		FlowID:       t.cfg.FlowID,
		FlowRevision: t.cfg.FlowRevision,
		TriggerID:    t.cfg.ID,
		TriggerType:  Type,
	}
}

// Evaluate runs the query once. It returns a nil execution when the query
// returned no rows. Failures are returned as is and never retried.
func (t *Trigger) Evaluate(ctx context.Context, rc *runner.Context) (*execution.Execution, error) {
	tc := t.triggerContext()
	rc = rc.WithLogger(t.logger).WithVars(map[string]interface{}{
		"flow": map[string]interface{}{
			"namespace": tc.Namespace,
			"id":        tc.FlowID,
			"revision":  tc.FlowRevision,
		},
		"trigger": map[string]interface{}{
			"id":   tc.TriggerID,
			"date": t.clock.Now(),
		},
	})

	res, err := t.query.Exec(ctx, rc)
	if err != nil {
		return nil, err
	}
	if res.Size == nil || *res.Size == 0 {
		return nil, nil
	}
	level.Debug(t.logger).Log("msg", "found rows", "rows", *res.Size, "cql", res.Statement)

	return t.creator.Create(ctx, tc, res.Output)
}
