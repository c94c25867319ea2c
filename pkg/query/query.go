// Package query runs a single CQL statement and materializes its result.
package query

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/grafana/cqlflow/pkg/materialize"
	"github.com/grafana/cqlflow/pkg/runner"
	"github.com/grafana/cqlflow/pkg/session"
)

// Config is a query task.
type Config struct {
	ID      string         `yaml:"id"`
	Session session.Config `yaml:"session"`
	// CQL is rendered against the run variables before execution.
	CQL       string                 `yaml:"cql"`
	FetchType *materialize.FetchType `yaml:"fetch_type"`

	// Deprecated: use FetchType.
	Fetch bool `yaml:"fetch"`
	// Deprecated: use FetchType.
	FetchOne bool `yaml:"fetch_one"`
	// Deprecated: use FetchType.
	Store bool `yaml:"store"`
}

func (cfg *Config) Validate() error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	if cfg.CQL == "" {
		return errors.Errorf("%s: cql is required", cfg.ID)
	}
	if err := cfg.Session.Validate(); err != nil {
		return errors.Wrapf(err, "%s: invalid session", cfg.ID)
	}
	return nil
}

// ResolvedFetchType is fetch_type when set, otherwise the one selected by
// the legacy flags.
func (cfg *Config) ResolvedFetchType() materialize.FetchType {
	return materialize.Resolve(cfg.FetchType, cfg.Fetch, cfg.FetchOne, cfg.Store)
}

// Query executes its statement on a fresh session for every run.
type Query struct {
	cfg      Config
	provider session.Provider
	logger   log.Logger
}

func New(cfg Config, provider session.Provider, logger log.Logger) *Query {
	return &Query{
		cfg:      cfg,
		provider: provider,
		logger:   log.With(logger, "task", cfg.ID),
	}
}

// NewFromConfig builds the session provider described by cfg.
func NewFromConfig(cfg Config, m *session.Metrics, logger log.Logger) (*Query, error) {
	provider, err := session.NewProvider(cfg.Session, m, logger)
	if err != nil {
		return nil, err
	}
	return New(cfg, provider, logger), nil
}

func (q *Query) ID() string {
	return q.cfg.ID
}

func (q *Query) Config() Config {
	return q.cfg
}

func (q *Query) Provider() session.Provider {
	return q.provider
}

// Result is the output of one run together with the statement it executed.
type Result struct {
	*materialize.Output
	Statement string
}

// Run opens a session, executes the rendered statement and materializes
// the result. The session is closed on every path.
func (q *Query) Run(ctx context.Context, rc *runner.Context) (*materialize.Output, error) {
	res, err := q.Exec(ctx, rc)
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// Exec is Run, also reporting the statement as it was rendered for this run.
func (q *Query) Exec(ctx context.Context, rc *runner.Context) (res *Result, err error) {
	logger := log.With(rc.Logger, "task", q.cfg.ID, "provider", q.provider.Name())
	start := rc.Clock.Now()

	sess, err := q.provider.Connect(ctx, rc)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			level.Warn(logger).Log("msg", "failed to close session", "err", cerr)
		}
	}()

	stmt, err := rc.Render(q.cfg.CQL)
	if err != nil {
		return nil, errors.Wrap(err, "rendering cql")
	}
	level.Debug(logger).Log("msg", "starting query", "cql", stmt)

	cur, err := sess.Execute(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := cur.Close(); cerr != nil && err == nil {
			res, err = nil, cerr
		}
	}()

	ft := q.cfg.ResolvedFetchType()
	out, err := rc.WithLogger(logger).Materializer().Materialize(ctx, cur, ft)
	if err != nil {
		return nil, err
	}
	level.Debug(logger).Log("msg", "query finished", "fetch_type", ft, "rows", out.RowCount(), "duration", rc.Clock.Since(start))
	return &Result{Output: out, Statement: stmt}, nil
}
