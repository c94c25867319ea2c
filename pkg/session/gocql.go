package session

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gocql/gocql"
	"go.uber.org/atomic"

	"github.com/grafana/cqlflow/pkg/cql"
)

// opResult is the protocol opcode of RESULT frames.
const opResult = 0x08

// frameCounter sums the body length of RESULT frames received by a session.
type frameCounter struct {
	bytes atomic.Int64
}

func (f *frameCounter) ObserveFrameHeader(_ context.Context, h gocql.ObservedFrameHeader) {
	if byte(h.Opcode) == opResult {
		f.bytes.Add(int64(h.Length))
	}
}

func (f *frameCounter) reset() {
	f.bytes.Store(0)
}

func (f *frameCounter) load() int64 {
	return f.bytes.Load()
}

type gocqlSession struct {
	provider string
	session  *gocql.Session
	frames   *frameCounter
	logger   log.Logger
}

// openSession creates a gocql session for cluster and instruments it.
func openSession(ctx context.Context, provider string, cluster *gocql.ClusterConfig, m *Metrics, logger log.Logger) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SessionError{Provider: provider, Err: err}
	}

	frames := &frameCounter{}
	cluster.FrameHeaderObserver = frames
	if m != nil {
		cluster.QueryObserver = m.observer(provider)
	}

	s, err := cluster.CreateSession()
	if err != nil {
		return nil, &SessionError{Provider: provider, Err: err}
	}
	level.Debug(logger).Log("msg", "session opened", "provider", provider, "keyspace", cluster.Keyspace)
	return &gocqlSession{
		provider: provider,
		session:  s,
		frames:   frames,
		logger:   logger,
	}, nil
}

func (s *gocqlSession) Execute(ctx context.Context, stmt string) (cql.Cursor, error) {
	s.frames.reset()
	iter := s.session.Query(stmt).WithContext(ctx).Iter()

	columns := iter.Columns()
	if len(columns) == 0 {
		// Rejected statements and statements without a result set both come
		// back without columns; only the former fail on close.
		if err := iter.Close(); err != nil {
			return nil, &ExecutionError{Statement: stmt, Err: err}
		}
		return &iterCursor{stmt: stmt, frames: s.frames, done: true}, nil
	}
	return newIterCursor(stmt, iter, cql.Columns(columns), s.frames), nil
}

func (s *gocqlSession) Close() error {
	s.session.Close()
	level.Debug(s.logger).Log("msg", "session closed", "provider", s.provider)
	return nil
}

// iterCursor scans gocql rows into reusable cells.
type iterCursor struct {
	stmt    string
	iter    *gocql.Iter
	columns []cql.Column
	cells   []*cql.Cell
	dest    []interface{}
	frames  *frameCounter

	done bool
	err  error
}

func newIterCursor(stmt string, iter *gocql.Iter, columns []cql.Column, frames *frameCounter) *iterCursor {
	c := &iterCursor{
		stmt:    stmt,
		iter:    iter,
		columns: columns,
		cells:   make([]*cql.Cell, len(columns)),
		frames:  frames,
	}
	for i, col := range columns {
		c.cells[i] = cql.NewCell(col.Type)
		c.dest = append(c.dest, c.cells[i].Targets()...)
	}
	return c
}

func (c *iterCursor) Columns() []cql.Column {
	return c.columns
}

func (c *iterCursor) Next() ([]*cql.Cell, bool) {
	if c.done {
		return nil, false
	}
	if c.iter.Scan(c.dest...) {
		return c.cells, true
	}
	c.finish()
	return nil, false
}

func (c *iterCursor) finish() {
	c.done = true
	if c.iter == nil {
		return
	}
	if err := c.iter.Close(); err != nil {
		c.err = &ExecutionError{Statement: c.stmt, Err: err}
	}
}

func (c *iterCursor) Err() error {
	return c.err
}

func (c *iterCursor) ResponseSize() (int64, bool) {
	return c.frames.load(), true
}

func (c *iterCursor) Close() error {
	if !c.done {
		c.finish()
	}
	return c.err
}

// driverLogger adapts go-kit to gocql.StdLogger.
type driverLogger struct {
	logger log.Logger
}

func (l driverLogger) Print(v ...interface{}) {
	level.Debug(l.logger).Log("msg", fmt.Sprint(v...))
}

func (l driverLogger) Printf(format string, v ...interface{}) {
	level.Debug(l.logger).Log("msg", fmt.Sprintf(format, v...))
}

func (l driverLogger) Println(v ...interface{}) {
	level.Debug(l.logger).Log("msg", fmt.Sprint(v...))
}

// SetDriverLogger routes the driver's log output to logger at debug level.
func SetDriverLogger(logger log.Logger) {
	gocql.Logger = driverLogger{logger: log.With(logger, "component", "gocql")}
}
