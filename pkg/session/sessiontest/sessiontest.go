// Package sessiontest provides a session provider serving canned cursors.
package sessiontest

import (
	"context"
	"sync"

	"github.com/grafana/cqlflow/pkg/cql"
	"github.com/grafana/cqlflow/pkg/cql/cqltest"
	"github.com/grafana/cqlflow/pkg/session"
)

// Provider opens sessions whose statements are answered by Execute.
type Provider struct {
	// Execute answers a rendered statement. Nil answers every statement
	// with an empty result set.
	Execute func(stmt string) (cql.Cursor, error)
	// ConnectErr fails every Connect.
	ConnectErr error
	// CloseErr is returned by every session Close.
	CloseErr error

	mtx        sync.Mutex
	connects   int
	closes     int
	statements []string
	cursors    []cql.Cursor
}

func (p *Provider) Name() string {
	return "fake"
}

func (p *Provider) Connect(ctx context.Context, _ session.Renderer) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &session.SessionError{Provider: p.Name(), Err: err}
	}
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	p.connects++
	return &fakeSession{p: p}, nil
}

// Connects returns the number of opened sessions.
func (p *Provider) Connects() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.connects
}

// Closes returns the number of closed sessions.
func (p *Provider) Closes() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.closes
}

// Statements returns the executed statements in order.
func (p *Provider) Statements() []string {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return append([]string(nil), p.statements...)
}

// Cursors returns the cursors handed out in order.
func (p *Provider) Cursors() []cql.Cursor {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return append([]cql.Cursor(nil), p.cursors...)
}

type fakeSession struct {
	p      *Provider
	closed bool
}

func (s *fakeSession) Execute(_ context.Context, stmt string) (cql.Cursor, error) {
	s.p.mtx.Lock()
	s.p.statements = append(s.p.statements, stmt)
	execute := s.p.Execute
	s.p.mtx.Unlock()

	var (
		cur cql.Cursor
		err error
	)
	if execute == nil {
		cur = cqltest.NewCursorFromCells(nil, nil)
	} else {
		cur, err = execute(stmt)
	}
	if err != nil {
		return nil, err
	}
	s.p.mtx.Lock()
	s.p.cursors = append(s.p.cursors, cur)
	s.p.mtx.Unlock()
	return cur, nil
}

func (s *fakeSession) Close() error {
	s.p.mtx.Lock()
	defer s.p.mtx.Unlock()
	if !s.closed {
		s.closed = true
		s.p.closes++
	}
	return s.p.CloseErr
}
