// Package session opens CQL sessions against Cassandra, ScyllaDB and Astra DB.
package session

import (
	"context"
	"fmt"

	"github.com/grafana/cqlflow/pkg/cql"
)

// Renderer resolves templated connection parameters.
type Renderer interface {
	Render(text string) (string, error)
}

// Provider opens sessions for one configured database.
type Provider interface {
	// Name identifies the connection variant, e.g. cassandra.
	Name() string

	// Connect renders the connection parameters and opens a session. A
	// ConfigurationError is returned before any network I/O.
	Connect(ctx context.Context, r Renderer) (Session, error)
}

// Session is an open connection owned by a single query execution.
type Session interface {
	// Execute runs one statement. A statement rejected by the database
	// fails with an ExecutionError.
	Execute(ctx context.Context, stmt string) (cql.Cursor, error)
	Close() error
}

// SessionError is returned when a session cannot be opened, e.g. on
// connection, authentication or TLS failures.
type SessionError struct {
	Provider string
	Err      error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: opening session: %v", e.Provider, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// ExecutionError is returned when the database rejects or fails a statement.
type ExecutionError struct {
	Statement string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing %q: %v", e.Statement, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ConfigurationError is returned for invalid or conflicting connection
// options.
type ConfigurationError struct {
	Msg string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...interface{}) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// renderAll renders every field in place.
func renderAll(r Renderer, fields ...*string) error {
	for _, f := range fields {
		v, err := r.Render(*f)
		if err != nil {
			return &ConfigurationError{Msg: "rendering connection parameters", Err: err}
		}
		*f = v
	}
	return nil
}
