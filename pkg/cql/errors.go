package cql

import (
	"fmt"

	"github.com/gocql/gocql"
)

// UnsupportedTypeError is returned when a cell's type has no portable
// representation, e.g. user-defined and custom types.
type UnsupportedTypeError struct {
	Type gocql.TypeInfo
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported CQL type: %s", describeType(e.Type))
}

// ColumnError attaches the column a conversion failed on.
type ColumnError struct {
	Column string
	Err    error
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("column %q: %v", e.Column, e.Err)
}

func (e *ColumnError) Unwrap() error {
	return e.Err
}
