// Package cqltest provides in-memory result sets for tests.
package cqltest

import (
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/require"

	"github.com/grafana/cqlflow/pkg/cql"
)

// Type returns a native type descriptor.
func Type(t gocql.Type) gocql.TypeInfo {
	return gocql.NewNativeType(4, t, "")
}

// Col returns a column of the given native type.
func Col(name string, t gocql.Type) cql.Column {
	return cql.Column{Name: name, Type: Type(t)}
}

// Cell encodes value for info and loads it into a cell the way the driver
// does while scanning. A nil value yields a null cell.
func Cell(tb testing.TB, info gocql.TypeInfo, value interface{}) *cql.Cell {
	tb.Helper()
	c := cql.NewCell(info)
	var data []byte
	if value != nil {
		var err error
		data, err = gocql.Marshal(info, value)
		require.NoError(tb, err)
	}
	require.NoError(tb, c.Set(data))
	return c
}

// Cursor serves pre-built rows.
type Cursor struct {
	columns []cql.Column
	rows    [][]*cql.Cell
	pos     int

	// FailAt makes Next fail with FailErr once that many rows were served.
	FailAt  int
	FailErr error
	// Bytes is reported by ResponseSize when non-negative.
	Bytes int64

	err    error
	Closed bool
}

// NewCursor encodes rows of Go values against columns.
func NewCursor(tb testing.TB, columns []cql.Column, rows ...[]interface{}) *Cursor {
	tb.Helper()
	c := &Cursor{columns: columns, FailAt: -1, Bytes: -1}
	for _, values := range rows {
		require.Len(tb, values, len(columns))
		cells := make([]*cql.Cell, len(columns))
		for i, col := range columns {
			cells[i] = Cell(tb, col.Type, values[i])
		}
		c.rows = append(c.rows, cells)
	}
	return c
}

// NewCursorFromCells serves already built cells. Cells may carry a type that
// differs from their column.
func NewCursorFromCells(columns []cql.Column, rows [][]*cql.Cell) *Cursor {
	return &Cursor{columns: columns, rows: rows, FailAt: -1, Bytes: -1}
}

func (c *Cursor) Columns() []cql.Column {
	return c.columns
}

func (c *Cursor) Next() ([]*cql.Cell, bool) {
	if c.err != nil || c.Closed {
		return nil, false
	}
	if c.FailAt >= 0 && c.pos == c.FailAt {
		c.err = c.FailErr
		return nil, false
	}
	if c.pos >= len(c.rows) {
		return nil, false
	}
	row := c.rows[c.pos]
	c.pos++
	return row, true
}

func (c *Cursor) Err() error {
	return c.err
}

func (c *Cursor) ResponseSize() (int64, bool) {
	return c.Bytes, c.Bytes >= 0
}

func (c *Cursor) Close() error {
	c.Closed = true
	return c.err
}

// Served returns the number of rows handed out so far.
func (c *Cursor) Served() int {
	return c.pos
}
