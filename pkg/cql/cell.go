package cql

import (
	"github.com/gocql/gocql"
)

// Cell holds the value of one column of the current row in wire form.
//
// It implements gocql.Unmarshaler, so the driver hands over the raw bytes
// instead of decoding them; a nil byte slice is a null value. A cell can be
// reused across rows of the same result set.
type Cell struct {
	info  gocql.TypeInfo
	data  []byte
	null  bool
	elems []*Cell
}

// NewCell returns an empty (null) cell for a column of the given type.
func NewCell(info gocql.TypeInfo) *Cell {
	c := &Cell{info: info, null: true}
	if tuple, ok := info.(gocql.TupleTypeInfo); ok {
		// The driver flattens top-level tuples into one scan destination per
		// element, so the elements get their own cells.
		c.elems = make([]*Cell, len(tuple.Elems))
		for i, elem := range tuple.Elems {
			c.elems[i] = &Cell{info: elem, null: true}
		}
	}
	return c
}

// UnmarshalCQL implements gocql.Unmarshaler.
func (c *Cell) UnmarshalCQL(_ gocql.TypeInfo, data []byte) error {
	c.null = data == nil
	c.data = append(c.data[:0], data...)
	return nil
}

// Targets returns the destinations to pass to gocql's Iter.Scan for this cell.
func (c *Cell) Targets() []interface{} {
	if c.elems == nil {
		return []interface{}{c}
	}
	targets := make([]interface{}, len(c.elems))
	for i, elem := range c.elems {
		targets[i] = elem
	}
	return targets
}

// Set loads an encoded value into the cell through the same code path the
// driver uses while scanning.
func (c *Cell) Set(data []byte) error {
	if c.elems == nil {
		return c.UnmarshalCQL(c.info, data)
	}
	return gocql.Unmarshal(c.info, data, c.Targets())
}

// Type returns the column type of the cell.
func (c *Cell) Type() gocql.TypeInfo {
	return c.info
}

// IsNull reports whether the cell holds a null value. A tuple whose elements
// are all null is null: the wire format does not tell the two apart once the
// driver has flattened it.
func (c *Cell) IsNull() bool {
	if c.elems == nil {
		return c.null
	}
	for _, elem := range c.elems {
		if !elem.null {
			return false
		}
	}
	return true
}
