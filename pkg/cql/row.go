package cql

import (
	jsoniter "github.com/json-iterator/go"
)

// Row is an ordered mapping from column name to portable value. Iteration
// follows result-set column order.
type Row struct {
	columns []Column
	values  []interface{}
	index   map[string]int
}

// NewRow returns an empty row with room for n columns.
func NewRow(n int) *Row {
	return &Row{
		columns: make([]Column, 0, n),
		values:  make([]interface{}, 0, n),
		index:   make(map[string]int, n),
	}
}

// Set stores the value of a column. A name that is already present keeps its
// position and the new value replaces the old one.
func (r *Row) Set(col Column, v interface{}) {
	if i, ok := r.index[col.Name]; ok {
		r.columns[i] = col
		r.values[i] = v
		return
	}
	r.index[col.Name] = len(r.columns)
	r.columns = append(r.columns, col)
	r.values = append(r.values, v)
}

// Get returns the value stored under name.
func (r *Row) Get(name string) (interface{}, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Value returns the value stored under name, or nil.
func (r *Row) Value(name string) interface{} {
	v, _ := r.Get(name)
	return v
}

func (r *Row) Len() int {
	return len(r.columns)
}

func (r *Row) Columns() []Column {
	return r.columns
}

func (r *Row) Keys() []string {
	keys := make([]string, len(r.columns))
	for i, col := range r.columns {
		keys[i] = col.Name
	}
	return keys
}

func (r *Row) Values() []interface{} {
	return r.values
}

// Map returns the row as an unordered map, e.g. for template rendering.
func (r *Row) Map() map[string]interface{} {
	m := make(map[string]interface{}, len(r.columns))
	for i, col := range r.columns {
		m[col.Name] = r.values[i]
	}
	return m
}

// Materialize converts the cells of the current row, in column order. The
// first conversion error aborts the row.
func Materialize(columns []Column, cells []*Cell) (*Row, error) {
	row := NewRow(len(columns))
	for i, col := range columns {
		v, err := Convert(cells[i])
		if err != nil {
			return nil, &ColumnError{Column: col.Name, Err: err}
		}
		row.Set(col, v)
	}
	return row, nil
}

// MarshalJSON encodes the row as a JSON object with keys in column order.
func (r *Row) MarshalJSON() ([]byte, error) {
	stream := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowStream(nil)
	defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)

	r.WriteJSON(stream)
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

// WriteJSON writes the row as a JSON object to stream.
func (r *Row) WriteJSON(stream *jsoniter.Stream) {
	stream.WriteObjectStart()
	for i, col := range r.columns {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(col.Name)
		WriteValue(stream, col.Type, r.values[i])
	}
	stream.WriteObjectEnd()
}
