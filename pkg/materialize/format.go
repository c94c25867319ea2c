package materialize

import (
	"bufio"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/grafana/cqlflow/pkg/cql"
)

// FileExtension is the extension of an uncompressed result file.
const FileExtension = ".jsonl"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type header struct {
	Columns []headerColumn `json:"columns"`
}

type headerColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Writer writes a result file: a header line describing the columns followed
// by one JSON object per row.
type Writer struct {
	stream *jsoniter.Stream
}

// NewWriter writes the header for columns to w.
func NewWriter(w io.Writer, columns []cql.Column) (*Writer, error) {
	h := header{Columns: make([]headerColumn, len(columns))}
	for i, col := range columns {
		h.Columns[i] = headerColumn{Name: col.Name, Type: cql.TypeString(col.Type)}
	}

	stream := jsoniter.NewStream(json, w, 4096)
	stream.WriteVal(h)
	stream.WriteRaw("\n")
	if err := stream.Flush(); err != nil {
		return nil, errors.Wrap(err, "writing result header")
	}
	if stream.Error != nil {
		return nil, errors.Wrap(stream.Error, "writing result header")
	}
	return &Writer{stream: stream}, nil
}

// Write appends one row.
func (w *Writer) Write(row *cql.Row) error {
	row.WriteJSON(w.stream)
	w.stream.WriteRaw("\n")
	if w.stream.Error != nil {
		return errors.Wrap(w.stream.Error, "encoding row")
	}
	if w.stream.Buffered() >= 4096 {
		return w.Flush()
	}
	return nil
}

// Flush writes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	return errors.Wrap(w.stream.Flush(), "writing rows")
}

// Reader reads a result file written by Writer.
type Reader struct {
	r       *bufio.Reader
	columns []cql.Column
	index   map[string]int
	line    int
}

// NewReader reads the header from r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	line, err := readLine(br)
	if err == io.EOF {
		return nil, errors.New("result file has no header")
	}
	if err != nil {
		return nil, err
	}

	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, errors.Wrap(err, "decoding result header")
	}
	rd := &Reader{
		r:       br,
		columns: make([]cql.Column, len(h.Columns)),
		index:   make(map[string]int, len(h.Columns)),
		line:    1,
	}
	for i, col := range h.Columns {
		info, err := cql.ParseType(col.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", col.Name)
		}
		rd.columns[i] = cql.Column{Name: col.Name, Type: info}
		rd.index[col.Name] = i
	}
	return rd, nil
}

// Columns returns the columns from the header.
func (r *Reader) Columns() []cql.Column {
	return r.columns
}

// Next returns the next row, or io.EOF after the last one.
func (r *Reader) Next() (*cql.Row, error) {
	line, err := readLine(r.r)
	if err != nil {
		return nil, err
	}
	r.line++

	values := make([]interface{}, len(r.columns))
	iter := json.BorrowIterator(line)
	defer json.ReturnIterator(iter)

	for field := iter.ReadObject(); field != ""; field = iter.ReadObject() {
		i, ok := r.index[field]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown column %q", r.line, field)
		}
		v, err := cql.ReadValue(iter, r.columns[i].Type)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: column %q", r.line, field)
		}
		values[i] = v
	}
	if iter.Error != nil && iter.Error != io.EOF {
		return nil, errors.Wrapf(iter.Error, "line %d", r.line)
	}

	row := cql.NewRow(len(r.columns))
	for i, col := range r.columns {
		row.Set(col, values[i])
	}
	return row, nil
}

// readLine returns the next non-empty line without its newline.
func readLine(r *bufio.Reader) ([]byte, error) {
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			line = line[:len(line)-1]
		}
		if len(line) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
