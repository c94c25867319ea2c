package materialize

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/grafana/cqlflow/pkg/cql"
)

// Output is the result of materializing one statement. Only the field that
// belongs to the fetch type is set.
type Output struct {
	FetchType FetchType

	// Row is the first row for FetchOne, nil when the result set was empty.
	Row *cql.Row
	// Rows holds every row for Fetch.
	Rows []*cql.Row
	// URI references the stored result file for Store.
	URI string

	// Size is the number of rows consumed. It is unset for None.
	Size *int64
	// Bytes is the size of the server response, when known.
	Bytes *int64
}

// RowCount returns the number of rows consumed, zero when unset.
func (o *Output) RowCount() int64 {
	if o == nil || o.Size == nil {
		return 0
	}
	return *o.Size
}

// MarshalJSON writes only the fields that belong to the fetch type.
func (o *Output) MarshalJSON() ([]byte, error) {
	stream := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowStream(nil)
	defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)

	stream.WriteObjectStart()
	stream.WriteObjectField("fetchType")
	stream.WriteString(o.FetchType.String())
	switch o.FetchType {
	case FetchOne:
		stream.WriteMore()
		stream.WriteObjectField("row")
		if o.Row == nil {
			stream.WriteNil()
		} else {
			o.Row.WriteJSON(stream)
		}
	case Fetch:
		stream.WriteMore()
		stream.WriteObjectField("rows")
		stream.WriteArrayStart()
		for i, row := range o.Rows {
			if i > 0 {
				stream.WriteMore()
			}
			row.WriteJSON(stream)
		}
		stream.WriteArrayEnd()
	case Store:
		stream.WriteMore()
		stream.WriteObjectField("uri")
		stream.WriteString(o.URI)
	}
	if o.Size != nil {
		stream.WriteMore()
		stream.WriteObjectField("size")
		stream.WriteInt64(*o.Size)
	}
	if o.Bytes != nil {
		stream.WriteMore()
		stream.WriteObjectField("bytes")
		stream.WriteInt64(*o.Bytes)
	}
	stream.WriteObjectEnd()

	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

// Vars returns the output as template variables, with rows as plain maps.
func (o *Output) Vars() map[string]interface{} {
	vars := map[string]interface{}{
		"fetchType": o.FetchType.String(),
	}
	switch o.FetchType {
	case FetchOne:
		if o.Row != nil {
			vars["row"] = o.Row.Map()
		} else {
			vars["row"] = nil
		}
	case Fetch:
		rows := make([]map[string]interface{}, len(o.Rows))
		for i, row := range o.Rows {
			rows[i] = row.Map()
		}
		vars["rows"] = rows
	case Store:
		vars["uri"] = o.URI
	}
	if o.Size != nil {
		vars["size"] = *o.Size
	}
	if o.Bytes != nil {
		vars["bytes"] = *o.Bytes
	}
	return vars
}
