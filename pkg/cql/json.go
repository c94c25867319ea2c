package cql

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gocql/gocql"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/inf.v0"
)

// WriteValue encodes the portable value v of a column of type info. Values
// that JSON cannot carry losslessly (decimals, timestamps, blobs, non-finite
// floats) are written as strings that ReadValue parses back given the column
// type. Lists, sets and tuples are written as arrays and maps as arrays of
// [key, value] pairs, each element encoded by its own type.
func WriteValue(stream *jsoniter.Stream, info gocql.TypeInfo, v interface{}) {
	writeValue(stream, info, v)
}

func writeValue(stream *jsoniter.Stream, info gocql.TypeInfo, v interface{}) {
	if v == nil {
		stream.WriteNil()
		return
	}
	switch t := info.(type) {
	case gocql.CollectionType:
		rv := reflect.ValueOf(v)
		switch {
		case t.Type() == gocql.TypeMap && rv.Kind() == reflect.Map:
			writeMap(stream, t, rv)
			return
		case t.Type() != gocql.TypeMap && rv.Kind() == reflect.Slice:
			writeSlice(stream, t.Elem, rv)
			return
		}
	case gocql.TupleTypeInfo:
		if elems, ok := v.([]interface{}); ok && len(elems) == len(t.Elems) {
			stream.WriteArrayStart()
			for i, elem := range elems {
				if i > 0 {
					stream.WriteMore()
				}
				writeValue(stream, t.Elems[i], elem)
			}
			stream.WriteArrayEnd()
			return
		}
	}
	writeScalar(stream, v)
}

func writeSlice(stream *jsoniter.Stream, elem gocql.TypeInfo, rv reflect.Value) {
	if rv.IsNil() {
		stream.WriteNil()
		return
	}
	stream.WriteArrayStart()
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			stream.WriteMore()
		}
		writeValue(stream, elem, rv.Index(i).Interface())
	}
	stream.WriteArrayEnd()
}

// writeMap writes entries sorted by their encoded key so output is stable.
func writeMap(stream *jsoniter.Stream, t gocql.CollectionType, rv reflect.Value) {
	if rv.IsNil() {
		stream.WriteNil()
		return
	}
	type entry struct {
		key   []byte
		value interface{}
	}
	entries := make([]entry, 0, rv.Len())
	keyStream := stream.Pool().BorrowStream(nil)
	defer stream.Pool().ReturnStream(keyStream)
	for it := rv.MapRange(); it.Next(); {
		keyStream.Reset(nil)
		writeValue(keyStream, t.Key, it.Key().Interface())
		if keyStream.Error != nil {
			stream.Error = keyStream.Error
			return
		}
		entries = append(entries, entry{key: append([]byte(nil), keyStream.Buffer()...), value: it.Value().Interface()})
	}
	sort.Slice(entries, func(i, j int) bool { return bytes.Compare(entries[i].key, entries[j].key) < 0 })

	stream.WriteArrayStart()
	for i, e := range entries {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteArrayStart()
		stream.WriteRaw(string(e.key))
		stream.WriteMore()
		writeValue(stream, t.Elem, e.value)
		stream.WriteArrayEnd()
	}
	stream.WriteArrayEnd()
}

func writeScalar(stream *jsoniter.Stream, v interface{}) {
	switch v := v.(type) {
	case float32:
		writeFloat(stream, float64(v), 32)
	case float64:
		writeFloat(stream, v, 64)
	case decimal.Decimal:
		stream.WriteString(v.String())
	case *inf.Dec:
		if v == nil {
			stream.WriteNil()
			return
		}
		stream.WriteString(v.String())
	case *big.Int:
		if v == nil {
			stream.WriteNil()
			return
		}
		stream.WriteRaw(v.String())
	case time.Time:
		stream.WriteString(v.UTC().Format(time.RFC3339Nano))
	case civil.Date:
		stream.WriteString(v.String())
	case civil.Time:
		stream.WriteString(v.String())
	case time.Duration:
		stream.WriteString(v.String())
	case []byte:
		stream.WriteString(base64.StdEncoding.EncodeToString(v))
	case gocql.UUID:
		stream.WriteString(v.String())
	default:
		stream.WriteVal(v)
	}
}

func writeFloat(stream *jsoniter.Stream, f float64, bits int) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		stream.WriteString(strconv.FormatFloat(f, 'g', -1, bits))
		return
	}
	stream.WriteRaw(strconv.FormatFloat(f, 'g', -1, bits))
}

// ReadValue decodes a value written by WriteValue for a column of type info.
// Collections come back as the driver's Go type for info, e.g. []int64 for
// list<bigint>, and tuples as []interface{}. A collection type without
// element types is decoded as generic JSON.
func ReadValue(iter *jsoniter.Iterator, info gocql.TypeInfo) (interface{}, error) {
	return readValue(iter, info, false)
}

// readValue reads either the portable form of info or, with native set, the
// Go type the driver uses for info inside collections and tuples.
func readValue(iter *jsoniter.Iterator, info gocql.TypeInfo, native bool) (interface{}, error) {
	if iter.WhatIsNext() == jsoniter.NilValue {
		iter.ReadNil()
		return nil, iterError(iter)
	}

	switch t := info.(type) {
	case gocql.CollectionType:
		return readCollection(iter, t)
	case gocql.TupleTypeInfo:
		return readArray(iter, t.Elems)
	}

	var (
		v   interface{}
		err error
	)
	switch info.Type() {
	case gocql.TypeBigInt, gocql.TypeCounter:
		v = iter.ReadInt64()
	case gocql.TypeInt:
		if native {
			v = iter.ReadInt()
		} else {
			v = iter.ReadInt32()
		}
	case gocql.TypeSmallInt:
		v = iter.ReadInt16()
	case gocql.TypeTinyInt:
		v = iter.ReadInt8()
	case gocql.TypeBoolean:
		v = iter.ReadBool()
	case gocql.TypeDouble:
		v, err = readFloat(iter, 64)
	case gocql.TypeFloat:
		var f float64
		f, err = readFloat(iter, 32)
		v = float32(f)
	case gocql.TypeVarint:
		n, ok := new(big.Int).SetString(string(iter.ReadNumber()), 10)
		if !ok && iterError(iter) == nil {
			err = errors.New("invalid varint")
		}
		v = n
	case gocql.TypeDecimal:
		s := iter.ReadString()
		if native {
			d, ok := new(inf.Dec).SetString(s)
			if !ok {
				err = fmt.Errorf("invalid decimal %q", s)
			}
			v = d
		} else {
			v, err = decimal.NewFromString(s)
		}
	case gocql.TypeBlob:
		v, err = base64.StdEncoding.DecodeString(iter.ReadString())
	case gocql.TypeTimestamp:
		v, err = time.Parse(time.RFC3339Nano, iter.ReadString())
	case gocql.TypeDate:
		if native {
			v, err = time.Parse(time.RFC3339Nano, iter.ReadString())
		} else {
			v, err = civil.ParseDate(iter.ReadString())
		}
	case gocql.TypeTime:
		if native {
			v, err = time.ParseDuration(iter.ReadString())
		} else {
			v, err = civil.ParseTime(iter.ReadString())
		}
	case gocql.TypeDuration:
		if native {
			var d gocql.Duration
			iter.ReadVal(&d)
			v = d
		} else {
			v, err = time.ParseDuration(iter.ReadString())
		}
	case gocql.TypeUUID, gocql.TypeTimeUUID:
		if native {
			v, err = gocql.ParseUUID(iter.ReadString())
		} else {
			v = iter.ReadString()
		}
	case gocql.TypeAscii, gocql.TypeVarchar, gocql.TypeText, gocql.TypeInet:
		v = iter.ReadString()
	default:
		v = iter.Read()
	}
	if err := iterError(iter); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", TypeString(info))
	}
	return v, nil
}

func readCollection(iter *jsoniter.Iterator, t gocql.CollectionType) (interface{}, error) {
	ptr, err := t.NewWithError()
	if err != nil {
		return nil, err
	}
	dst := reflect.ValueOf(ptr).Elem()
	typ := dst.Type()

	if t.Type() == gocql.TypeMap {
		m := reflect.MakeMap(typ)
		for iter.ReadArray() {
			kv, err := readArray(iter, []gocql.TypeInfo{t.Key, t.Elem})
			if err != nil {
				return nil, errors.Wrap(err, "map entry")
			}
			k, err := assignable(typ.Key(), kv[0])
			if err != nil {
				return nil, err
			}
			v, err := assignable(typ.Elem(), kv[1])
			if err != nil {
				return nil, err
			}
			m.SetMapIndex(k, v)
		}
		dst.Set(m)
	} else {
		s := reflect.MakeSlice(typ, 0, 0)
		for iter.ReadArray() {
			elem, err := readValue(iter, t.Elem, true)
			if err != nil {
				return nil, err
			}
			v, err := assignable(typ.Elem(), elem)
			if err != nil {
				return nil, err
			}
			s = reflect.Append(s, v)
		}
		dst.Set(s)
	}
	if err := iterError(iter); err != nil {
		return nil, err
	}
	return dst.Interface(), nil
}

// readArray reads an array holding exactly one value per entry of infos.
func readArray(iter *jsoniter.Iterator, infos []gocql.TypeInfo) ([]interface{}, error) {
	values := make([]interface{}, 0, len(infos))
	for iter.ReadArray() {
		if len(values) == len(infos) {
			return nil, fmt.Errorf("expected %d values", len(infos))
		}
		v, err := readValue(iter, infos[len(values)], true)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if err := iterError(iter); err != nil {
		return nil, err
	}
	if len(values) != len(infos) {
		return nil, fmt.Errorf("expected %d values, got %d", len(infos), len(values))
	}
	return values, nil
}

func assignable(typ reflect.Type, v interface{}) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(typ), nil
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(typ) {
		return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, typ)
	}
	return rv, nil
}

// iterError ignores io.EOF, which the iterator reports after a number that
// ends the input.
func iterError(iter *jsoniter.Iterator) error {
	if iter.Error == nil || iter.Error == io.EOF {
		return nil
	}
	return iter.Error
}

func readFloat(iter *jsoniter.Iterator, bits int) (float64, error) {
	if iter.WhatIsNext() == jsoniter.StringValue {
		return strconv.ParseFloat(iter.ReadString(), bits)
	}
	return iter.ReadFloat64(), nil
}
