package cql

import (
	"math/big"
	"net"
	"reflect"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/inf.v0"
)

type decodeFunc func(c *Cell) (interface{}, error)

// decoders maps every supported type code to its portable decoding.
// A type code missing here is unsupported.
var decoders = map[gocql.Type]decodeFunc{
	gocql.TypeAscii:     decodeString,
	gocql.TypeVarchar:   decodeString,
	gocql.TypeText:      decodeString,
	gocql.TypeBigInt:    decodeBigInt,
	gocql.TypeCounter:   decodeBigInt,
	gocql.TypeBlob:      decodeBlob,
	gocql.TypeBoolean:   decodeBoolean,
	gocql.TypeDecimal:   decodeDecimal,
	gocql.TypeDouble:    decodeDouble,
	gocql.TypeFloat:     decodeFloat,
	gocql.TypeInt:       decodeInt,
	gocql.TypeSmallInt:  decodeSmallInt,
	gocql.TypeTinyInt:   decodeTinyInt,
	gocql.TypeVarint:    decodeVarint,
	gocql.TypeTimestamp: decodeTimestamp,
	gocql.TypeDate:      decodeDate,
	gocql.TypeTime:      decodeTime,
	gocql.TypeDuration:  decodeDuration,
	gocql.TypeUUID:      decodeUUID,
	gocql.TypeTimeUUID:  decodeUUID,
	gocql.TypeInet:      decodeInet,
	gocql.TypeList:      decodeNative,
	gocql.TypeSet:       decodeNative,
	gocql.TypeMap:       decodeNative,
	gocql.TypeTuple:     decodeTuple,
}

// Convert turns a cell into its portable value. Null cells of a supported
// type convert to nil, including bigint, int, boolean, double and the other
// fixed-size types, so a null is never reported as 0 or false. Unsupported
// types fail whether or not the cell is null.
func Convert(c *Cell) (interface{}, error) {
	if c.info == nil {
		return nil, &UnsupportedTypeError{}
	}
	decode, ok := decoders[c.info.Type()]
	if !ok {
		return nil, &UnsupportedTypeError{Type: c.info}
	}
	if c.IsNull() {
		return nil, nil
	}
	v, err := decode(c)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", TypeName(c.info.Type()))
	}
	return v, nil
}

func unmarshal(c *Cell, dst interface{}) error {
	return gocql.Unmarshal(c.info, c.data, dst)
}

func decodeString(c *Cell) (interface{}, error) {
	return string(c.data), nil
}

func decodeBigInt(c *Cell) (interface{}, error) {
	var v int64
	err := unmarshal(c, &v)
	return v, err
}

func decodeBlob(c *Cell) (interface{}, error) {
	v := make([]byte, len(c.data))
	copy(v, c.data)
	return v, nil
}

func decodeBoolean(c *Cell) (interface{}, error) {
	var v bool
	err := unmarshal(c, &v)
	return v, err
}

func decodeDecimal(c *Cell) (interface{}, error) {
	v := new(inf.Dec)
	if err := unmarshal(c, v); err != nil {
		return nil, err
	}
	return decimal.NewFromBigInt(v.UnscaledBig(), -int32(v.Scale())), nil
}

func decodeDouble(c *Cell) (interface{}, error) {
	var v float64
	err := unmarshal(c, &v)
	return v, err
}

func decodeFloat(c *Cell) (interface{}, error) {
	var v float32
	err := unmarshal(c, &v)
	return v, err
}

func decodeInt(c *Cell) (interface{}, error) {
	var v int32
	err := unmarshal(c, &v)
	return v, err
}

func decodeSmallInt(c *Cell) (interface{}, error) {
	var v int16
	err := unmarshal(c, &v)
	return v, err
}

func decodeTinyInt(c *Cell) (interface{}, error) {
	var v int8
	err := unmarshal(c, &v)
	return v, err
}

func decodeVarint(c *Cell) (interface{}, error) {
	v := new(big.Int)
	if err := unmarshal(c, v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeTimestamp(c *Cell) (interface{}, error) {
	var v time.Time
	if err := unmarshal(c, &v); err != nil {
		return nil, err
	}
	return v.UTC(), nil
}

func decodeDate(c *Cell) (interface{}, error) {
	var v time.Time
	if err := unmarshal(c, &v); err != nil {
		return nil, err
	}
	return civil.DateOf(v.UTC()), nil
}

func decodeTime(c *Cell) (interface{}, error) {
	var d time.Duration
	if err := unmarshal(c, &d); err != nil {
		return nil, err
	}
	return civil.Time{
		Hour:       int(d / time.Hour),
		Minute:     int(d % time.Hour / time.Minute),
		Second:     int(d % time.Minute / time.Second),
		Nanosecond: int(d % time.Second),
	}, nil
}

// decodeDuration keeps only the nanosecond component; months and days have
// no fixed length.
func decodeDuration(c *Cell) (interface{}, error) {
	var v gocql.Duration
	if err := unmarshal(c, &v); err != nil {
		return nil, err
	}
	return time.Duration(v.Nanoseconds), nil
}

func decodeUUID(c *Cell) (interface{}, error) {
	var v gocql.UUID
	if err := unmarshal(c, &v); err != nil {
		return nil, err
	}
	return v.String(), nil
}

func decodeInet(c *Cell) (interface{}, error) {
	var v net.IP
	if err := unmarshal(c, &v); err != nil {
		return nil, err
	}
	return "/" + v.String(), nil
}

// decodeNative decodes into the driver's own Go type for the column, e.g.
// []string for list<text> or map[string]int for map<text, int>. Elements are
// not converted further.
func decodeNative(c *Cell) (interface{}, error) {
	ptr, err := c.info.NewWithError()
	if err != nil {
		return nil, err
	}
	if err := unmarshal(c, ptr); err != nil {
		return nil, err
	}
	return reflect.ValueOf(ptr).Elem().Interface(), nil
}

func decodeTuple(c *Cell) (interface{}, error) {
	if c.elems == nil {
		return decodeNative(c)
	}
	values := make([]interface{}, len(c.elems))
	for i, elem := range c.elems {
		if elem.null {
			continue
		}
		v, err := decodeNative(elem)
		if err != nil {
			return nil, errors.Wrapf(err, "tuple element %d", i)
		}
		values[i] = v
	}
	return values, nil
}
