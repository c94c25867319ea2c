package cql_test

import (
	"math/big"
	"net"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gocql/gocql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/inf.v0"

	"github.com/grafana/cqlflow/pkg/cql"
	"github.com/grafana/cqlflow/pkg/cql/cqltest"
)

func listOf(elem gocql.Type) gocql.TypeInfo {
	return gocql.CollectionType{NativeType: gocql.NewNativeType(4, gocql.TypeList, ""), Elem: cqltest.Type(elem)}
}

func setOf(elem gocql.Type) gocql.TypeInfo {
	return gocql.CollectionType{NativeType: gocql.NewNativeType(4, gocql.TypeSet, ""), Elem: cqltest.Type(elem)}
}

func mapOf(key, elem gocql.Type) gocql.TypeInfo {
	return gocql.CollectionType{NativeType: gocql.NewNativeType(4, gocql.TypeMap, ""), Key: cqltest.Type(key), Elem: cqltest.Type(elem)}
}

func tupleOf(elems ...gocql.Type) gocql.TypeInfo {
	infos := make([]gocql.TypeInfo, len(elems))
	for i, e := range elems {
		infos[i] = cqltest.Type(e)
	}
	return gocql.TupleTypeInfo{NativeType: gocql.NewNativeType(4, gocql.TypeTuple, ""), Elems: infos}
}

func TestConvert(t *testing.T) {
	ts := time.Date(2011, 2, 3, 4, 5, 6, 0, time.UTC)
	uuid, err := gocql.ParseUUID("123e4567-e89b-12d3-a456-426614174000")
	require.NoError(t, err)
	timeUUID, err := gocql.ParseUUID("e23f450f-53a6-11e2-7f7f-7f7f7f7f7f7f")
	require.NoError(t, err)
	varint, _ := new(big.Int).SetString("123456789123456789123456789", 10)

	for _, tc := range []struct {
		name     string
		info     gocql.TypeInfo
		value    interface{}
		expected interface{}
	}{
		{"ascii", cqltest.Type(gocql.TypeAscii), "ascii", "ascii"},
		{"varchar", cqltest.Type(gocql.TypeVarchar), "varchar", "varchar"},
		{"text", cqltest.Type(gocql.TypeText), "text", "text"},
		{"bigint", cqltest.Type(gocql.TypeBigInt), int64(42), int64(42)},
		{"counter", cqltest.Type(gocql.TypeCounter), int64(7), int64(7)},
		{"blob", cqltest.Type(gocql.TypeBlob), []byte("cqlflow"), []byte("cqlflow")},
		{"boolean", cqltest.Type(gocql.TypeBoolean), true, true},
		{"double", cqltest.Type(gocql.TypeDouble), 2.1, 2.1},
		{"float", cqltest.Type(gocql.TypeFloat), float32(1.5), float32(1.5)},
		{"int", cqltest.Type(gocql.TypeInt), int32(2147483647), int32(2147483647)},
		{"smallint", cqltest.Type(gocql.TypeSmallInt), int16(-32768), int16(-32768)},
		{"tinyint", cqltest.Type(gocql.TypeTinyInt), int8(127), int8(127)},
		{"varint", cqltest.Type(gocql.TypeVarint), varint, varint},
		{"timestamp", cqltest.Type(gocql.TypeTimestamp), ts, ts},
		{"date", cqltest.Type(gocql.TypeDate), time.Date(2011, 2, 3, 0, 0, 0, 0, time.UTC), civil.Date{Year: 2011, Month: time.February, Day: 3}},
		{"time", cqltest.Type(gocql.TypeTime), 10*time.Hour + 12*time.Minute + 15*time.Second + 5*time.Millisecond, civil.Time{Hour: 10, Minute: 12, Second: 15, Nanosecond: 5000000}},
		{"duration", cqltest.Type(gocql.TypeDuration), gocql.Duration{Nanoseconds: int64(89*time.Hour + 8*time.Minute + 53*time.Second)}, 89*time.Hour + 8*time.Minute + 53*time.Second},
		{"duration drops months and days", cqltest.Type(gocql.TypeDuration), gocql.Duration{Months: 1, Days: 2, Nanoseconds: int64(time.Second)}, time.Second},
		{"uuid", cqltest.Type(gocql.TypeUUID), uuid, "123e4567-e89b-12d3-a456-426614174000"},
		{"timeuuid", cqltest.Type(gocql.TypeTimeUUID), timeUUID, "e23f450f-53a6-11e2-7f7f-7f7f7f7f7f7f"},
		{"inet", cqltest.Type(gocql.TypeInet), net.ParseIP("1.2.3.4"), "/1.2.3.4"},
		{"inet6", cqltest.Type(gocql.TypeInet), net.ParseIP("::1"), "/::1"},
		{"list", listOf(gocql.TypeVarchar), []string{"a", "b", "c"}, []string{"a", "b", "c"}},
		{"set", setOf(gocql.TypeInt), []int{1, 2, 3}, []int{1, 2, 3}},
		{"map", mapOf(gocql.TypeVarchar, gocql.TypeInt), map[string]int{"key": 1, "value": 2}, map[string]int{"key": 1, "value": 2}},
		{"tuple", tupleOf(gocql.TypeInt, gocql.TypeVarchar), []interface{}{3, "hours"}, []interface{}{3, "hours"}},
		{"tuple with null element", tupleOf(gocql.TypeInt, gocql.TypeVarchar), []interface{}{nil, "hours"}, []interface{}{nil, "hours"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v, err := cql.Convert(cqltest.Cell(t, tc.info, tc.value))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, v)
		})
	}
}

func TestConvert_Decimal(t *testing.T) {
	v, err := cql.Convert(cqltest.Cell(t, cqltest.Type(gocql.TypeDecimal), inf.NewDec(1234512345, 5)))
	require.NoError(t, err)
	require.IsType(t, decimal.Decimal{}, v)
	assert.True(t, decimal.RequireFromString("12345.12345").Equal(v.(decimal.Decimal)), "got %s", v)
	assert.Equal(t, "12345.12345", v.(decimal.Decimal).String())
}

func TestConvert_Null(t *testing.T) {
	for _, info := range []gocql.TypeInfo{
		cqltest.Type(gocql.TypeVarchar),
		cqltest.Type(gocql.TypeBigInt),
		cqltest.Type(gocql.TypeInt),
		cqltest.Type(gocql.TypeBoolean),
		cqltest.Type(gocql.TypeDouble),
		cqltest.Type(gocql.TypeDecimal),
		cqltest.Type(gocql.TypeTimestamp),
		cqltest.Type(gocql.TypeInet),
		cqltest.Type(gocql.TypeBlob),
		listOf(gocql.TypeInt),
		mapOf(gocql.TypeVarchar, gocql.TypeInt),
		tupleOf(gocql.TypeInt, gocql.TypeVarchar),
	} {
		t.Run(cql.TypeString(info), func(t *testing.T) {
			v, err := cql.Convert(cqltest.Cell(t, info, nil))
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}
}

func TestConvert_Unsupported(t *testing.T) {
	udt := gocql.UDTTypeInfo{
		NativeType: gocql.NewNativeType(4, gocql.TypeUDT, ""),
		KeySpace:   "ks",
		Name:       "address",
		Elements:   []gocql.UDTField{{Name: "street", Type: cqltest.Type(gocql.TypeText)}},
	}
	custom := gocql.NewNativeType(4, gocql.TypeCustom, "org.apache.cassandra.db.marshal.DynamicCompositeType")

	for _, tc := range []struct {
		name string
		info gocql.TypeInfo
		msg  string
	}{
		{"udt", udt, "unsupported CQL type: udt ks.address"},
		{"custom", custom, "unsupported CQL type: custom org.apache.cassandra.db.marshal.DynamicCompositeType"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, data := range [][]byte{nil, {0x01, 0x02}} {
				c := cql.NewCell(tc.info)
				require.NoError(t, c.Set(data))

				_, err := cql.Convert(c)
				var unsupported *cql.UnsupportedTypeError
				require.ErrorAs(t, err, &unsupported)
				assert.EqualError(t, err, tc.msg)
			}
		})
	}
}

func TestCell_Reuse(t *testing.T) {
	info := cqltest.Type(gocql.TypeVarchar)
	c := cql.NewCell(info)

	require.NoError(t, c.UnmarshalCQL(info, []byte("first")))
	v, err := cql.Convert(c)
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	require.NoError(t, c.UnmarshalCQL(info, nil))
	assert.True(t, c.IsNull())

	require.NoError(t, c.UnmarshalCQL(info, []byte{}))
	assert.False(t, c.IsNull())
	v, err = cql.Convert(c)
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestCell_TupleTargets(t *testing.T) {
	c := cql.NewCell(tupleOf(gocql.TypeInt, gocql.TypeVarchar, gocql.TypeBoolean))
	assert.Len(t, c.Targets(), 3)

	c = cql.NewCell(cqltest.Type(gocql.TypeInt))
	assert.Equal(t, []interface{}{c}, c.Targets())
}
