package cql_test

import (
	"math"
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/gocql/gocql"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/inf.v0"

	"github.com/grafana/cqlflow/pkg/cql"
	"github.com/grafana/cqlflow/pkg/cql/cqltest"
)

func encode(t *testing.T, info gocql.TypeInfo, v interface{}) []byte {
	t.Helper()
	stream := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowStream(nil)
	defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnStream(stream)
	cql.WriteValue(stream, info, v)
	require.NoError(t, stream.Error)
	return append([]byte(nil), stream.Buffer()...)
}

func decode(t *testing.T, info gocql.TypeInfo, b []byte) interface{} {
	t.Helper()
	iter := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowIterator(b)
	defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnIterator(iter)
	v, err := cql.ReadValue(iter, info)
	require.NoError(t, err)
	return v
}

func TestWriteReadValue(t *testing.T) {
	varint, _ := new(big.Int).SetString("-123456789123456789123456789", 10)

	for _, tc := range []struct {
		typ   gocql.Type
		value interface{}
		json  string
	}{
		{gocql.TypeBigInt, int64(-5), `-5`},
		{gocql.TypeInt, int32(7), `7`},
		{gocql.TypeSmallInt, int16(7), `7`},
		{gocql.TypeTinyInt, int8(-7), `-7`},
		{gocql.TypeBoolean, true, `true`},
		{gocql.TypeDouble, 2.5, `2.5`},
		{gocql.TypeDouble, math.Inf(1), `"+Inf"`},
		{gocql.TypeFloat, float32(0.1), `0.1`},
		{gocql.TypeVarint, varint, `-123456789123456789123456789`},
		{gocql.TypeDecimal, decimal.RequireFromString("12345.12345"), `"12345.12345"`},
		{gocql.TypeBlob, []byte{0, 1, 2}, `"AAEC"`},
		{gocql.TypeTimestamp, time.Date(2011, 2, 3, 4, 5, 6, 7000000, time.UTC), `"2011-02-03T04:05:06.007Z"`},
		{gocql.TypeDate, civil.Date{Year: 2011, Month: time.February, Day: 3}, `"2011-02-03"`},
		{gocql.TypeTime, civil.Time{Hour: 10, Minute: 12, Second: 15}, `"10:12:15"`},
		{gocql.TypeDuration, 89*time.Hour + 8*time.Minute + 53*time.Second, `"89h8m53s"`},
		{gocql.TypeInet, "/1.2.3.4", `"/1.2.3.4"`},
		{gocql.TypeVarchar, nil, `null`},
	} {
		t.Run(cql.TypeName(tc.typ), func(t *testing.T) {
			info := cqltest.Type(tc.typ)
			b := encode(t, info, tc.value)
			assert.Equal(t, tc.json, string(b))

			v := decode(t, info, b)
			switch expected := tc.value.(type) {
			case decimal.Decimal:
				assert.True(t, expected.Equal(v.(decimal.Decimal)))
			case *big.Int:
				assert.Equal(t, 0, expected.Cmp(v.(*big.Int)))
			default:
				assert.Equal(t, tc.value, v)
			}
		})
	}
}

func TestWriteReadValue_Collections(t *testing.T) {
	uuid, err := gocql.ParseUUID("123e4567-e89b-12d3-a456-426614174000")
	require.NoError(t, err)
	ts := time.Date(2011, 2, 3, 4, 5, 6, 0, time.UTC)

	listOfTuples := gocql.CollectionType{
		NativeType: gocql.NewNativeType(4, gocql.TypeList, ""),
		Elem:       tupleOf(gocql.TypeInt, gocql.TypeVarchar),
	}
	mapOfLists := gocql.CollectionType{
		NativeType: gocql.NewNativeType(4, gocql.TypeMap, ""),
		Key:        cqltest.Type(gocql.TypeInt),
		Elem:       listOf(gocql.TypeVarchar),
	}

	for _, tc := range []struct {
		name  string
		info  gocql.TypeInfo
		value interface{}
		json  string
	}{
		{"list<bigint>", listOf(gocql.TypeBigInt), []int64{math.MaxInt64, -1}, `[9223372036854775807,-1]`},
		{"list<blob>", listOf(gocql.TypeBlob), [][]byte{{1, 2, 3}}, `["AQID"]`},
		{"list<double>", listOf(gocql.TypeDouble), []float64{1.5, math.Inf(-1)}, `[1.5,"-Inf"]`},
		{"list<timestamp>", listOf(gocql.TypeTimestamp), []time.Time{ts}, `["2011-02-03T04:05:06Z"]`},
		{"set<uuid>", setOf(gocql.TypeUUID), []gocql.UUID{uuid}, `["123e4567-e89b-12d3-a456-426614174000"]`},
		{"map<boolean,text>", mapOf(gocql.TypeBoolean, gocql.TypeVarchar), map[bool]string{true: "yes", false: "no"}, `[[false,"no"],[true,"yes"]]`},
		{"map<int,list<text>>", mapOfLists, map[int][]string{2: {"b"}, 1: {"a", "c"}}, `[[1,["a","c"]],[2,["b"]]]`},
		{"tuple<bigint,blob,uuid>", tupleOf(gocql.TypeBigInt, gocql.TypeBlob, gocql.TypeUUID), []interface{}{int64(math.MaxInt64), []byte{1}, uuid}, `[9223372036854775807,"AQ==","123e4567-e89b-12d3-a456-426614174000"]`},
		{"tuple with null element", tupleOf(gocql.TypeInt, gocql.TypeVarchar), []interface{}{nil, "hours"}, `[null,"hours"]`},
		{"list<tuple<int,text>>", listOfTuples, [][]interface{}{{1, "a"}, {2, "b"}}, `[[1,"a"],[2,"b"]]`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v, err := cql.Convert(cqltest.Cell(t, tc.info, tc.value))
			require.NoError(t, err)

			b := encode(t, tc.info, v)
			assert.Equal(t, tc.json, string(b))
			assert.Equal(t, v, decode(t, tc.info, b))
		})
	}
}

func TestWriteReadValue_Decimals(t *testing.T) {
	info := listOf(gocql.TypeDecimal)
	b := encode(t, info, []*inf.Dec{inf.NewDec(12345, 3)})
	assert.Equal(t, `["12.345"]`, string(b))

	v := decode(t, info, b).([]*inf.Dec)
	require.Len(t, v, 1)
	assert.Equal(t, "12.345", v[0].String())
}

func TestReadValue_UntypedCollection(t *testing.T) {
	v := decode(t, cqltest.Type(gocql.TypeList), []byte(`["a","b"]`))
	assert.Equal(t, []interface{}{"a", "b"}, v)
}

func TestReadValue_Errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		info gocql.TypeInfo
		json string
	}{
		{"map entry without value", mapOf(gocql.TypeVarchar, gocql.TypeInt), `[["a"]]`},
		{"tuple with extra element", tupleOf(gocql.TypeInt), `[1,2]`},
		{"invalid uuid", listOf(gocql.TypeUUID), `["nope"]`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			iter := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowIterator([]byte(tc.json))
			defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnIterator(iter)
			_, err := cql.ReadValue(iter, tc.info)
			assert.Error(t, err)
		})
	}
}

func TestParseType(t *testing.T) {
	info, err := cql.ParseType("timeuuid")
	require.NoError(t, err)
	assert.Equal(t, gocql.TypeTimeUUID, info.Type())

	_, err = cql.ParseType("frozen")
	assert.Error(t, err)

	assert.Equal(t, "bigint", cql.TypeName(gocql.TypeBigInt))
}

func TestTypeString(t *testing.T) {
	nested := gocql.CollectionType{
		NativeType: gocql.NewNativeType(4, gocql.TypeMap, ""),
		Key:        cqltest.Type(gocql.TypeVarchar),
		Elem:       tupleOf(gocql.TypeInt, gocql.TypeBlob),
	}

	for _, tc := range []struct {
		info gocql.TypeInfo
		name string
	}{
		{cqltest.Type(gocql.TypeBigInt), "bigint"},
		{listOf(gocql.TypeBigInt), "list<bigint>"},
		{setOf(gocql.TypeUUID), "set<uuid>"},
		{mapOf(gocql.TypeBoolean, gocql.TypeVarchar), "map<boolean,varchar>"},
		{tupleOf(gocql.TypeInt, gocql.TypeVarchar), "tuple<int,varchar>"},
		{nested, "map<varchar,tuple<int,blob>>"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.name, cql.TypeString(tc.info))

			info, err := cql.ParseType(tc.name)
			require.NoError(t, err)
			assert.Equal(t, tc.info, info)
		})
	}

	for _, name := range []string{"list<int", "map<int>", "int<text>", "list<int>x", "tuple<>"} {
		_, err := cql.ParseType(name)
		assert.Error(t, err, name)
	}
}
