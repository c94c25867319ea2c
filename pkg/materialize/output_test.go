package materialize

import (
	"testing"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/cqlflow/pkg/cql"
	"github.com/grafana/cqlflow/pkg/cql/cqltest"
)

func TestOutput_MarshalJSON(t *testing.T) {
	row := cql.NewRow(2)
	row.Set(cqltest.Col("id", gocql.TypeText), "1")
	row.Set(cqltest.Col("c_bigint", gocql.TypeBigInt), int64(9223372036854775807))
	one, zero, bytes := int64(1), int64(0), int64(64)

	for _, tc := range []struct {
		name     string
		out      Output
		expected string
	}{
		{"none", Output{FetchType: None, Bytes: &bytes}, `{"fetchType":"NONE","bytes":64}`},
		{"fetch one", Output{FetchType: FetchOne, Row: row, Size: &one}, `{"fetchType":"FETCH_ONE","row":{"id":"1","c_bigint":9223372036854775807},"size":1}`},
		{"fetch one empty", Output{FetchType: FetchOne, Size: &zero}, `{"fetchType":"FETCH_ONE","row":null,"size":0}`},
		{"fetch", Output{FetchType: Fetch, Rows: []*cql.Row{row}, Size: &one}, `{"fetchType":"FETCH","rows":[{"id":"1","c_bigint":9223372036854775807}],"size":1}`},
		{"fetch empty", Output{FetchType: Fetch, Rows: []*cql.Row{}, Size: &zero}, `{"fetchType":"FETCH","rows":[],"size":0}`},
		{"store", Output{FetchType: Store, URI: "cqlflow:///a.jsonl", Size: &one}, `{"fetchType":"STORE","uri":"cqlflow:///a.jsonl","size":1}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, err := tc.out.MarshalJSON()
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(b))
		})
	}
}

func TestOutput_Vars(t *testing.T) {
	row := cql.NewRow(1)
	row.Set(cqltest.Col("id", gocql.TypeText), "1")
	size := int64(1)

	vars := (&Output{FetchType: Fetch, Rows: []*cql.Row{row}, Size: &size}).Vars()
	assert.Equal(t, map[string]interface{}{
		"fetchType": "FETCH",
		"rows":      []map[string]interface{}{{"id": "1"}},
		"size":      int64(1),
	}, vars)
	assert.Equal(t, int64(1), (&Output{Size: &size}).RowCount())
	assert.Equal(t, int64(0), (*Output)(nil).RowCount())
}
