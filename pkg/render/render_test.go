package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	r := New()
	vars := map[string]interface{}{
		"table": "cassandra_types",
		"trigger": map[string]interface{}{
			"id": "watch",
		},
	}

	for _, tc := range []struct {
		name, text, expected string
		err                  bool
	}{
		{name: "plain", text: "SELECT * FROM t", expected: "SELECT * FROM t"},
		{name: "variable", text: "SELECT * FROM {{ .table }}", expected: "SELECT * FROM cassandra_types"},
		{name: "nested", text: "{{ .trigger.id }}", expected: "watch"},
		{name: "sprig", text: "{{ .table | upper }}", expected: "CASSANDRA_TYPES"},
		{name: "missing", text: "{{ .nope }}", err: true},
		{name: "invalid", text: "{{ .table", err: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Render(tc.text, vars)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}
