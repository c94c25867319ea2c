package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	r := p.ForTask("select")
	r.Counter("fetch.size", 3)
	r.Counter("fetch.size", 2)
	r.Counter("fetch.bytes", 128)
	r.Counter("fetch.bytes", -1)

	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP cqlflow_task_counter_total Counters emitted by task runs, e.g. fetched rows and bytes.
# TYPE cqlflow_task_counter_total counter
cqlflow_task_counter_total{name="fetch.bytes",task="select"} 128
cqlflow_task_counter_total{name="fetch.size",task="select"} 5
`), "cqlflow_task_counter_total"))
}

func TestCollectorAndTee(t *testing.T) {
	a, b := &Collector{}, &Collector{}
	r := Tee(a, b, Nop)

	r.Counter("fetch.size", 1)
	r.Counter("fetch.bytes", 10)

	for _, c := range []*Collector{a, b} {
		assert.Equal(t, []Counter{{"fetch.size", 1}, {"fetch.bytes", 10}}, c.Counters())
		assert.Equal(t, []int64{10}, c.Get("fetch.bytes"))
	}
}
