// Package metrics records named counters emitted by task runs.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives counters emitted while a task runs.
type Recorder interface {
	Counter(name string, value int64)
}

// Prometheus exports task counters as a single counter vector labelled by
// task and counter name.
type Prometheus struct {
	counters *prometheus.CounterVec
}

func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	return &Prometheus{
		counters: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "cqlflow",
			Name:      "task_counter_total",
			Help:      "Counters emitted by task runs, e.g. fetched rows and bytes.",
		}, []string{"task", "name"}),
	}
}

// ForTask returns a recorder that labels counters with task.
func (p *Prometheus) ForTask(task string) Recorder {
	return &taskRecorder{counters: p.counters, task: task}
}

type taskRecorder struct {
	counters *prometheus.CounterVec
	task     string
}

func (r *taskRecorder) Counter(name string, value int64) {
	if value < 0 {
		return
	}
	r.counters.WithLabelValues(r.task, name).Add(float64(value))
}

// Counter is one recorded observation.
type Counter struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Collector keeps counters in memory in emission order.
type Collector struct {
	mtx      sync.Mutex
	counters []Counter
}

func (c *Collector) Counter(name string, value int64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.counters = append(c.counters, Counter{Name: name, Value: value})
}

// Counters returns a copy of the recorded counters.
func (c *Collector) Counters() []Counter {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]Counter(nil), c.counters...)
}

// Get returns the values recorded under name.
func (c *Collector) Get(name string) []int64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	var values []int64
	for _, counter := range c.counters {
		if counter.Name == name {
			values = append(values, counter.Value)
		}
	}
	return values
}

// Tee fans counters out to several recorders.
func Tee(recorders ...Recorder) Recorder {
	return tee(recorders)
}

type tee []Recorder

func (t tee) Counter(name string, value int64) {
	for _, r := range t {
		r.Counter(name, value)
	}
}

// Nop discards counters.
var Nop Recorder = nop{}

type nop struct{}

func (nop) Counter(string, int64) {}
