// Package runner carries the per-invocation state of a task run.
package runner

import (
	"github.com/coder/quartz"
	"github.com/go-kit/log"
	"github.com/spf13/afero"

	"github.com/grafana/cqlflow/pkg/compression"
	"github.com/grafana/cqlflow/pkg/materialize"
	"github.com/grafana/cqlflow/pkg/metrics"
	"github.com/grafana/cqlflow/pkg/render"
)

// Context is the state of one task invocation. It is passed explicitly to
// everything a run touches and is never shared between concurrent runs;
// derive a new one with With* instead of mutating a shared value.
type Context struct {
	Logger   log.Logger
	Vars     map[string]interface{}
	Renderer *render.Renderer
	Metrics  metrics.Recorder
	Clock    quartz.Clock

	// Storage keeps STORE results. Nil disables STORE.
	Storage     materialize.Storage
	FS          afero.Fs
	WorkingDir  string
	Compression compression.Codec
	KeyPrefix   string
}

// New returns a Context with usable defaults for every unset collaborator.
func New(c Context) *Context {
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	if c.Renderer == nil {
		c.Renderer = render.New()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Nop
	}
	if c.Clock == nil {
		c.Clock = quartz.NewReal()
	}
	if c.FS == nil {
		c.FS = afero.NewOsFs()
	}
	c.Vars = merge(nil, c.Vars)
	return &c
}

// Render renders text against the run variables.
func (c *Context) Render(text string) (string, error) {
	return c.Renderer.Render(text, c.Vars)
}

// WithVars returns a copy whose variables are the current ones overlaid
// with vars.
func (c *Context) WithVars(vars map[string]interface{}) *Context {
	cp := *c
	cp.Vars = merge(c.Vars, vars)
	return &cp
}

// WithLogger returns a copy logging through logger.
func (c *Context) WithLogger(logger log.Logger) *Context {
	cp := *c
	cp.Logger = logger
	return &cp
}

// WithMetrics returns a copy recording counters to m.
func (c *Context) WithMetrics(m metrics.Recorder) *Context {
	cp := *c
	cp.Metrics = m
	return &cp
}

// Materializer returns a materializer bound to this run.
func (c *Context) Materializer() *materialize.Materializer {
	return materialize.New(materialize.Options{
		FS:          c.FS,
		WorkingDir:  c.WorkingDir,
		Compression: c.Compression,
		Storage:     c.Storage,
		KeyPrefix:   c.KeyPrefix,
		Metrics:     c.Metrics,
		Logger:      c.Logger,
	})
}

func merge(base, overlay map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
