// Package materialize pulls rows from a result cursor according to a fetch
// type and turns them into an Output.
package materialize

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/grafana/cqlflow/pkg/compression"
	"github.com/grafana/cqlflow/pkg/cql"
	"github.com/grafana/cqlflow/pkg/metrics"
)

const (
	// MetricFetchSize counts the rows consumed from a result set.
	MetricFetchSize = "fetch.size"
	// MetricFetchBytes counts the result bytes received from the server.
	MetricFetchBytes = "fetch.bytes"
)

// Storage keeps stored result files.
type Storage interface {
	PutFile(ctx context.Context, key string, r io.Reader) (string, error)
}

// Options configure a Materializer.
type Options struct {
	// FS and WorkingDir hold the temporary file of a stored result.
	FS         afero.Fs
	WorkingDir string

	Compression compression.Codec
	Storage     Storage
	// KeyPrefix is prepended to the object key of stored results.
	KeyPrefix string

	Metrics metrics.Recorder
	Logger  log.Logger
}

// Materializer pulls rows from a cursor according to a fetch type.
type Materializer struct {
	opts Options
}

func New(opts Options) *Materializer {
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if opts.WorkingDir == "" {
		opts.WorkingDir = afero.GetTempDir(opts.FS, "cqlflow")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	return &Materializer{opts: opts}
}

// Materialize consumes cur according to ft. The cursor is not closed.
func (m *Materializer) Materialize(ctx context.Context, cur cql.Cursor, ft FetchType) (*Output, error) {
	out := &Output{FetchType: ft}

	var err error
	switch ft {
	case None:
	case FetchOne:
		err = m.fetchOne(cur, out)
	case Fetch:
		err = m.fetch(ctx, cur, out)
	case Store:
		err = m.store(ctx, cur, out)
	default:
		return nil, errors.Errorf("unknown fetch type %s", ft)
	}
	if err != nil {
		return nil, err
	}

	if n, ok := cur.ResponseSize(); ok {
		out.Bytes = &n
	}
	if out.Size != nil {
		m.opts.Metrics.Counter(MetricFetchSize, *out.Size)
	}
	if out.Bytes != nil {
		m.opts.Metrics.Counter(MetricFetchBytes, *out.Bytes)
	}
	return out, nil
}

func (m *Materializer) fetchOne(cur cql.Cursor, out *Output) error {
	var size int64
	cells, ok := cur.Next()
	if ok {
		row, err := cql.Materialize(cur.Columns(), cells)
		if err != nil {
			return err
		}
		out.Row = row
		size = 1
	} else if err := cur.Err(); err != nil {
		return err
	}
	out.Size = &size
	return nil
}

func (m *Materializer) fetch(ctx context.Context, cur cql.Cursor, out *Output) error {
	rows := []*cql.Row{}
	err := m.each(ctx, cur, func(row *cql.Row) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return err
	}
	size := int64(len(rows))
	out.Rows = rows
	out.Size = &size
	return nil
}

func (m *Materializer) store(ctx context.Context, cur cql.Cursor, out *Output) (err error) {
	if m.opts.Storage == nil {
		return errors.New("no storage configured for stored results")
	}
	start := time.Now()
	s, err := newSink(m.opts.FS, m.opts.WorkingDir, m.opts.Compression)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if derr := s.Discard(); derr != nil {
			level.Warn(m.opts.Logger).Log("msg", "failed to discard result file", "file", s.Name(), "err", derr)
		}
	}()

	w, err := NewWriter(s, cur.Columns())
	if err != nil {
		return err
	}
	var size int64
	err = m.each(ctx, cur, func(row *cql.Row) error {
		if err := w.Write(row); err != nil {
			return err
		}
		size++
		return nil
	})
	if err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := s.Close(); err != nil {
		return errors.Wrap(err, "closing result file")
	}
	fileSize, err := s.Size()
	if err != nil {
		return errors.Wrap(err, "reading result file size")
	}

	key := path.Join(m.opts.KeyPrefix, uuid.NewString()+FileExtension+compression.ToFileExtension(m.opts.Compression))
	uri, err := s.Publish(ctx, m.opts.Storage, key)
	if err != nil {
		return errors.Wrap(err, "storing result file")
	}
	// The object is stored; a leftover local file no longer fails the query.
	if derr := s.Discard(); derr != nil {
		level.Warn(m.opts.Logger).Log("msg", "failed to remove local result file", "file", s.Name(), "err", derr)
	}

	level.Debug(m.opts.Logger).Log(
		"msg", "stored result file",
		"uri", uri,
		"rows", size,
		"size", humanize.Bytes(uint64(fileSize)),
		"compression", m.opts.Compression,
		"duration", time.Since(start),
	)
	out.URI = uri
	out.Size = &size
	return nil
}

// each materializes every remaining row of cur and hands it to fn.
func (m *Materializer) each(ctx context.Context, cur cql.Cursor, fn func(*cql.Row) error) error {
	columns := cur.Columns()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells, ok := cur.Next()
		if !ok {
			return cur.Err()
		}
		row, err := cql.Materialize(columns, cells)
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}
