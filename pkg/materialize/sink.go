package materialize

import (
	"context"
	"io"
	"path/filepath"

	"github.com/grafana/dskit/multierror"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/grafana/cqlflow/pkg/compression"
)

// sink is the local temporary file a stored result is streamed into before
// it is handed to storage.
type sink struct {
	fs      afero.Fs
	file    afero.File
	cw      io.WriteCloser
	closed  bool
	removed bool
}

func newSink(fs afero.Fs, dir string, codec compression.Codec) (*sink, error) {
	if err := fs.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating working directory")
	}
	f, err := afero.TempFile(fs, dir, "result-*"+FileExtension+compression.ToFileExtension(codec))
	if err != nil {
		return nil, errors.Wrap(err, "creating result file")
	}
	cw, err := compression.NewWriter(codec, f)
	if err != nil {
		_ = f.Close()
		_ = fs.Remove(f.Name())
		return nil, err
	}
	return &sink{fs: fs, file: f, cw: cw}, nil
}

func (s *sink) Write(p []byte) (int, error) {
	return s.cw.Write(p)
}

func (s *sink) Name() string {
	return filepath.Base(s.file.Name())
}

// Close flushes the compressor and closes the file. It is safe to call more
// than once.
func (s *sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	errs := multierror.New()
	errs.Add(s.cw.Close())
	errs.Add(s.file.Close())
	return errs.Err()
}

// Size returns the size of the closed file.
func (s *sink) Size() (int64, error) {
	fi, err := s.fs.Stat(s.file.Name())
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Discard closes and removes the file. The file is removed at most once.
func (s *sink) Discard() error {
	errs := multierror.New(s.Close())
	if !s.removed {
		s.removed = true
		errs.Add(s.fs.Remove(s.file.Name()))
	}
	return errs.Err()
}

// Publish uploads the closed file under key. The local copy is left for
// Discard.
func (s *sink) Publish(ctx context.Context, storage Storage, key string) (string, error) {
	f, err := s.fs.Open(s.file.Name())
	if err != nil {
		return "", errors.Wrap(err, "opening result file")
	}
	defer f.Close()
	return storage.PutFile(ctx, key, f)
}
