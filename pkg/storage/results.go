package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/thanos-io/objstore"
)

// Scheme is the URI scheme of stored result files.
const Scheme = "cqlflow"

// Results stores materialized result files in an object store bucket and
// addresses them by URI.
type Results struct {
	bucket objstore.Bucket
}

func NewResults(bucket objstore.Bucket) *Results {
	return &Results{bucket: bucket}
}

// PutFile uploads r under key and returns its URI.
func (s *Results) PutFile(ctx context.Context, key string, r io.Reader) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if key == "" {
		return "", errors.New("empty result key")
	}
	if err := s.bucket.Upload(ctx, key, r); err != nil {
		return "", errors.Wrapf(err, "uploading %s", key)
	}
	return URI(key), nil
}

// Get opens the result file addressed by uri.
func (s *Results) Get(ctx context.Context, uri string) (io.ReadCloser, error) {
	key, err := KeyFromURI(uri)
	if err != nil {
		return nil, err
	}
	r, err := s.bucket.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", uri)
	}
	return r, nil
}

// Delete removes the result file addressed by uri.
func (s *Results) Delete(ctx context.Context, uri string) error {
	key, err := KeyFromURI(uri)
	if err != nil {
		return err
	}
	return s.bucket.Delete(ctx, key)
}

// URI returns the URI of the object stored under key.
func URI(key string) string {
	u := url.URL{Scheme: Scheme, Path: "/" + key}
	return u.String()
}

// KeyFromURI returns the object key a URI points to.
func KeyFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrap(err, "parsing result URI")
	}
	if u.Scheme != Scheme {
		return "", fmt.Errorf("unsupported result URI scheme %q, expected %s://", u.Scheme, Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", fmt.Errorf("result URI %q has no key", uri)
	}
	return key, nil
}
