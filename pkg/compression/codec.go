package compression

import (
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the compression applied to a stored result file.
type Codec uint8

// The different available codecs.
const (
	None Codec = iota
	GZIP
	Snappy
	LZ4
	Flate
	Zstd
)

var supportedCodecs = []Codec{None, GZIP, Snappy, LZ4, Flate, Zstd}

func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case GZIP:
		return "gzip"
	case Snappy:
		return "snappy"
	case LZ4:
		return "lz4"
	case Flate:
		return "flate"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCodec parses a codec name.
func ParseCodec(name string) (Codec, error) {
	for _, c := range supportedCodecs {
		if strings.EqualFold(c.String(), name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("invalid compression %q, supported: %s", name, SupportedCodecs())
}

// SupportedCodecs returns the list of supported codec names.
func SupportedCodecs() string {
	var sb strings.Builder
	for i, c := range supportedCodecs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.String())
	}
	return sb.String()
}

// Set implements flag.Value.
func (c *Codec) Set(name string) error {
	parsed, err := ParseCodec(name)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Codec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	return c.Set(name)
}

// MarshalYAML implements yaml.Marshaler.
func (c Codec) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// NewWriter wraps w with the codec's compressor. Closing the returned writer
// flushes the compressor but does not close w.
func NewWriter(c Codec, w io.Writer) (io.WriteCloser, error) {
	switch c {
	case None:
		return nopWriteCloser{w}, nil
	case GZIP:
		return gzip.NewWriter(w), nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	case LZ4:
		return lz4.NewWriter(w), nil
	case Flate:
		return flate.NewWriter(w, flate.DefaultCompression)
	case Zstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("invalid compression: %d, supported: %s", c, SupportedCodecs())
	}
}

// NewReader wraps r with the codec's decompressor. Closing the returned
// reader does not close r.
func NewReader(c Codec, r io.Reader) (io.ReadCloser, error) {
	switch c {
	case None:
		return io.NopCloser(r), nil
	case GZIP:
		return gzip.NewReader(r)
	case Snappy:
		return io.NopCloser(snappy.NewReader(r)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Flate:
		return flate.NewReader(r), nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("invalid compression: %d, supported: %s", c, SupportedCodecs())
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
