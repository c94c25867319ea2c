package compression

import (
	"fmt"
	"strings"
)

const (
	ExtNone   = ""
	ExtGZIP   = ".gz"
	ExtSnappy = ".sz"
	ExtLZ4    = ".lz4"
	ExtFlate  = ".zz"
	ExtZstd   = ".zst"
)

func ToFileExtension(c Codec) string {
	switch c {
	case None:
		return ExtNone
	case GZIP:
		return ExtGZIP
	case LZ4:
		return ExtLZ4
	case Snappy:
		return ExtSnappy
	case Flate:
		return ExtFlate
	case Zstd:
		return ExtZstd
	default:
		panic(fmt.Sprintf("invalid compression: %d, supported: %s", c, SupportedCodecs()))
	}
}

func FromFileExtension(ext string) (Codec, error) {
	switch ext {
	case ExtNone:
		return None, nil
	case ExtGZIP:
		return GZIP, nil
	case ExtLZ4:
		return LZ4, nil
	case ExtSnappy:
		return Snappy, nil
	case ExtFlate:
		return Flate, nil
	case ExtZstd:
		return Zstd, nil
	default:
		return None, fmt.Errorf("invalid file extension: %s", ext)
	}
}

// FromFileName returns the codec of a file named <base><inner><ext>, where
// inner is the uncompressed extension, e.g. rows.jsonl.zst.
func FromFileName(name, inner string) (Codec, error) {
	i := strings.LastIndex(name, inner)
	if i < 0 {
		return None, fmt.Errorf("file %s has no %s extension", name, inner)
	}
	return FromFileExtension(name[i+len(inner):])
}
