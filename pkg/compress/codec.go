package compress

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"

	bz2 "github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
)

// Reader wraps r with a decompressing reader for method. MethodNone passes
// r through unchanged.
func (m Method) Reader(r io.Reader) (io.ReadCloser, error) {
	switch m {
	case MethodGzip:
		return gzip.NewReader(r) //nolint:wrapcheck // caller classifies into brokererr kinds
	case MethodBzip2:
		// The standard library ships a bzip2 reader only: decompression
		// uses it, while the writer side below uses a third-party encoder.
		return io.NopCloser(bzip2.NewReader(r)), nil
	case MethodXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open xz reader: %w", err)
		}

		return io.NopCloser(xr), nil
	case MethodNone:
		return io.NopCloser(r), nil
	default:
		return io.NopCloser(r), nil
	}
}

// Writer wraps w with a compressing writer for method. MethodNone passes w
// through unchanged. The caller must Close the returned writer to flush
// trailing codec state before closing w itself.
func (m Method) Writer(w io.Writer) (io.WriteCloser, error) {
	switch m {
	case MethodGzip:
		return gzip.NewWriter(w), nil
	case MethodBzip2:
		bw, err := bz2.NewWriter(w, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open bzip2 writer: %w", err)
		}

		return bw, nil
	case MethodXZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to open xz writer: %w", err)
		}

		return xw, nil
	case MethodNone:
		return nopWriteCloser{w}, nil
	default:
		return nopWriteCloser{w}, nil
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
