package recorder

import (
	"bufio"
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
)

// CompressionType defines the compression algorithm to use
type CompressionType int

const (
	// NoCompression indicates no compression
	NoCompression CompressionType = iota
	// ZstdCompression indicates Zstandard compression
	ZstdCompression
)

// DefaultCompression is the default compression algorithm
var DefaultCompression = ZstdCompression

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// String returns the string representation of the CompressionType
func (c CompressionType) String() string {
	if c == ZstdCompression {
		return "zstd"
	}
	return "none"
}

// nopWriteCloser wraps an uncompressed writer
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewCompressedWriter returns a writer that compresses data before writing
// to w. Close ends the compressed stream but does not close w.
func NewCompressedWriter(w io.Writer, compressionType CompressionType) (io.WriteCloser, error) {
	if compressionType == NoCompression {
		return nopWriteCloser{w}, nil
	}
	return zstd.NewWriter(w)
}

// NewCompressedReader returns a reader that decompresses data read from r.
// The caller must Close it.
func NewCompressedReader(r io.Reader, compressionType CompressionType) (io.ReadCloser, error) {
	if compressionType == NoCompression {
		return io.NopCloser(r), nil
	}
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

// DetectCompression peeks at the start of r and reports whether it holds a
// zstd stream. Empty input is reported as uncompressed.
func DetectCompression(r *bufio.Reader) (CompressionType, error) {
	head, err := r.Peek(len(zstdMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return NoCompression, err
	}
	if bytes.Equal(head, zstdMagic) {
		return ZstdCompression, nil
	}
	return NoCompression, nil
}
