package leak

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression identifies how a leak file is encoded on disk.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionBzip2
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionBzip2:
		return "bzip2"
	case CompressionZstd:
		return "zstd"
	default:
		return "plain"
	}
}

var magics = []struct {
	magic []byte
	kind  Compression
}{
	{[]byte{0x1f, 0x8b, 0x08}, CompressionGzip},
	{[]byte{0x42, 0x5a, 0x68}, CompressionBzip2},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, CompressionZstd},
}

// Detect sniffs the leading bytes of a stream.
func Detect(head []byte) Compression {
	for _, m := range magics {
		if bytes.HasPrefix(head, m.magic) {
			return m.kind
		}
	}
	return CompressionNone
}

type readCloser struct {
	io.Reader
	closers []func() error
}

func (rc *readCloser) Close() error {
	var first error
	for _, c := range rc.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens a possibly compressed leak file and returns a reader over its
// decompressed bytes. The compression is detected from the file contents,
// not the extension.
func Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open leak file %s: %w", path, err)
	}
	rc, err := decompress(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open leak file %s: %w", path, err)
	}
	rc.closers = append(rc.closers, file.Close)
	return rc, nil
}

// Decompress wraps r with the decoder matching its leading bytes. Closing the
// result releases the decoder but not r.
func Decompress(r io.Reader) (io.ReadCloser, error) {
	rc, err := decompress(r)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func decompress(r io.Reader) (*readCloser, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, err := br.Peek(4)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, err
	}

	kind := Detect(head)
	log.Debugf("Leak stream compression: %s", kind)

	switch kind {
	case CompressionGzip:
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("invalid gzip stream: %w", err)
		}
		return &readCloser{Reader: gz, closers: []func() error{gz.Close}}, nil
	case CompressionBzip2:
		return &readCloser{Reader: bzip2.NewReader(br)}, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("invalid zstd stream: %w", err)
		}
		return &readCloser{Reader: dec, closers: []func() error{func() error { dec.Close(); return nil }}}, nil
	default:
		return &readCloser{Reader: br}, nil
	}
}
