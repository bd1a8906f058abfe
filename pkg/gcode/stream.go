package gcode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"adaptive-mesh/pkg/pool"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression identifies the container a G-code stream is stored in.
type Compression int

const (
	None Compression = iota
	Gzip
	Zstd
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// CompressionFor picks the compression from a file name extension.
func CompressionFor(name string) Compression {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".gzip":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	default:
		return None
	}
}

// BaseName strips a compression extension, so "part.gcode.gz" becomes
// "part.gcode".
func BaseName(name string) string {
	if CompressionFor(name) == None {
		return name
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// IsGCode reports whether name is a G-code file, compressed or not.
func IsGCode(name string) bool {
	switch strings.ToLower(filepath.Ext(BaseName(name))) {
	case ".gcode", ".gco", ".g":
		return true
	}
	return false
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

// NewReader sniffs the stream header and returns a reader yielding the
// plain G-code text together with the detected compression.
func NewReader(r io.Reader) (io.ReadCloser, Compression, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(zstdMagic))

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, Gzip, fmt.Errorf("gcode: gzip header: %w", err)
		}
		return zr, Gzip, nil
	case bytes.HasPrefix(head, zstdMagic):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, Zstd, fmt.Errorf("gcode: zstd header: %w", err)
		}
		return readCloser{Reader: dec, close: func() error { dec.Close(); return nil }}, Zstd, nil
	default:
		return io.NopCloser(br), None, nil
	}
}

// ReadAll reads a whole, possibly compressed, G-code stream.
func ReadAll(r io.Reader) (string, Compression, error) {
	rc, c, err := NewReader(r)
	if err != nil {
		return "", c, err
	}
	defer rc.Close()

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	if _, err := buf.ReadFrom(rc); err != nil {
		return "", c, fmt.Errorf("gcode: read %s stream: %w", c, err)
	}
	return buf.String(), c, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w so that written text is stored with compression c.
// Close flushes the compressor but does not close w.
func NewWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("gcode: zstd writer: %w", err)
		}
		return enc, nil
	default:
		return nopWriteCloser{w}, nil
	}
}

// WriteAll writes data to w using compression c.
func WriteAll(w io.Writer, data string, c Compression) error {
	wc, err := NewWriter(w, c)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(wc, data); err != nil {
		wc.Close()
		return fmt.Errorf("gcode: write %s stream: %w", c, err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("gcode: finish %s stream: %w", c, err)
	}
	return nil
}
