package httpds

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Format identifies the compression applied to a remote CSV resource.
type Format string

const (
	FormatBzip2 Format = "bzip2"
	FormatGzip  Format = "gzip"
	FormatZstd  Format = "zstd"
	FormatPlain Format = "plain"
)

// DecompressionError reports a stream that is not valid compressed data.
// It is fatal to a bronze run.
type DecompressionError struct {
	URL string
	Err error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("httpds: decompress %s: %v", e.URL, e.Err)
}

func (e *DecompressionError) Unwrap() error { return e.Err }

// OpenDecompressed opens a streaming GET against url and wraps the body in a
// block-decompressing reader. The format is detected by sniffing the first
// bytes of the stream (bzip2, gzip, zstd); uncompressed input is accepted only
// when the URL path ends in .csv or .txt, so that serving garbage under a
// .csv.bz2 name fails loudly instead of being parsed as CSV.
//
// Reads are demand-driven; neither the compressed nor the decompressed payload
// is ever buffered in full. The caller must close the returned ReadCloser on
// every exit path; Close releases both the decompressor and the connection.
func (c *Client) OpenDecompressed(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	body, err := c.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(body, 64<<10)
	prefix, err := br.Peek(4)
	if err != nil && err != io.EOF {
		_ = body.Close()
		return nil, &DecompressionError{URL: rawURL, Err: err}
	}

	format, err := SniffFormat(prefix, rawURL)
	if err != nil {
		_ = body.Close()
		return nil, &DecompressionError{URL: rawURL, Err: err}
	}

	switch format {
	case FormatBzip2:
		// bzip2 has no constructor error; invalid block data surfaces on Read
		// as a StructuralError, which errMapReader tags as a DecompressionError.
		return &errMapReader{
			r:   bzip2.NewReader(br),
			c:   body,
			url: rawURL,
		}, nil

	case FormatGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			_ = body.Close()
			return nil, &DecompressionError{URL: rawURL, Err: err}
		}
		return &errMapReader{r: zr, c: multiCloser{zr, body}, url: rawURL}, nil

	case FormatZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			_ = body.Close()
			return nil, &DecompressionError{URL: rawURL, Err: err}
		}
		return &errMapReader{r: zr, c: multiCloser{zstdCloser{zr}, body}, url: rawURL}, nil

	default: // FormatPlain
		return &errMapReader{r: br, c: body, url: rawURL, plain: true}, nil
	}
}

// SniffFormat decides the compression format from the first bytes of a stream,
// falling back to the URL's filename extension for the plain-text case.
//
// Magic numbers:
//
//	bzip2  "BZh" + block-size digit
//	gzip   1f 8b
//	zstd   28 b5 2f fd
func SniffFormat(prefix []byte, rawURL string) (Format, error) {
	if len(prefix) >= 4 {
		switch {
		case prefix[0] == 'B' && prefix[1] == 'Z' && prefix[2] == 'h' && prefix[3] >= '1' && prefix[3] <= '9':
			return FormatBzip2, nil
		case prefix[0] == 0x1f && prefix[1] == 0x8b:
			return FormatGzip, nil
		case prefix[0] == 0x28 && prefix[1] == 0xb5 && prefix[2] == 0x2f && prefix[3] == 0xfd:
			return FormatZstd, nil
		}
	}

	switch ext := urlExt(rawURL); ext {
	case ".csv", ".txt":
		return FormatPlain, nil
	case ".bz2", ".gz", ".zst", ".zstd":
		return "", fmt.Errorf("stream does not match %s magic", ext)
	default:
		return "", fmt.Errorf("unrecognized stream format (first bytes %q)", prefix)
	}
}

// urlExt returns the lowercased filename extension of the URL path, ignoring
// any query string.
func urlExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(path.Ext(rawURL))
	}
	return strings.ToLower(path.Ext(u.Path))
}

// errMapReader forwards reads from the decompressor and tags non-EOF read
// errors as DecompressionError so callers never have to inspect
// codec-specific error types.
type errMapReader struct {
	r     io.Reader
	c     io.Closer
	url   string
	plain bool
}

func (e *errMapReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF && !e.plain {
		return n, &DecompressionError{URL: e.url, Err: err}
	}
	return n, err
}

func (e *errMapReader) Close() error { return e.c.Close() }

// multiCloser closes all members in order, returning the first error.
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// zstdCloser adapts *zstd.Decoder (whose Close returns nothing) to io.Closer.
type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error { z.d.Close(); return nil }
