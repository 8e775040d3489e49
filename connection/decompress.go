package connection

import (
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/pgzip"
)

// decompress replaces the body of a gzip or deflate encoded response with a
// decoding reader. The decoder is created on first read so that a slow node
// does not delay delivery of the response headers.
func decompress(resp *http.Response) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip", "x-gzip", "deflate":
	default:
		return
	}
	resp.Body = &decompressReader{body: resp.Body, encoding: encoding}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
}

type decompressReader struct {
	body     io.ReadCloser
	encoding string
	r        io.ReadCloser
	err      error
}

func (d *decompressReader) Read(p []byte) (int, error) {
	if d.r == nil && d.err == nil {
		if d.encoding == "deflate" {
			if d.r, d.err = zlib.NewReader(d.body); d.err != nil {
				d.r = nil
			}
		} else {
			var zr *pgzip.Reader
			if zr, d.err = pgzip.NewReader(d.body); d.err == nil {
				d.r = zr
			}
		}
	}
	if d.err != nil {
		return 0, d.err
	}
	return d.r.Read(p)
}

func (d *decompressReader) Close() error {
	if d.r != nil {
		d.r.Close()
	}
	return d.body.Close()
}
