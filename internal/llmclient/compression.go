// File: internal/llmclient/compression.go
package llmclient

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// A turn loop pushes megabytes of base64 screenshot JSON through this
// transport every few seconds, so responses are negotiated compressed and
// decoder state is pooled across turns.

// decoder opens one Content-Encoding layer over src. A non-nil release hook
// returns pooled decoder state once the body is closed.
type decoder func(src io.Reader) (body io.ReadCloser, release func(), err error)

// decoders is the closed set of encodings the transport can unwrap.
var decoders = map[string]decoder{
	"gzip":    openGzip,
	"deflate": openDeflate,
	"br":      openBrotli,
}

var (
	gzipPool   = sync.Pool{New: func() interface{} { return new(gzip.Reader) }}
	brotliPool = sync.Pool{New: func() interface{} { return brotli.NewReader(nil) }}

	// drained detaches a pooled reader from its old source before the pool
	// takes it back. Reset(nil) is not safe for gzip on older runtimes.
	drained = strings.NewReader("")
)

func openGzip(src io.Reader) (io.ReadCloser, func(), error) {
	zr := gzipPool.Get().(*gzip.Reader)
	if err := zr.Reset(src); err != nil {
		gzipPool.Put(zr)
		return nil, nil, err
	}
	return zr, func() {
		_ = zr.Reset(drained)
		gzipPool.Put(zr)
	}, nil
}

func openBrotli(src io.Reader) (io.ReadCloser, func(), error) {
	br := brotliPool.Get().(*brotli.Reader)
	if err := br.Reset(src); err != nil {
		brotliPool.Put(br)
		return nil, nil, err
	}
	return io.NopCloser(br), func() {
		_ = br.Reset(drained)
		brotliPool.Put(br)
	}, nil
}

// openDeflate probes the RFC's zlib wrapping first, then replays the stream
// through raw flate for the servers that skip the wrapper.
func openDeflate(src io.Reader) (io.ReadCloser, func(), error) {
	rw := newRewindReader(src)
	if zr, err := zlib.NewReader(rw); err == nil {
		return zr, nil, nil
	}
	rw.rewind()
	return flate.NewReader(rw), nil, nil
}

// DecompressingTransport is an http.RoundTripper that negotiates compressed
// API responses and hands decoded bodies to the caller. Layered encodings
// unwrap in reverse of the order the server applied them.
type DecompressingTransport struct {
	// Transport performs the request once the negotiation header is set.
	// Nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// NewDecompressingTransport wraps transport, defaulting to
// http.DefaultTransport when nil.
func NewDecompressingTransport(transport http.RoundTripper) *DecompressingTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &DecompressingTransport{Transport: transport}
}

// RoundTrip implements http.RoundTripper. A caller-provided Accept-Encoding
// header is left alone so tests and callers can pin a single scheme.
func (dt *DecompressingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip, deflate, identity")
	}

	resp, err := dt.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := unwrapBody(resp); err != nil {
		// The body stream may be partially consumed; discard the response.
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// decodedBody closes the decoder chain, then the network body, and hands
// pooled decoder state back exactly once.
type decodedBody struct {
	io.ReadCloser
	network io.ReadCloser
	release func()
}

func (b *decodedBody) Close() error {
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return errors.Join(b.ReadCloser.Close(), b.network.Close())
}

// unwrapBody stacks a decoder for every Content-Encoding layer and strips
// the headers that no longer describe the body.
func unwrapBody(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	layers := resp.Header.Values("Content-Encoding")
	if len(layers) == 0 {
		return nil
	}

	for i := len(layers) - 1; i >= 0; i-- {
		name := strings.ToLower(strings.TrimSpace(layers[i]))
		if name == "" || name == "identity" {
			continue
		}
		open, ok := decoders[name]
		if !ok {
			return fmt.Errorf("unsupported Content-Encoding layer: %s", name)
		}
		body, release, err := open(resp.Body)
		if err != nil {
			return fmt.Errorf("%s initialization error: %w", name, err)
		}
		resp.Body = &decodedBody{ReadCloser: body, network: resp.Body, release: release}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// rewindReader remembers the bytes consumed so far so a failed decoder probe
// can restart the stream from the top.
type rewindReader struct {
	r      io.Reader
	seen   *bytes.Buffer
	source io.Reader
}

func newRewindReader(src io.Reader) *rewindReader {
	seen := bytes.NewBuffer(make([]byte, 0, 128))
	return &rewindReader{r: io.TeeReader(src, seen), seen: seen, source: src}
}

func (rr *rewindReader) Read(p []byte) (int, error) { return rr.r.Read(p) }

func (rr *rewindReader) rewind() {
	rr.r = io.MultiReader(bytes.NewReader(rr.seen.Bytes()), rr.source)
}
