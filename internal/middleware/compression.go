package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"map-manager/internal/logging"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the minimum response size in bytes before compression is applied
	MinSize int
	// Level is the gzip compression level (gzip.BestSpeed to gzip.BestCompression)
	Level int
	// CompressibleTypes lists the media types worth compressing. Tile previews
	// are PNG and stay out.
	CompressibleTypes []string
	// SkipPaths are never compressed.
	SkipPaths []string
}

// DefaultCompressionConfig returns the configuration used by the server.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		CompressibleTypes: []string{
			"text/plain",
			"text/html",
			"application/json",
			"application/openmetrics-text",
		},
		SkipPaths: []string{"/api/purchases/events"},
	}
}

// acceptsGzip reports whether an Accept-Encoding header allows gzip. A q=0
// weight refuses it.
func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		coding = strings.ToLower(strings.TrimSpace(coding))
		if coding != "gzip" && coding != "*" {
			continue
		}
		q, ok := strings.CutPrefix(strings.TrimSpace(params), "q=")
		if !ok {
			return true
		}
		if w, err := strconv.ParseFloat(q, 64); err == nil && w > 0 {
			return true
		}
		if coding == "gzip" {
			return false
		}
	}
	return false
}

// gzipPool hands out writers of one compression level.
type gzipPool struct {
	level int
	pool  sync.Pool
}

func newGzipPool(level int) *gzipPool {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	p := &gzipPool{level: level}
	p.pool.New = func() any {
		// Level was validated above.
		w, _ := gzip.NewWriterLevel(io.Discard, p.level)
		return w
	}
	return p
}

func (p *gzipPool) get(w io.Writer) *gzip.Writer {
	gz := p.pool.Get().(*gzip.Writer)
	gz.Reset(w)
	return gz
}

func (p *gzipPool) put(gz *gzip.Writer) {
	p.pool.Put(gz)
}

// gzipResponseWriter buffers up to MinSize bytes and then decides once
// whether the response is compressed.
type gzipResponseWriter struct {
	http.ResponseWriter
	config  CompressionConfig
	pool    *gzipPool
	gz      *gzip.Writer
	buffer  []byte
	status  int
	decided bool
	head    bool
}

func newGzipResponseWriter(w http.ResponseWriter, config CompressionConfig, pool *gzipPool, head bool) *gzipResponseWriter {
	return &gzipResponseWriter{
		ResponseWriter: w,
		config:         config,
		pool:           pool,
		status:         http.StatusOK,
		buffer:         make([]byte, 0, config.MinSize+1),
		head:           head,
	}
}

// WriteHeader records the status; it is sent once the body decision is made.
func (g *gzipResponseWriter) WriteHeader(statusCode int) {
	if g.decided {
		return
	}
	g.status = statusCode
}

func (g *gzipResponseWriter) Write(data []byte) (int, error) {
	if g.decided {
		if g.gz != nil {
			return g.gz.Write(data)
		}
		return g.ResponseWriter.Write(data)
	}

	g.buffer = append(g.buffer, data...)
	if len(g.buffer) > g.config.MinSize {
		g.decide()
	}
	return len(data), nil
}

func (g *gzipResponseWriter) compressible() bool {
	if g.head || len(g.buffer) < g.config.MinSize {
		return false
	}
	switch g.status {
	case http.StatusNoContent, http.StatusNotModified:
		return false
	}

	h := g.Header()
	if h.Get("Content-Encoding") != "" {
		return false
	}
	mediaType, _, _ := strings.Cut(h.Get("Content-Type"), ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "" {
		return false
	}
	for _, t := range g.config.CompressibleTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

func (g *gzipResponseWriter) decide() {
	if g.decided {
		return
	}
	g.decided = true

	buffered := g.buffer
	g.buffer = nil

	if !g.compressible() {
		g.ResponseWriter.WriteHeader(g.status)
		if _, err := g.ResponseWriter.Write(buffered); err != nil {
			logging.Debug("response write failed: %v", err)
		}
		return
	}

	h := g.Header()
	h.Del("Content-Length")
	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")
	g.ResponseWriter.WriteHeader(g.status)

	g.gz = g.pool.get(g.ResponseWriter)
	if _, err := g.gz.Write(buffered); err != nil {
		logging.Debug("gzip write failed: %v", err)
	}
}

// Close flushes anything buffered and returns the gzip writer to its pool.
func (g *gzipResponseWriter) Close() error {
	g.decide()
	if g.gz == nil {
		return nil
	}
	err := g.gz.Close()
	g.pool.put(g.gz)
	g.gz = nil
	return err
}

// Flush implements http.Flusher
func (g *gzipResponseWriter) Flush() {
	g.decide()
	if g.gz != nil {
		if err := g.gz.Flush(); err != nil {
			logging.Debug("gzip flush failed: %v", err)
		}
	}
	if flusher, ok := g.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Compression returns a middleware that gzips compressible responses for
// clients that accept it. Websocket upgrades pass through untouched.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	pool := newGzipPool(config.Level)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") != "" || !acceptsGzip(r.Header.Get("Accept-Encoding")) {
				next.ServeHTTP(w, r)
				return
			}
			for _, p := range config.SkipPaths {
				if r.URL.Path == p {
					next.ServeHTTP(w, r)
					return
				}
			}

			gzw := newGzipResponseWriter(w, config, pool, r.Method == http.MethodHead)
			defer func() {
				if err := gzw.Close(); err != nil {
					logging.Debug("gzip close failed: %v", err)
				}
			}()

			next.ServeHTTP(gzw, r)
		})
	}
}
