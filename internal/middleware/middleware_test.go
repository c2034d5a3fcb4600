package middleware

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	dto "github.com/prometheus/client_model/go"

	"map-manager/internal/database"
	"map-manager/internal/metrics"
)

func TestResponseWriterWriteHeader(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	if rw.statusCode != http.StatusOK {
		t.Errorf("Expected default status code 200, got %d", rw.statusCode)
	}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("Expected first status code to stick, got %d", rw.statusCode)
	}
}

func TestResponseWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	data := []byte("test data")
	n, err := rw.Write(data)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n != len(data) || rw.bytesWritten != int64(len(data)) {
		t.Errorf("Expected %d bytes written, got n=%d bytesWritten=%d", len(data), n, rw.bytesWritten)
	}
	if !rw.wroteHeader {
		t.Error("Expected wroteHeader to be true after Write")
	}
}

func TestResponseWriterHijackUnsupported(t *testing.T) {
	rw := newResponseWriter(httptest.NewRecorder())
	if _, _, err := rw.Hijack(); err == nil {
		t.Error("Expected error hijacking a recorder")
	}

	mrw := newMetricsResponseWriter(httptest.NewRecorder())
	if _, _, err := mrw.Hijack(); err == nil {
		t.Error("Expected error hijacking a recorder")
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"line1\nline2", "line1 line2"},
		{"a\r\nb", "a  b"},
		{"nul\x00byte", "nulbyte"},
		{"\x1b[31mred", "[31mred"},
		{"tab\tkept", "tab\tkept"},
		{"bell\x07", "bell"},
	}

	for _, tt := range tests {
		if got := sanitizeLogField(tt.in); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		config LoggingConfig
		want   bool
	}{
		{"api request", "/api/local-indexes", DefaultLoggingConfig(), false},
		{"static file", "/app.JS", DefaultLoggingConfig(), true},
		{"static file logged", "/app.js", LoggingConfig{LogStaticFiles: true, SkipExtensions: []string{".js"}}, false},
		{"health logged", "/healthz", LoggingConfig{LogHealthChecks: true}, false},
		{"health skipped", "/healthz", LoggingConfig{LogHealthChecks: false}, true},
		{"explicit prefix", "/metrics", LoggingConfig{SkipPaths: []string{"/metrics"}, LogHealthChecks: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldSkip(tt.path, tt.config); got != tt.want {
				t.Errorf("shouldSkip(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.2.3.4:5", "10.0.0.1"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 10.0.0.3 "}, "1.2.3.4:5", "10.0.0.3"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.4"}, "1.2.3.4:5", "10.0.0.4"},
		{"remote addr", nil, "192.168.1.9:4567", "192.168.1.9"},
		{"remote ipv6", nil, "[::1]:8080", "::1"},
		{"remote without port", nil, "unix", "unix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeW3CField(t *testing.T) {
	if got := escapeW3CField("curl/8.0"); got != "curl/8.0" {
		t.Errorf("Expected unquoted value, got %q", got)
	}
	if got := escapeW3CField(`Mozilla/5.0 "x"`); got != `"Mozilla/5.0 ""x"""` {
		t.Errorf("Unexpected escaped value %q", got)
	}
}

func TestW3CLoggerWritesHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	l := NewW3CLogger(DefaultLoggingConfig(), ServiceName)
	l.out = log.New(&buf, "", 0)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/purchases?x=1", http.NoBody)
		req.Header.Set("User-Agent", "test agent")
		rw := newResponseWriter(httptest.NewRecorder())
		rw.WriteHeader(http.StatusAccepted)
		l.logRequest(req, rw, 0)
	}

	out := buf.String()
	if n := strings.Count(out, "#Fields: "); n != 1 {
		t.Errorf("Expected one #Fields directive, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, "#Software: "+ServiceName) {
		t.Error("Expected #Software directive")
	}
	if n := strings.Count(out, "GET /api/purchases x=1 202"); n != 2 {
		t.Errorf("Expected two request lines, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, `"test agent" - -`) {
		t.Errorf("Expected quoted agent, empty referer and no auth:\n%s", out)
	}
}

func TestAuthKind(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/purchases", http.NoBody)
	if got := authKind(req); got != "-" {
		t.Errorf("authKind() = %q, want -", got)
	}

	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "abc"})
	if got := authKind(req); got != "cookie" {
		t.Errorf("authKind() = %q, want cookie", got)
	}

	req.Header.Set("Authorization", "Bearer abc")
	if got := authKind(req); got != "bearer" {
		t.Errorf("authKind() = %q, want bearer", got)
	}

	var buf bytes.Buffer
	l := NewW3CLogger(DefaultLoggingConfig(), ServiceName)
	l.out = log.New(&buf, "", 0)
	l.logRequest(req, newResponseWriter(httptest.NewRecorder()), 0)
	if out := buf.String(); !strings.HasSuffix(strings.TrimSpace(out), " bearer") {
		t.Errorf("Expected bearer in the x-auth field:\n%s", out)
	}
}

func TestLoggerMiddlewarePassesThrough(t *testing.T) {
	handler := Logger(LoggingConfig{LogHealthChecks: false})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", w.Code)
	}
}

func TestCompressionMiddleware(t *testing.T) {
	tests := []struct {
		name              string
		responseBody      string
		contentType       string
		acceptEncoding    string
		upgrade           string
		expectCompression bool
	}{
		{
			name:              "Compresses large JSON",
			responseBody:      strings.Repeat(`{"key":"value"}`, 200),
			contentType:       "application/json",
			acceptEncoding:    "gzip",
			expectCompression: true,
		},
		{
			name:              "Skips small responses",
			responseBody:      "{}",
			contentType:       "application/json",
			acceptEncoding:    "gzip",
			expectCompression: false,
		},
		{
			name:              "Skips PNG previews",
			responseBody:      strings.Repeat("data", 500),
			contentType:       "image/png",
			acceptEncoding:    "gzip",
			expectCompression: false,
		},
		{
			name:              "Respects client without gzip support",
			responseBody:      strings.Repeat("data", 500),
			contentType:       "text/plain",
			expectCompression: false,
		},
		{
			name:              "Skips websocket upgrades",
			responseBody:      strings.Repeat("data", 500),
			contentType:       "text/plain",
			acceptEncoding:    "gzip",
			upgrade:           "websocket",
			expectCompression: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(tt.responseBody))
			}))

			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			if tt.upgrade != "" {
				req.Header.Set("Upgrade", tt.upgrade)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			isCompressed := w.Header().Get("Content-Encoding") == "gzip"
			if isCompressed != tt.expectCompression {
				t.Fatalf("Expected compression=%v, got %v", tt.expectCompression, isCompressed)
			}

			body := w.Body.Bytes()
			if isCompressed {
				gr, err := gzip.NewReader(w.Body)
				if err != nil {
					t.Fatalf("Failed to create gzip reader: %v", err)
				}
				defer gr.Close()
				if body, err = io.ReadAll(gr); err != nil {
					t.Fatalf("Failed to decompress: %v", err)
				}
			}
			if string(body) != tt.responseBody {
				t.Error("Body doesn't match original")
			}
		})
	}
}

func TestCompressionWithMultipleWrites(t *testing.T) {
	handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		for i := 0; i < 50; i++ {
			_, _ = w.Write([]byte(strings.Repeat("tile ", 10)))
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Error("Expected response to be compressed")
	}
}

func TestAcceptsGzip(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"gzip", true},
		{"deflate, gzip", true},
		{"GZIP", true},
		{"gzip;q=0.5", true},
		{"gzip;q=0", false},
		{"br", false},
		{"", false},
		{"*", true},
		{"*;q=0", false},
		{"br, gzip;q=0, *", false},
	}
	for _, tt := range tests {
		if got := acceptsGzip(tt.header); got != tt.want {
			t.Errorf("acceptsGzip(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestCompressionSkips(t *testing.T) {
	body := strings.Repeat(`{"fileName":"Germany_berlin_europe.obf"}`, 100)

	tests := []struct {
		name   string
		method string
		path   string
		status int
		encode string
	}{
		{"skip path", http.MethodGet, "/api/purchases/events", http.StatusOK, ""},
		{"head request", http.MethodHead, "/api/local-indexes", http.StatusOK, ""},
		{"not modified", http.MethodGet, "/api/local-indexes", http.StatusNotModified, ""},
		{"already encoded", http.MethodGet, "/api/local-indexes", http.StatusOK, "br"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				if tt.encode != "" {
					w.Header().Set("Content-Encoding", tt.encode)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(body))
			}))

			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			req.Header.Set("Accept-Encoding", "gzip")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if got := w.Header().Get("Content-Encoding"); got != tt.encode {
				t.Errorf("Content-Encoding = %q, want %q", got, tt.encode)
			}
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestCompressionLevel(t *testing.T) {
	cfg := DefaultCompressionConfig()
	cfg.Level = gzip.BestSpeed
	handler := Compression(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("srtm ", 1000)))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	gr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	out, err := io.ReadAll(gr)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 5000 {
		t.Errorf("decompressed %d bytes, want 5000", len(out))
	}

	if p := newGzipPool(42); p.level != gzip.DefaultCompression {
		t.Errorf("invalid level should fall back to default, got %d", p.level)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/api/purchases", "/api/purchases"},
		{"/api/tiles/x/preview", "/api/tiles/x/{path}"},
		{"/", "/"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func counterValue(t *testing.T, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.HTTPRequestsTotal.WithLabelValues(labels...).Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(Metrics(DefaultMetricsConfig()))
	router.HandleFunc("/api/tiles/{name}/preview", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := counterValue(t, http.MethodGet, "/api/tiles/{name}/preview", "404")

	for _, name := range []string{"a.sqlitedb", "b.sqlitedb"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tiles/"+name+"/preview", http.NoBody))
	}

	if got := counterValue(t, http.MethodGet, "/api/tiles/{name}/preview", "404") - before; got != 2 {
		t.Errorf("Expected 2 requests under the template label, got %v", got)
	}
}

func TestMetricsSkipPaths(t *testing.T) {
	called := false
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	before := counterValue(t, http.MethodGet, "/healthz", "200")
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	if !called {
		t.Error("Expected handler to be called")
	}
	if got := counterValue(t, http.MethodGet, "/healthz", "200"); got != before {
		t.Error("Expected skipped path not to be counted")
	}
}

type fakeSessions struct {
	hasUsers bool
	valid    string
}

func (f *fakeSessions) HasUsers(context.Context) bool { return f.hasUsers }

func (f *fakeSessions) ValidateSession(_ context.Context, token string) (*database.Session, error) {
	if token != f.valid {
		return nil, errors.New("invalid session")
	}
	return &database.Session{UserID: 1}, nil
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name     string
		hasUsers bool
		path     string
		cookie   string
		bearer   string
		want     int
	}{
		{"no password configured", false, "/api/purchases", "", "", http.StatusOK},
		{"missing token", true, "/api/purchases", "", "", http.StatusUnauthorized},
		{"invalid cookie", true, "/api/purchases", "nope", "", http.StatusUnauthorized},
		{"valid cookie", true, "/api/purchases", "good", "", http.StatusOK},
		{"valid bearer", true, "/api/local-indexes", "", "good", http.StatusOK},
		{"auth route", true, "/api/auth/login", "", "", http.StatusOK},
		{"health", true, "/healthz", "", "", http.StatusOK},
		{"non api", true, "/", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeSessions{hasUsers: tt.hasUsers, valid: "good"}
			handler := RequireAuth(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			if tt.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.bearer)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestSessionTokenPrefersBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/purchases", http.NoBody)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie"})
	req.Header.Set("Authorization", "Bearer header")

	if got := SessionToken(req); got != "header" {
		t.Errorf("Expected bearer token, got %q", got)
	}
}

func BenchmarkLoggingMiddleware(b *testing.B) {
	handler := Logger(LoggingConfig{SkipPaths: []string{"/"}})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/purchases", http.NoBody)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
}
