package httpapi

import (
	"net/http"
	"strings"
	"time"

	"pkt.systems/pslog"
)

// statusWriter records the status and size of a response. It forwards
// Flush so the SSE relay keeps streaming through it.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		logger := pslog.Ctx(r.Context()).With("remote", clientIP(r))
		stream := strings.HasSuffix(r.URL.Path, "/getnext")
		if stream {
			logger.Info("http stream open", "last_id", r.Header.Get("Last-Event-ID"), "ua", r.UserAgent())
		}
		next.ServeHTTP(sw, r)
		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start).Milliseconds()
		switch {
		case stream:
			logger.Info("http stream closed", "status", status, "bytes", sw.bytes, "duration_ms", elapsed)
		case strings.Contains(r.URL.Path, "/assets/"):
			logger.Debug("http asset", "path", r.URL.Path, "status", status, "bytes", sw.bytes)
		default:
			path := r.URL.Path
			if r.URL.RawQuery != "" {
				path += "?" + r.URL.RawQuery
			}
			logger.Info("http request", "method", r.Method, "path", path, "status", status, "bytes", sw.bytes, "duration_ms", elapsed)
		}
	})
}

// clientIP prefers the first X-Forwarded-For hop, for mirrors behind a
// reverse proxy on a base path.
func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return r.RemoteAddr
}
