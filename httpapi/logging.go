package httpapi

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"
)

// statusWriter records what a handler wrote so the access log can report it.
// It forwards Flush for the SSE stream and Hijack for the bridge upgrade.
type statusWriter struct {
	http.ResponseWriter
	status   int
	written  int64
	upgraded bool
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack unsupported")
	}
	w.status = http.StatusSwitchingProtocols
	w.upgraded = true
	return h.Hijack()
}

// withRequestLogging tags every request with an id and remote address and
// emits one access line when the handler returns. Health probes log at debug.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		log := pslog.Ctx(r.Context()).With("request_id", requestID, "remote", clientIP(r))
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(pslog.ContextWithLogger(r.Context(), log)))

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		fields := []any{"method", r.Method, "path", r.URL.Path, "status", status, "bytes", sw.written, "duration_ms", time.Since(start).Milliseconds()}
		switch {
		case sw.upgraded:
			log.Info("http upgrade closed", fields...)
		case strings.HasSuffix(r.URL.Path, "/healthz"):
			log.Debug("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
