package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Logging emits one line per API call. Polling endpoints (health and the
// session snapshot) drop to debug so a dashboard refreshing every second
// does not flood the log.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	quiet := map[string]bool{"/api/health": true, "/api/sniper/status": true}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			switch {
			case rec.status() >= http.StatusInternalServerError:
				level = slog.LevelWarn
			case r.Method == http.MethodGet && (quiet[r.URL.Path] || strings.HasPrefix(r.URL.Path, "/api/prices/")):
				level = slog.LevelDebug
			}
			logger.LogAttrs(r.Context(), level, "api call",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status()),
				slog.Int("bytes", rec.written),
				slog.Duration("took", time.Since(began)),
				slog.String("client", clientIP(r)),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code    int
	written int
}

func (s *statusRecorder) status() int {
	if s.code == 0 {
		return http.StatusOK
	}
	return s.code
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.code == 0 {
		s.code = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.code == 0 {
		s.code = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.written += n
	return n, err
}

// Hijack is needed by the /ws upgrade.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("middleware: hijack unsupported")
	}
	if s.code == 0 {
		s.code = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}
