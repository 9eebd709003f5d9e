package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/vocdoni/maci-voter/log"
)

// LogExcludedPrefixes are the paths polled often enough to flood the debug
// log.
var LogExcludedPrefixes = []string{PingEndpoint, "/queries/"}

// skipLogging reports whether path is excluded or debug logging is off.
func skipLogging(path string, excluded []string) bool {
	if log.Level() != log.LogLevelDebug {
		return true
	}
	for _, prefix := range excluded {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// compactBody returns the request body as compact JSON truncated to max
// bytes, or an empty string when it is not JSON.
func compactBody(body []byte, max int) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return ""
	}
	if buf.Len() > max {
		return string(buf.Bytes()[:max]) + "..."
	}
	return buf.String()
}

// requestLogger logs every request and the status it got at debug level.
// JSON request bodies are logged up to maxBody bytes.
func requestLogger(maxBody int, excluded ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipLogging(r.URL.Path, excluded) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()

			var body string
			if r.Body != nil && r.ContentLength > 0 {
				raw, err := io.ReadAll(r.Body)
				if err != nil {
					log.Warnw("unable to read request body", "error", err.Error())
					ErrMalformedBody.WithErr(err).Write(w)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(raw))
				body = compactBody(raw, maxBody)
			}
			log.Debugw("api request", "method", r.Method, "url", r.URL.String(), "body", body)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Debugw("api response",
				"method", r.Method,
				"url", r.URL.String(),
				"status", status,
				"bytes", ww.BytesWritten(),
				"took", time.Since(start).String(),
			)
		})
	}
}
