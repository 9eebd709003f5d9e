package api

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/maci-voter/log"
)

// debugLogs switches the global logger to debug level into buf for the
// duration of the test.
func debugLogs(t *testing.T) *bytes.Buffer {
	buf := &bytes.Buffer{}
	qt.Assert(t, log.InitWriter(log.LogLevelDebug, buf), qt.IsNil)
	t.Cleanup(func() { _ = log.InitWriter(log.LogLevelError, io.Discard) })
	return buf
}

func TestRequestLogger(t *testing.T) {
	logs := debugLogs(t)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(body)
	})
	wrapped := requestLogger(100, LogExcludedPrefixes...)(handler)

	for _, tt := range []struct {
		name   string
		body   string
		logged string
	}{
		{"JSON object", `{"kind": "vote", "weight": 4}`, `{"kind":"vote","weight":4}`},
		{"JSON array", `[1, 2, 3]`, `[1,2,3]`},
		{"Binary data", "\x00\x01\x02\x03\x04", ""},
		{"Plain text", "Hello, World!", ""},
		{"Empty body", "", ""},
	} {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			logs.Reset()
			req := httptest.NewRequest(http.MethodPost, WorkflowsEndpoint, bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)

			// the handler still sees the whole body
			c.Assert(rec.Code, qt.Equals, http.StatusAccepted)
			c.Assert(rec.Body.String(), qt.Equals, tt.body)
			c.Assert(logs.String(), qt.Contains, "api request")
			c.Assert(logs.String(), qt.Contains, `"status":202`)
			if tt.logged != "" {
				c.Assert(logs.String(), qt.Contains, strings.ReplaceAll(tt.logged, `"`, `\"`))
			}
		})
	}
}

func TestRequestLoggerExclusions(t *testing.T) {
	c := qt.New(t)
	debugLogs(t)
	for _, tt := range []struct {
		path string
		skip bool
	}{
		{PingEndpoint, true},
		{EndpointWithParam(QueryEndpoint, QueryURLParam, "balance"), true},
		{WorkflowsEndpoint, false},
		{"/pingpong", true}, // prefix match
	} {
		c.Assert(skipLogging(tt.path, LogExcludedPrefixes), qt.Equals, tt.skip, qt.Commentf("path %s", tt.path))
	}

	qt.Assert(t, log.InitWriter(log.LogLevelInfo, io.Discard), qt.IsNil)
	c.Assert(skipLogging(WorkflowsEndpoint, LogExcludedPrefixes), qt.IsTrue)
}

func TestCompactBody(t *testing.T) {
	c := qt.New(t)
	c.Assert(compactBody([]byte(`{ "a" : 1 }`), 100), qt.Equals, `{"a":1}`)
	c.Assert(compactBody([]byte(`{"wallet":"0x0000000000000000000000000000000000000001"}`), 10), qt.Equals, `{"wallet":...`)
	c.Assert(compactBody([]byte("not json"), 100), qt.Equals, "")
}
