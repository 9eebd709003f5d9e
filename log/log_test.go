package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestStructuredFields(t *testing.T) {
	c := qt.New(t)
	var buf bytes.Buffer
	c.Assert(InitWriter(LogLevelDebug, &buf), qt.IsNil)
	defer Init(LogLevelError, "stderr", nil)

	Infow("nonce advanced", "wallet", "0xabc", "nonce", 2)

	var line map[string]any
	c.Assert(json.Unmarshal(buf.Bytes(), &line), qt.IsNil)
	c.Assert(line["message"], qt.Equals, "nonce advanced")
	c.Assert(line["wallet"], qt.Equals, "0xabc")
	c.Assert(line["nonce"], qt.Equals, float64(2))
	c.Assert(line["level"], qt.Equals, "info")
	c.Assert(Level(), qt.Equals, LogLevelDebug)
}

func TestLevelFiltering(t *testing.T) {
	c := qt.New(t)
	var buf bytes.Buffer
	c.Assert(InitWriter(LogLevelWarn, &buf), qt.IsNil)
	defer Init(LogLevelError, "stderr", nil)

	Debugw("hidden")
	Infow("hidden")
	c.Assert(buf.Len(), qt.Equals, 0)

	Errorw(errors.New("boom"), "visible")
	c.Assert(buf.String(), qt.Contains, `"error":"boom"`)
}

func TestInvalidLevel(t *testing.T) {
	c := qt.New(t)
	c.Assert(InitWriter("verbose", &bytes.Buffer{}), qt.ErrorMatches, `invalid log level: "verbose"`)
	c.Assert(func() { Init("verbose", "stderr", nil) }, qt.PanicMatches, `invalid log level: "verbose"`)
}
