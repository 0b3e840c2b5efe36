package ulogger_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/bsv-blockchain/richlist/ulogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerJSON(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.New("richlist", ulogger.WithWriter(&buf), ulogger.WithPretty(false), ulogger.WithLevel("INFO"))

	logger.Debugf("hidden %d", 1)
	logger.Infof("[RichList] applied block %d", 42)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))

	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "richlist", entry["service"])
	assert.Equal(t, "[RichList] applied block 42", entry["message"])
}

func TestZeroLoggerPretty(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.New("store", ulogger.WithWriter(&buf), ulogger.WithPretty(true))
	logger.Warnf("careful %s", "now")

	assert.Contains(t, buf.String(), "careful now")
	assert.Contains(t, buf.String(), "store")
	assert.Contains(t, buf.String(), "WARN")
}

func TestZeroLoggerLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := ulogger.New("levels", ulogger.WithWriter(&buf), ulogger.WithPretty(false), ulogger.WithLevel("ERROR"))
	logger.Infof("nope")
	logger.Warnf("nope")
	assert.Empty(t, buf.String())

	logger.SetLogLevel("DEBUG")
	logger.Debugf("yes")
	assert.Contains(t, buf.String(), "yes")
}

func TestZeroLoggerNewInheritsWriter(t *testing.T) {
	var buf bytes.Buffer

	parent := ulogger.New("parent", ulogger.WithWriter(&buf), ulogger.WithPretty(false), ulogger.WithLevel("WARN"))
	child := parent.New("child")

	child.Infof("filtered")
	child.Warnf("kept")

	out := buf.String()
	assert.NotContains(t, out, "filtered")
	assert.Contains(t, out, `"service":"child"`)
	assert.Equal(t, parent.LogLevel(), child.LogLevel())
}

func TestZeroLoggerDuplicate(t *testing.T) {
	var first, second bytes.Buffer

	logger := ulogger.New("dup", ulogger.WithWriter(&first), ulogger.WithPretty(false))
	dup := logger.Duplicate(ulogger.WithWriter(&second), ulogger.WithLevel("DEBUG"))

	dup.Debugf("to second")
	logger.Debugf("dropped")

	assert.Empty(t, first.String())
	assert.Contains(t, second.String(), "to second")
}

func TestGoCoreLogger(t *testing.T) {
	logger := ulogger.New("gocore", ulogger.WithLoggerType("gocore"), ulogger.WithLevel("DEBUG"))
	require.NotNil(t, logger)

	_, ok := logger.(*ulogger.GoCoreLogger)
	assert.True(t, ok)
	assert.NotNil(t, logger.New("other"))
	assert.NotNil(t, logger.Duplicate(ulogger.WithSkipFrame(2)))
}

type recordingT struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {}
func (r *recordingT) FailNow()                                  {}
func (r *recordingT) Logf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, format)
}

func TestErrorTestLogger(t *testing.T) {
	rt := &recordingT{}
	logger := ulogger.NewErrorTestLogger(rt)

	logger.Infof("ignored")
	logger.Errorf("broken %d", 1)
	assert.Equal(t, int64(1), logger.ErrorCount())
	require.Len(t, rt.lines, 1)
	assert.Contains(t, rt.lines[0], "ERR_LEVEL broken %d")

	logger.Shutdown()
	logger.Fatalf("after shutdown")
	assert.Equal(t, int64(2), logger.ErrorCount())
	assert.Len(t, rt.lines, 1)
}

func TestVerboseAndNoopLoggers(t *testing.T) {
	var l ulogger.Logger = ulogger.NewVerboseTestLogger(t)
	l.Infof("visible with -v %s", "only")
	assert.Same(t, l, l.New("x"))

	var n ulogger.Logger = ulogger.TestLogger{}
	n.Errorf("discarded")
	assert.Equal(t, 0, n.LogLevel())
}
