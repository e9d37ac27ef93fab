package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		out = append(out, m)
	}
	return out
}

func TestInfoWritesFields(t *testing.T) {
	buf := capture(t, LevelInfo)

	Info("record set loaded", "set", "this_week", "count", 3)

	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "info", got[0]["level"])
	assert.Equal(t, "record set loaded", got[0]["message"])
	assert.Equal(t, "this_week", got[0]["set"])
	assert.EqualValues(t, 3, got[0]["count"])
	assert.Contains(t, got[0], "time")
}

func TestErrorAttachesErr(t *testing.T) {
	buf := capture(t, LevelInfo)

	Error("fetch failed", errors.New("boom"), "query", "Consult_Request__c/CR_Phone")

	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.Equal(t, "error", got[0]["level"])
	assert.Equal(t, "boom", got[0]["error"])
	assert.Equal(t, "Consult_Request__c/CR_Phone", got[0]["query"])
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelInfo)
	Debug("hidden")
	assert.Empty(t, buf.String())

	SetLevel(LevelDebug)
	Debug("shown")
	require.Len(t, lines(t, buf), 1)

	buf.Reset()
	SetLevel(LevelError)
	Info("hidden")
	assert.Empty(t, buf.String())
}

func TestWithKVsSkipsMalformedPairs(t *testing.T) {
	buf := capture(t, LevelInfo)

	Info("odd", "ok", 1, 42, "dropped", "trailing")

	got := lines(t, buf)
	require.Len(t, got, 1)
	assert.EqualValues(t, 1, got[0]["ok"])
	assert.NotContains(t, got[0], "dropped")
	assert.NotContains(t, got[0], "trailing")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel(" debug ").String())
	assert.Equal(t, "error", parseLevel("ERROR").String())
	assert.Equal(t, "info", parseLevel("verbose").String())
}
