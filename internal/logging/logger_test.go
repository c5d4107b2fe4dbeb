package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONEntryCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LevelDebug, FormatJSON)
	l.SetOutput(&buf)

	l.WithComponent("membership").WithField("username", "bob").Info("member joined")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry.Level)
	assert.Equal(t, "member joined", entry.Message)
	assert.Equal(t, "membership", entry.Fields["component"])
	assert.Equal(t, "bob", entry.Fields["username"])
	assert.Empty(t, entry.Caller)
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LevelWarn, FormatText)
	l.SetOutput(&buf)

	l.Info("dropped")
	l.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "kept")
}

func TestLogger_ChildSharesSink(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(LevelInfo, FormatText)
	child := parent.WithField("k", "v")

	parent.SetOutput(&buf)
	child.Info("from child")

	assert.Contains(t, buf.String(), "k=v")
	assert.Empty(t, parent.fields, "deriving must not mutate the parent")
}

func TestLogger_ErrorAddsCaller(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LevelInfo, FormatJSON)
	l.SetOutput(&buf)

	l.ErrorWithErr("write failed", errors.New("boom"))

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry.Fields["error"])
	assert.True(t, strings.Contains(entry.Caller, "logger_test.go"), entry.Caller)
}

func TestFromContext(t *testing.T) {
	l := Discard().WithField("run", "abc")
	ctx := WithLogger(context.Background(), l)

	assert.Same(t, l, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"WARNING": LevelWarn,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
	assert.Equal(t, FormatText, ParseLogFormat("text"))
	assert.Equal(t, FormatJSON, ParseLogFormat("xml"))
}
