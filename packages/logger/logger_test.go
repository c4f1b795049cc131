package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNew_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	lggr := New(&buf, zapcore.WarnLevel).Named("runner")

	lggr.Infow("hidden")
	lggr.Warnw("shown", "key", "value")
	_ = lggr.Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "runner")
	assert.Contains(t, out, "value")
}

func TestTestObserved(t *testing.T) {
	lggr, logs := TestObserved(t, zapcore.DebugLevel)
	lggr.With("assembly", "a1").Debugw("state change", "to", "Executing")

	entries := logs.FilterMessage("state change").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "a1", entries[0].ContextMap()["assembly"])
		assert.Equal(t, "Executing", entries[0].ContextMap()["to"])
	}
}

func TestNop(t *testing.T) {
	lggr := Nop()
	lggr.Errorw("ignored")
	assert.Equal(t, "", lggr.Name())
}
