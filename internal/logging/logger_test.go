package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, cats map[string]bool) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	Attach(zap.New(core), cats)
	t.Cleanup(func() { Attach(nil, nil) })
	return logs
}

func TestGet_NoopBeforeInitialize(t *testing.T) {
	Attach(nil, nil)
	l := Get(CategoryEngine)
	assert.NotPanics(t, func() {
		l.Info("hello %s", "world")
		l.With("k", "v").Error("boom")
	})
	assert.False(t, IsCategoryEnabled(CategoryEngine))
}

func TestGet_WritesNamedEntries(t *testing.T) {
	logs := observe(t, nil)

	Engine("accepted %q", "paper")
	StoreDebug("saved %s", "s1")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "engine", entries[0].LoggerName)
	assert.Equal(t, `accepted "paper"`, entries[0].Message)
	assert.Equal(t, "store", entries[1].LoggerName)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
}

func TestGet_CategoryFilter(t *testing.T) {
	logs := observe(t, map[string]bool{"cache": false})

	Cache("hidden")
	Oracle("shown")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "oracle", logs.All()[0].LoggerName)
}

func TestWith_AttachesFields(t *testing.T) {
	logs := observe(t, nil)

	Get(CategoryHTTP).With("session", "abc").Info("guess")

	entry := logs.All()[0]
	assert.Equal(t, "abc", entry.ContextMap()["session"])
}

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { _ = SetLevel("info") })

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, "debug", Level())
	require.NoError(t, SetLevel("WARNING"))
	assert.Equal(t, "warn", Level())
	assert.Error(t, SetLevel("loud"))
}

func TestInitialize_RejectsUnknownFormat(t *testing.T) {
	err := Initialize(Options{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
