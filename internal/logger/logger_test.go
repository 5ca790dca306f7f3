package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetDefaultsToNop(t *testing.T) {
	Set(nil)
	l := Get()
	require.NotNil(t, l)
	assert.False(t, l.Core().Enabled(zap.ErrorLevel))
}

func TestNamedCarriesComponent(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	Set(zap.New(core))
	defer Set(nil)

	Named("vm").Info("booted")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "booted", entries[0].Message)
	assert.Equal(t, "vm", entries[0].ContextMap()["component"])
}

func TestNamedFollowsLaterSet(t *testing.T) {
	Set(nil)
	defer Set(nil)
	l := Named("factory").With(zap.String("function", "add"))
	l.Info("dropped")

	core, logs := observer.New(zap.DebugLevel)
	Set(zap.New(core))
	l.Info("registered")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "registered", entries[0].Message)
	assert.Equal(t, "factory", entries[0].ContextMap()["component"])
	assert.Equal(t, "add", entries[0].ContextMap()["function"])
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	l, err := New(Config{Level: "debug", Encoding: "console"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))
}
