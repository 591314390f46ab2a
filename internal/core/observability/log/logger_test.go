package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_NamedWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core), LevelDebug)

	l.Named("router").With(ParticipantID("p1")).Warn("dropping message", MessageType("reply"), Error(errors.New("boom")))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "router", entry.LoggerName)
	assert.Equal(t, "dropping message", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "p1", fields["participantId"])
	assert.Equal(t, "reply", fields["type"])
	assert.Equal(t, "boom", fields["error"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core), LevelWarn)

	l.Log(LevelInfo, "hidden")
	l.Log(LevelError, "shown")
	assert.Equal(t, 1, logs.Len())

	l.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, l.GetLevel())
	l.Log(LevelDebug, "now shown")
	assert.Equal(t, 2, logs.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel("chatty"))
}

func TestNop(t *testing.T) {
	l := NewNop()
	l.Error("ignored", String("k", "v"))
	assert.NotNil(t, l.Named("x"))
}
