package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/joynr/internal/core/address"
	"github.com/zeusync/joynr/internal/core/observability/log"
	"github.com/zeusync/joynr/internal/core/routing"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.InstanceID)
	assert.Equal(t, time.Duration(0), cfg.TTLUplift())
	assert.Equal(t, time.Minute, cfg.DefaultTTL())
	assert.Equal(t, time.Second, cfg.ReplyCleanupInterval())
	assert.Equal(t, routing.DefaultPatternCacheSize, cfg.Routing.MulticastPatternCacheSize)
	assert.Nil(t, cfg.ParentAddress())
}

func TestDecode_OverridesDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(`
instanceId: runtime-1
log:
  level: debug
messaging:
  ttlUpliftMs: 10000
  maxQueueSizeKBytes: 64
  queueCleanupIntervalMs: 500
routing:
  requireReplyTo: true
  parent:
    protocol: wss
    host: cc.local
    port: 4242
    path: /joynr
persistence:
  path: /var/lib/joynr/routing.db
`))
	require.NoError(t, err)

	assert.Equal(t, "runtime-1", cfg.InstanceID)
	assert.Equal(t, log.LevelDebug, cfg.LogLevel())
	assert.Equal(t, 10*time.Second, cfg.TTLUplift())
	assert.Equal(t, time.Minute, cfg.DefaultTTL())
	assert.Equal(t, int64(64), cfg.Queue().MaxQueueSizeKBytes)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue().CleanupInterval)
	assert.Equal(t, "routing", cfg.Persistence.Bucket)

	router := cfg.Router()
	assert.True(t, router.RequireReplyTo)
	assert.Equal(t, "runtime-1", router.InstanceID)
	assert.Equal(t, &address.WebSocketAddress{
		Protocol: address.WebSocketProtocolWSS, Host: "cc.local", Port: 4242, Path: "/joynr",
	}, router.ParentAddress)
	assert.Equal(t, &address.WebSocketClientAddress{ID: "runtime-1"}, router.IncomingAddress)
}

func TestDecode_EmptyDocument(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestDecode_Rejects(t *testing.T) {
	tests := map[string]struct {
		yaml string
		err  error
	}{
		"negative uplift":     {yaml: "messaging:\n  ttlUpliftMs: -1\n", err: ErrNegativeValue},
		"unknown level":       {yaml: "log:\n  level: loud\n", err: ErrInvalidLogLevel},
		"parent without host": {yaml: "routing:\n  parent:\n    port: 1\n", err: ErrIncompleteParent},
		"bad protocol":        {yaml: "routing:\n  parent:\n    protocol: http\n    host: h\n    port: 1\n", err: ErrInvalidWSProtocol},
		"blank bucket":        {yaml: "persistence:\n  path: x.db\n  bucket: ' '\n", err: ErrPersistenceNoBucket},
		"relative path":       {yaml: "server:\n  path: joynr\n", err: ErrInvalidServerPath},
		"metrics path":        {yaml: "server:\n  path: /metrics\n", err: ErrInvalidServerPath},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.yaml))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := Decode(strings.NewReader("messaging:\n  unknownKey: 1\n"))
	assert.Error(t, err)

	cfg, err := Decode(strings.NewReader("server:\n  listenAddr: ''\n  path: anything\n"))
	require.NoError(t, err, "path is not checked while the server is disabled")
	assert.Empty(t, cfg.Server.ListenAddr)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "joynr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instanceId: from-file\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.InstanceID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
