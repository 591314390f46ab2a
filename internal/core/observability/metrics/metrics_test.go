package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.MessagesRouted.WithLabelValues("request").Inc()
	m.MessagesDropped.WithLabelValues(ReasonExpired).Add(2)
	m.QueueSizeBytes.Set(128)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesRouted.WithLabelValues("request")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.MessagesDropped.WithLabelValues(ReasonExpired)))
	assert.Equal(t, float64(128), testutil.ToFloat64(m.QueueSizeBytes))
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestNewNop_Unregistered(t *testing.T) {
	a := NewNop()
	b := NewNop()
	a.PendingReplies.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.PendingReplies))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.PendingReplies))
}
