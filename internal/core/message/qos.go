package message

import (
	"time"

	"github.com/zeusync/joynr/internal/core/types"
)

// DefaultTTL is used when a MessagingQos leaves TTL unset.
const DefaultTTL = 60 * time.Second

// MessagingQos controls how a single outbound envelope is sent.
type MessagingQos struct {
	TTL           time.Duration
	Effort        Effort
	Compress      bool
	CustomHeaders map[string]string
}

// EffectiveTTL returns TTL, or DefaultTTL when TTL is not positive.
func (q MessagingQos) EffectiveTTL() time.Duration {
	if q.TTL <= 0 {
		return DefaultTTL
	}
	return q.TTL
}

// DiscoveryEntry is the part of an arbitrated provider entry the dispatcher needs
// to address a request.
type DiscoveryEntry struct {
	ParticipantID   string
	IsLocal         bool
	ProviderVersion *types.Version
}
