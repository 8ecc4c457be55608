package call

import "time"

// PendingCallSetup is a media setup deferred until the platform confirms
// the audio session is active.
type PendingCallSetup struct {
	CallID      string
	PeerID      string
	MediaKind   MediaKind
	Direction   Direction
	RemoteOffer string
	CreatedAt   time.Time
}

// IsExpired reports whether the setup is older than ttl.
func (p PendingCallSetup) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.CreatedAt) > ttl
}
