package call

import (
	"errors"
	"time"
)

// Config holds the orchestrator's timing policy and fallback servers.
type Config struct {
	// CaptureTimeout bounds local media capture (getUserMedia equivalent)
	CaptureTimeout time.Duration `mapstructure:"capture_timeout"`

	// CredentialFetchTimeout bounds the TURN credential request
	CredentialFetchTimeout time.Duration `mapstructure:"credential_fetch_timeout"`

	// CleanupTimeout bounds the teardown run by EndCall
	CleanupTimeout time.Duration `mapstructure:"cleanup_timeout"`

	// SettleDelay is the cooldown after a cleanup before a new call may set up media
	SettleDelay time.Duration `mapstructure:"settle_delay"`

	// RingingStaleAfter marks calling/ringing sessions stale
	RingingStaleAfter time.Duration `mapstructure:"ringing_stale_after"`

	// ConnectingStaleAfter marks connecting sessions stale
	ConnectingStaleAfter time.Duration `mapstructure:"connecting_stale_after"`

	// PendingSetupTTL discards deferred setups older than this
	PendingSetupTTL time.Duration `mapstructure:"pending_setup_ttl"`

	// CleanupStuckAfter lets a new call force a reset when the cleanup guard
	// has been held longer than this
	CleanupStuckAfter time.Duration `mapstructure:"cleanup_stuck_after"`

	// EventBufferSize bounds the cold-start platform event buffer
	EventBufferSize int `mapstructure:"event_buffer_size"`

	// DefaultICEServers is used when relay credentials are unavailable
	DefaultICEServers []string `mapstructure:"default_ice_servers"`

	// Quality rates the transport statistics reported by GetCallStats
	Quality QualityThresholds `mapstructure:"-"`
}

// DefaultConfig returns the standard call timing policy.
func DefaultConfig() Config {
	return Config{
		CaptureTimeout:         10 * time.Second,
		CredentialFetchTimeout: 5 * time.Second,
		CleanupTimeout:         5 * time.Second,
		SettleDelay:            300 * time.Millisecond,
		RingingStaleAfter:      60 * time.Second,
		ConnectingStaleAfter:   30 * time.Second,
		PendingSetupTTL:        30 * time.Second,
		CleanupStuckAfter:      10 * time.Second,
		EventBufferSize:        32,
		DefaultICEServers: []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		},
		Quality: DefaultQualityThresholds(),
	}
}

// Validate checks that every duration is usable.
func (c Config) Validate() error {
	if c.CaptureTimeout <= 0 || c.CredentialFetchTimeout <= 0 || c.CleanupTimeout <= 0 {
		return errors.New("capture, credential and cleanup timeouts must be positive")
	}
	if c.RingingStaleAfter <= 0 || c.ConnectingStaleAfter <= 0 || c.PendingSetupTTL <= 0 {
		return errors.New("staleness windows must be positive")
	}
	if c.CleanupStuckAfter <= 0 {
		return errors.New("cleanup stuck threshold must be positive")
	}
	if c.SettleDelay < 0 {
		return errors.New("settle delay cannot be negative")
	}
	if c.EventBufferSize <= 0 {
		return errors.New("event buffer size must be positive")
	}
	if len(c.DefaultICEServers) == 0 {
		return errors.New("at least one default ICE server is required")
	}
	return nil
}

// defaultServers converts DefaultICEServers into a STUN-only server list.
func (c Config) defaultServers() []ICEServer {
	urls := make([]string, len(c.DefaultICEServers))
	copy(urls, c.DefaultICEServers)
	return []ICEServer{{URLs: urls}}
}
