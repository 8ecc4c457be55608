package transport

import (
	"errors"
	"net/http"
	"time"
)

// Config holds websocket transport settings.
type Config struct {
	// URL is the ws:// or wss:// endpoint of the signaling server.
	URL string
	// Header is sent with the upgrade request (auth tokens, cookies).
	Header http.Header

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval is the keepalive period. The connection is considered
	// lost when nothing arrives for twice this long.
	PingInterval time.Duration

	// ReconnectMin and ReconnectMax bound the exponential backoff used by Run.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// InboundBuffer is the number of undelivered messages held before new
	// ones are dropped.
	InboundBuffer int
}

// DefaultConfig returns settings suitable for a mobile-grade link.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingInterval:     20 * time.Second,
		ReconnectMin:     500 * time.Millisecond,
		ReconnectMax:     30 * time.Second,
		InboundBuffer:    256,
	}
}

// Validate checks that the configuration can be used to dial.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("transport url is required")
	}
	if c.WriteTimeout <= 0 || c.PingInterval <= 0 {
		return errors.New("write timeout and ping interval must be positive")
	}
	if c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin {
		return errors.New("reconnect backoff bounds are invalid")
	}
	if c.InboundBuffer <= 0 {
		return errors.New("inbound buffer must be positive")
	}
	return nil
}
