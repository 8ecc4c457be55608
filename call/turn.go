package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/toxcall/signaling"
	"github.com/pion/stun/v3"
	"github.com/sirupsen/logrus"
)

// maxExpiryMargin caps the safety margin subtracted from a credential TTL.
const maxExpiryMargin = 300 * time.Second

// TurnCredentials is a cached set of relay credentials.
type TurnCredentials struct {
	Username   string
	Secret     string
	TTLSeconds int
	URLs       []string
	ExpiresAt  time.Time
}

// expiryMargin returns min(10% of ttl, 300s).
func expiryMargin(ttl time.Duration) time.Duration {
	margin := ttl / 10
	if margin > maxExpiryMargin {
		margin = maxExpiryMargin
	}
	return margin
}

// newTurnCredentials derives the expiry from the fetch time and TTL.
func newTurnCredentials(p signaling.TurnCredentialsPayload, urls []string, fetchedAt time.Time) *TurnCredentials {
	ttl := time.Duration(p.TTL) * time.Second
	return &TurnCredentials{
		Username:   p.Username,
		Secret:     p.Credential,
		TTLSeconds: p.TTL,
		URLs:       urls,
		ExpiresAt:  fetchedAt.Add(ttl - expiryMargin(ttl)),
	}
}

// IsValid reports whether the credentials can still be used at now.
func (c *TurnCredentials) IsValid(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt)
}

// TurnCredentialsCache serves the ICE server list for new peer connections.
//
// Relay credentials are fetched over the signaling transport and reused until
// they approach expiry. A failed or slow fetch never fails the call: the
// configured STUN-only list is returned instead.
type TurnCredentialsCache struct {
	transport    SignalingTransport
	codec        *signaling.Codec
	fetchTimeout time.Duration
	defaults     []ICEServer
	creds        *TurnCredentials
	timeProvider TimeProvider
	mu           sync.Mutex
}

// NewTurnCredentialsCache creates a cache backed by transport.
func NewTurnCredentialsCache(transport SignalingTransport, cfg Config) *TurnCredentialsCache {
	return &TurnCredentialsCache{
		transport:    transport,
		codec:        signaling.NewCodec(),
		fetchTimeout: cfg.CredentialFetchTimeout,
		defaults:     cfg.defaultServers(),
		timeProvider: DefaultTimeProvider{},
	}
}

// SetTimeProvider sets the time provider for deterministic testing.
// If tp is nil, DefaultTimeProvider is used.
func (c *TurnCredentialsCache) SetTimeProvider(tp TimeProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeProvider = getTimeProvider(tp)
}

// Cached returns the cached credentials, or nil.
func (c *TurnCredentialsCache) Cached() *TurnCredentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return nil
	}
	cp := *c.creds
	return &cp
}

// Invalidate drops the cached credentials.
func (c *TurnCredentialsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = nil
}

// GetIceServers returns the server list for a new peer connection.
//
// Cached credentials are used while unexpired. Otherwise a fresh set is
// requested and raced against the fetch timeout; on timeout or error the
// default STUN-only list is returned.
func (c *TurnCredentialsCache) GetIceServers(ctx context.Context) []ICEServer {
	c.mu.Lock()
	now := c.timeProvider.Now()
	if c.creds.IsValid(now) {
		servers := c.serversFrom(c.creds)
		expiresAt := c.creds.ExpiresAt
		c.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function":   "GetIceServers",
			"expires_at": expiresAt,
		}).Debug("Using cached TURN credentials")
		return servers
	}
	tp := c.timeProvider
	c.mu.Unlock()

	creds, err := c.fetch(ctx, tp)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "GetIceServers",
			"error":    err.Error(),
			"timeout":  errors.Is(err, ErrCredentialTimeout),
		}).Warn("TURN credential fetch failed, using default STUN servers")
		return c.copyDefaults()
	}

	c.mu.Lock()
	c.creds = creds
	servers := c.serversFrom(creds)
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "GetIceServers",
		"url_count":  len(creds.URLs),
		"ttl":        creds.TTLSeconds,
		"expires_at": creds.ExpiresAt,
	}).Info("Fetched fresh TURN credentials")

	return servers
}

// fetch requests credentials and validates every returned URL.
func (c *TurnCredentialsCache) fetch(ctx context.Context, tp TimeProvider) (*TurnCredentials, error) {
	if c.transport == nil || !c.transport.IsConnected() {
		return nil, ErrSignalingUnavailable
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	resp, err := c.transport.Request(fetchCtx, c.codec.EncodeTurnRequest(uuid.NewString()), signaling.TypeTurnCredentials)
	if err != nil {
		if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrCredentialTimeout, err)
		}
		return nil, err
	}

	payload, err := c.codec.DecodeTurnCredentials(resp)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(payload.URLs))
	for _, raw := range payload.URLs {
		if _, err := stun.ParseURI(raw); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "fetch",
				"url":      raw,
				"error":    err.Error(),
			}).Warn("Dropping invalid ICE server URL")
			continue
		}
		urls = append(urls, raw)
	}
	if len(urls) == 0 {
		return nil, errors.New("turn credentials contained no valid urls")
	}

	return newTurnCredentials(payload, urls, tp.Now()), nil
}

// serversFrom builds the relay entry followed by the default STUN entry.
func (c *TurnCredentialsCache) serversFrom(creds *TurnCredentials) []ICEServer {
	urls := make([]string, len(creds.URLs))
	copy(urls, creds.URLs)
	servers := []ICEServer{{URLs: urls, Username: creds.Username, Credential: creds.Secret}}
	return append(servers, c.copyDefaults()...)
}

func (c *TurnCredentialsCache) copyDefaults() []ICEServer {
	out := make([]ICEServer, len(c.defaults))
	for i, s := range c.defaults {
		urls := make([]string, len(s.URLs))
		copy(urls, s.URLs)
		out[i] = ICEServer{URLs: urls, Username: s.Username, Credential: s.Credential}
	}
	return out
}
