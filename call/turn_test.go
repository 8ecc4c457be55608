package call

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/opd-ai/toxcall/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turnResponder(t *testing.T, payload signaling.TurnCredentialsPayload) func(context.Context, signaling.Message, string) (signaling.Message, error) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return func(_ context.Context, msg signaling.Message, responseType string) (signaling.Message, error) {
		assert.Equal(t, signaling.TypeGetTurnCredentials, msg.Type)
		assert.NotEmpty(t, msg.RequestID)
		assert.Equal(t, signaling.TypeTurnCredentials, responseType)
		return signaling.Message{Type: signaling.TypeTurnCredentials, RequestID: msg.RequestID, Payload: raw}, nil
	}
}

func newTestCache(transport *mockTransport) (*TurnCredentialsCache, *mockTimeProvider) {
	cfg := DefaultConfig()
	cfg.CredentialFetchTimeout = 50 * time.Millisecond
	cache := NewTurnCredentialsCache(transport, cfg)
	clock := newMockTimeProvider()
	cache.SetTimeProvider(clock)
	return cache, clock
}

func TestExpiryMargin(t *testing.T) {
	assert.Equal(t, 60*time.Second, expiryMargin(600*time.Second))
	assert.Equal(t, 300*time.Second, expiryMargin(24*time.Hour))
}

// TestTurnCacheReuse fetches once and reuses credentials until the margin.
func TestTurnCacheReuse(t *testing.T) {
	transport := newMockTransport()
	transport.requestFn = turnResponder(t, signaling.TurnCredentialsPayload{
		Username: "1700000000:alice", Credential: "secret", TTL: 600,
		URLs: []string{"turn:turn.example.org:3478?transport=udp", "turns:turn.example.org:5349"},
	})
	cache, clock := newTestCache(transport)
	ctx := context.Background()

	servers := cache.GetIceServers(ctx)
	require.Len(t, servers, 2)
	assert.Equal(t, "1700000000:alice", servers[0].Username)
	assert.Equal(t, "secret", servers[0].Credential)
	assert.Len(t, servers[0].URLs, 2)
	assert.Equal(t, DefaultConfig().DefaultICEServers, servers[1].URLs)
	assert.Equal(t, 1, transport.requestCount())

	clock.Advance(500 * time.Second)
	cache.GetIceServers(ctx)
	assert.Equal(t, 1, transport.requestCount(), "valid credentials are reused")

	// 600s TTL minus a 60s margin expires at 540s.
	clock.Advance(41 * time.Second)
	cache.GetIceServers(ctx)
	assert.Equal(t, 2, transport.requestCount())

	cache.Invalidate()
	assert.Nil(t, cache.Cached())
}

func TestTurnCacheFallbackOnError(t *testing.T) {
	transport := newMockTransport()
	transport.requestFn = func(context.Context, signaling.Message, string) (signaling.Message, error) {
		return signaling.Message{}, errors.New("server error")
	}
	cache, _ := newTestCache(transport)

	servers := cache.GetIceServers(context.Background())
	require.Len(t, servers, 1)
	assert.Empty(t, servers[0].Username)
	assert.Equal(t, DefaultConfig().DefaultICEServers, servers[0].URLs)
	assert.Nil(t, cache.Cached())
}

func TestTurnCacheFallbackOnTimeout(t *testing.T) {
	transport := newMockTransport()
	transport.requestFn = func(ctx context.Context, _ signaling.Message, _ string) (signaling.Message, error) {
		<-ctx.Done()
		return signaling.Message{}, ctx.Err()
	}
	cache, _ := newTestCache(transport)

	_, err := cache.fetch(context.Background(), newMockTimeProvider())
	assert.ErrorIs(t, err, ErrCredentialTimeout)

	servers := cache.GetIceServers(context.Background())
	require.Len(t, servers, 1)
	assert.Empty(t, servers[0].Credential)
}

func TestTurnCacheDisconnectedTransport(t *testing.T) {
	transport := newMockTransport()
	transport.connected = false
	cache, _ := newTestCache(transport)

	servers := cache.GetIceServers(context.Background())
	require.Len(t, servers, 1)
	assert.Equal(t, 0, transport.requestCount())
}

func TestTurnCacheDropsInvalidURLs(t *testing.T) {
	transport := newMockTransport()
	transport.requestFn = turnResponder(t, signaling.TurnCredentialsPayload{
		Username: "u", Credential: "p", TTL: 600,
		URLs: []string{"http://not-ice.example.org", "turn:turn.example.org:3478"},
	})
	cache, _ := newTestCache(transport)

	servers := cache.GetIceServers(context.Background())
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"turn:turn.example.org:3478"}, servers[0].URLs)
}

func TestTurnCacheAllURLsInvalid(t *testing.T) {
	transport := newMockTransport()
	transport.requestFn = turnResponder(t, signaling.TurnCredentialsPayload{
		Username: "u", Credential: "p", TTL: 600, URLs: []string{"bogus"},
	})
	cache, _ := newTestCache(transport)

	servers := cache.GetIceServers(context.Background())
	require.Len(t, servers, 1)
	assert.Nil(t, cache.Cached())
}

func TestTurnServersAreCopies(t *testing.T) {
	transport := newMockTransport()
	cache, _ := newTestCache(transport)

	servers := cache.GetIceServers(context.Background())
	servers[0].URLs[0] = "mutated"
	again := cache.GetIceServers(context.Background())
	assert.NotEqual(t, "mutated", again[0].URLs[0])
}
