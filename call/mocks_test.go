package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/toxcall/signaling"
	"github.com/stretchr/testify/require"
)

// mockTimeProvider implements TimeProvider for deterministic testing.
type mockTimeProvider struct {
	currentTime time.Time
	mu          sync.Mutex
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{currentTime: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *mockTimeProvider) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

func (m *mockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// mockTransport records outbound messages.
type mockTransport struct {
	connected bool
	sent      []signaling.Message
	sendErr   error
	requestFn func(ctx context.Context, msg signaling.Message, responseType string) (signaling.Message, error)
	requests  int
	mu        sync.Mutex
}

func newMockTransport() *mockTransport {
	return &mockTransport{connected: true}
}

func (m *mockTransport) Send(_ context.Context, msg signaling.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockTransport) Request(ctx context.Context, msg signaling.Message, responseType string) (signaling.Message, error) {
	m.mu.Lock()
	m.requests++
	fn := m.requestFn
	m.mu.Unlock()
	if fn == nil {
		return signaling.Message{}, errors.New("no responder")
	}
	return fn(ctx, msg, responseType)
}

func (m *mockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// sentOfType returns the decoded payloads of sent messages with msgType.
func (m *mockTransport) sentOfType(t *testing.T, msgType string) []signaling.CallPayload {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []signaling.CallPayload
	for _, msg := range m.sent {
		if msg.Type != msgType {
			continue
		}
		var p signaling.CallPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
		out = append(out, p)
	}
	return out
}

// mockConn is a scripted PeerConnection.
type mockConn struct {
	kind          MediaKind
	handlers      MediaHandlers
	servers       []ICEServer
	addTracksErr  error
	addTracksGate chan struct{}
	setRemoteErr  error
	setTrackErr   error
	switchErr     error
	closeGate     chan struct{}
	local         []SessionDescription
	remote        []SessionDescription
	candidates    []signaling.IceCandidate
	trackEnabled  map[MediaKind]bool
	frontCamera   bool
	detached      bool
	closeCount    int
	stats         MediaStats
	mu            sync.Mutex
}

func (c *mockConn) AddLocalTracks(ctx context.Context, kind MediaKind) error {
	if c.addTracksGate != nil {
		select {
		case <-c.addTracksGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kind = kind
	return c.addTracksErr
}

func (c *mockConn) CreateOffer(context.Context) (SessionDescription, error) {
	return SessionDescription{Type: SDPOffer, SDP: "v=0 offer"}, nil
}

func (c *mockConn) CreateAnswer(context.Context) (SessionDescription, error) {
	return SessionDescription{Type: SDPAnswer, SDP: "v=0 answer"}, nil
}

func (c *mockConn) SetLocalDescription(desc SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = append(c.local, desc)
	return nil
}

func (c *mockConn) SetRemoteDescription(desc SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setRemoteErr != nil {
		return c.setRemoteErr
	}
	c.remote = append(c.remote, desc)
	return nil
}

func (c *mockConn) AddIceCandidate(candidate signaling.IceCandidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, candidate)
	return nil
}

func (c *mockConn) SetTrackEnabled(kind MediaKind, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setTrackErr != nil {
		return c.setTrackErr
	}
	if c.trackEnabled == nil {
		c.trackEnabled = make(map[MediaKind]bool)
	}
	c.trackEnabled[kind] = enabled
	return nil
}

func (c *mockConn) SwitchCamera(front bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.switchErr != nil {
		return c.switchErr
	}
	c.frontCamera = front
	return nil
}

func (c *mockConn) DetachHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detached = true
}

func (c *mockConn) GetStats() (MediaStats, error) {
	return c.stats, nil
}

func (c *mockConn) Close() error {
	if c.closeGate != nil {
		<-c.closeGate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	return nil
}

func (c *mockConn) closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

func (c *mockConn) appliedCandidates() []signaling.IceCandidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]signaling.IceCandidate, len(c.candidates))
	copy(out, c.candidates)
	return out
}

func (c *mockConn) remoteDescriptions() []SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SessionDescription(nil), c.remote...)
}

// mockMedia hands out mockConns prepared by the test.
type mockMedia struct {
	createErr error
	prepare   func(c *mockConn)
	conns     []*mockConn
	mu        sync.Mutex
}

func (m *mockMedia) CreatePeerConnection(_ context.Context, servers []ICEServer, handlers MediaHandlers) (PeerConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	c := &mockConn{handlers: handlers, servers: servers}
	if m.prepare != nil {
		m.prepare(c)
	}
	m.conns = append(m.conns, c)
	return c, nil
}

func (m *mockMedia) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *mockMedia) last() *mockConn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.conns) == 0 {
		return nil
	}
	return m.conns[len(m.conns)-1]
}

// mockPlatform records native call UI requests.
type mockPlatform struct {
	requiresActivation bool
	panicOnEnd         bool
	handler            func(PlatformEvent)
	calls              []string
	mu                 sync.Mutex
}

func (p *mockPlatform) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *mockPlatform) RequiresAudioActivation() bool { return p.requiresActivation }

func (p *mockPlatform) DisplayIncomingCall(callID, _, _ string, _ bool) error {
	p.record("display:" + callID)
	return nil
}

func (p *mockPlatform) StartCall(callID, _, _ string, _ bool) error {
	p.record("start:" + callID)
	return nil
}

func (p *mockPlatform) AnswerCall(callID string) error {
	p.record("answer:" + callID)
	return nil
}

func (p *mockPlatform) ReportCallConnected(callID string) error {
	p.record("connected:" + callID)
	return nil
}

func (p *mockPlatform) EndCall(callID string) error {
	if p.panicOnEnd {
		panic("native call UI crashed")
	}
	p.record("end:" + callID)
	return nil
}

func (p *mockPlatform) EndAllCalls() error {
	p.record("end_all")
	return nil
}

func (p *mockPlatform) SetEventHandler(handler func(PlatformEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

func (p *mockPlatform) emit(ev PlatformEvent) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	h(ev)
}

func (p *mockPlatform) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// mockAudio records audio routing requests.
type mockAudio struct {
	speakerErr error
	calls      []string
	mu         sync.Mutex
}

func (a *mockAudio) record(call string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, call)
}

func (a *mockAudio) Start(kind MediaKind, ringback bool) error {
	if ringback {
		a.record("start_ringback:" + string(kind))
	} else {
		a.record("start:" + string(kind))
	}
	return nil
}

func (a *mockAudio) Stop() error {
	a.record("stop")
	return nil
}

func (a *mockAudio) SetSpeakerphoneOn(on bool) error {
	if a.speakerErr != nil {
		return a.speakerErr
	}
	if on {
		a.record("speaker_on")
	} else {
		a.record("speaker_off")
	}
	return nil
}

func (a *mockAudio) SetKeepScreenOn(on bool) error {
	if on {
		a.record("screen_on")
	}
	return nil
}

func (a *mockAudio) recorded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// staticIceServers avoids credential requests in orchestrator tests.
type staticIceServers struct{}

func (staticIceServers) GetIceServers(context.Context) []ICEServer {
	return []ICEServer{{URLs: []string{"stun:stun.example.org:3478"}}}
}

// stateRecorder collects state callbacks.
type stateRecorder struct {
	states []State
	mu     sync.Mutex
}

func (r *stateRecorder) record(info SessionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, info.State)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type testHarness struct {
	orch      *Orchestrator
	transport *mockTransport
	media     *mockMedia
	platform  *mockPlatform
	audio     *mockAudio
	clock     *mockTimeProvider
	states    *stateRecorder
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleDelay = 0
	cfg.CleanupTimeout = 200 * time.Millisecond
	cfg.CaptureTimeout = time.Second
	return cfg
}

func newHarness(t *testing.T, requiresActivation bool) *testHarness {
	t.Helper()
	h := &testHarness{
		transport: newMockTransport(),
		media:     &mockMedia{},
		platform:  &mockPlatform{requiresActivation: requiresActivation},
		audio:     &mockAudio{},
		clock:     newMockTimeProvider(),
		states:    &stateRecorder{},
	}
	orch, err := NewOrchestrator(testConfig(), Dependencies{
		Transport:  h.transport,
		Media:      h.media,
		Platform:   Available[PlatformCallAdapter](h.platform),
		Audio:      Available[AudioRouteAdapter](h.audio),
		IceServers: staticIceServers{},
	})
	require.NoError(t, err)
	orch.SetTimeProvider(h.clock)
	orch.SetStateCallback(h.states.record)
	orch.MarkReady(context.Background())
	h.orch = orch
	return h
}

func inboundMessage(t *testing.T, msgType string, payload any) signaling.Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return signaling.Message{Type: msgType, Payload: raw}
}

func candidate(s string) signaling.IceCandidate {
	mid := "0"
	return signaling.IceCandidate{Candidate: s, SDPMid: &mid}
}

func candidateMessage(t *testing.T, callID, from string, c signaling.IceCandidate) signaling.Message {
	t.Helper()
	raw, err := json.Marshal(c)
	require.NoError(t, err)
	return inboundMessage(t, signaling.TypeCallIceCandidate, signaling.CallPayload{
		FromPeerID: from,
		CallID:     callID,
		Candidate:  string(raw),
	})
}
