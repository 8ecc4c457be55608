package call

import (
	"sync"
	"time"
)

// Session is the single source of truth for one call.
//
// Identity fields (call ID, peer, direction) are fixed at construction;
// state and flags are mutated only by the orchestrator that owns the session.
// All accessors are safe for concurrent use.
type Session struct {
	// Core call information
	callID    string
	peerID    string
	direction Direction
	mediaKind MediaKind
	state     State

	// Media flags
	muted       bool
	speakerOn   bool
	cameraOn    bool
	frontCamera bool

	// remoteRinging is display-only: the callee reported its device is alerting
	remoteRinging bool

	// mediaForbidden is set when the platform deactivated the audio session;
	// no further media may be attached for this call
	mediaForbidden bool

	// pendingRemoteOffer holds the caller's description while ringing
	pendingRemoteOffer string

	// Timing information
	createdAt time.Time
	startTime time.Time

	// Thread safety
	mu sync.RWMutex
}

// NewSession creates a session in its initial state for the given direction:
// StateCalling for outgoing calls and StateRinging for incoming ones.
func NewSession(callID, peerID string, direction Direction, kind MediaKind, now time.Time) *Session {
	state := StateCalling
	if direction == DirectionIncoming {
		state = StateRinging
	}
	return &Session{
		callID:      callID,
		peerID:      peerID,
		direction:   direction,
		mediaKind:   kind,
		state:       state,
		cameraOn:    kind.IsVideo(),
		frontCamera: true,
		speakerOn:   kind.IsVideo(),
		createdAt:   now,
	}
}

// GetCallID returns the call identifier.
func (s *Session) GetCallID() string {
	return s.callID
}

// GetPeerID returns the remote party identifier.
func (s *Session) GetPeerID() string {
	return s.peerID
}

// GetDirection returns who placed the call.
func (s *Session) GetDirection() Direction {
	return s.direction
}

// GetMediaKind returns the media kind.
func (s *Session) GetMediaKind() MediaKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mediaKind
}

// GetState returns the current call state.
func (s *Session) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState updates the call state.
// This method is thread-safe and used internally by the orchestrator.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// IsEnded reports whether the session reached a terminal state.
func (s *Session) IsEnded() bool {
	return s.GetState().IsTerminal()
}

// stateRank orders states so that transitions only move forward.
var stateRank = map[State]int{
	StateIdle:       0,
	StateCalling:    1,
	StateRinging:    1,
	StateConnecting: 2,
	StateConnected:  3,
	StateEnded:      4,
	StateNoAnswer:   4,
}

// advanceTo moves the session to next if that is a forward transition.
// Late or reordered events therefore never regress the state.
func (s *Session) advanceTo(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stateRank[next] <= stateRank[s.state] {
		return false
	}
	s.state = next
	return true
}

// finish moves the session to a terminal state unless it already has one.
func (s *Session) finish(final State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() {
		return false
	}
	s.state = final
	return true
}

// setMediaKind updates the media kind when an incoming call is accepted
// with a different kind than offered.
func (s *Session) setMediaKind(kind MediaKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mediaKind = kind
	if !kind.IsVideo() {
		s.cameraOn = false
	}
}

// markConnected moves the session to StateConnected and records the start time.
// It reports false if the session already left the negotiating states.
func (s *Session) markConnected(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsTerminal() || s.state == StateConnected {
		return false
	}
	s.state = StateConnected
	s.startTime = now
	s.remoteRinging = false
	return true
}

// GetStartTime returns when media started flowing (zero until connected).
func (s *Session) GetStartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startTime
}

// GetCreatedAt returns when the session was created.
func (s *Session) GetCreatedAt() time.Time {
	return s.createdAt
}

// Duration returns how long media has been flowing.
func (s *Session) Duration(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return now.Sub(s.startTime)
}

// IsStale reports whether the session is eligible for forced recovery.
//
// A session is stale once ended, when it has been calling or ringing for
// longer than ringingTimeout, or connecting for longer than connectingTimeout.
// Age is measured from creation.
func (s *Session) IsStale(now time.Time, ringingTimeout, connectingTimeout time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	age := now.Sub(s.createdAt)
	switch s.state {
	case StateEnded, StateNoAnswer:
		return true
	case StateCalling, StateRinging:
		return age > ringingTimeout
	case StateConnecting:
		return age > connectingTimeout
	default:
		return false
	}
}

// IsMuted returns whether outgoing audio is muted.
func (s *Session) IsMuted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muted
}

// IsSpeakerOn returns whether audio is routed to the loudspeaker.
func (s *Session) IsSpeakerOn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speakerOn
}

// IsCameraOn returns whether outgoing video is enabled.
func (s *Session) IsCameraOn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cameraOn
}

// IsFrontCamera returns whether the front camera is selected.
func (s *Session) IsFrontCamera() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frontCamera
}

func (s *Session) setMuted(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = v
}

func (s *Session) setSpeakerOn(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speakerOn = v
}

func (s *Session) setCameraOn(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameraOn = v
}

func (s *Session) setFrontCamera(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frontCamera = v
}

func (s *Session) setRemoteRinging(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteRinging = v
}

// forbidMedia marks the session so that no further media is attached.
func (s *Session) forbidMedia() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mediaForbidden = true
}

// IsMediaForbidden reports whether the platform revoked the audio session.
func (s *Session) IsMediaForbidden() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mediaForbidden
}

// setPendingRemoteOffer stores the caller's description while ringing.
func (s *Session) setPendingRemoteOffer(sdp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingRemoteOffer = sdp
}

// takePendingRemoteOffer returns and clears the stored description.
func (s *Session) takePendingRemoteOffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	offer := s.pendingRemoteOffer
	s.pendingRemoteOffer = ""
	return offer
}

// GetPendingRemoteOffer returns the stored description without clearing it.
func (s *Session) GetPendingRemoteOffer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingRemoteOffer
}

// Info returns an immutable snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	display := s.state
	if s.state == StateCalling && s.remoteRinging {
		display = StateRinging
	}

	return SessionInfo{
		CallID:       s.callID,
		PeerID:       s.peerID,
		Direction:    s.direction,
		MediaKind:    s.mediaKind,
		State:        s.state,
		DisplayState: display,
		Muted:        s.muted,
		SpeakerOn:    s.speakerOn,
		CameraOn:     s.cameraOn,
		FrontCamera:  s.frontCamera,
		CreatedAt:    s.createdAt,
		StartTime:    s.startTime,
	}
}

// SessionInfo is a point-in-time copy of a Session delivered to observers.
//
// DisplayState equals State except for an outgoing call whose callee
// reported ringing, which is displayed as StateRinging.
type SessionInfo struct {
	CallID       string    `json:"callId"`
	PeerID       string    `json:"peerId"`
	Direction    Direction `json:"direction"`
	MediaKind    MediaKind `json:"mediaKind"`
	State        State     `json:"state"`
	DisplayState State     `json:"displayState"`
	Muted        bool      `json:"muted"`
	SpeakerOn    bool      `json:"speakerOn"`
	CameraOn     bool      `json:"cameraOn"`
	FrontCamera  bool      `json:"frontCamera"`
	CreatedAt    time.Time `json:"createdAt"`
	StartTime    time.Time `json:"startTime,omitempty"`
}
