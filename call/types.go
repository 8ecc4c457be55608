package call

import "time"

// State represents the lifecycle state of a call session.
type State string

const (
	// StateIdle indicates no session exists
	StateIdle State = "idle"
	// StateCalling indicates an outgoing call waiting for an answer
	StateCalling State = "calling"
	// StateRinging indicates an incoming call waiting for the user
	StateRinging State = "ringing"
	// StateConnecting indicates descriptions were exchanged and media is negotiating
	StateConnecting State = "connecting"
	// StateConnected indicates media is flowing
	StateConnected State = "connected"
	// StateEnded indicates the call terminated
	StateEnded State = "ended"
	// StateNoAnswer indicates the callee could not be reached
	StateNoAnswer State = "no_answer"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateEnded || s == StateNoAnswer
}

// Direction tells who placed the call.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// MediaKind selects audio-only or audio+video.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// IsVideo reports whether the call carries video.
func (k MediaKind) IsVideo() bool {
	return k == MediaVideo
}

// MediaKindFromVideo maps the wire isVideo flag to a MediaKind.
func MediaKindFromVideo(video bool) MediaKind {
	if video {
		return MediaVideo
	}
	return MediaAudio
}

// ConnectionState mirrors RTCPeerConnectionState.
type ConnectionState string

const (
	ConnectionNew          ConnectionState = "new"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionFailed       ConnectionState = "failed"
	ConnectionClosed       ConnectionState = "closed"
)

// SDPType is the type of a session description.
type SDPType string

const (
	SDPOffer  SDPType = "offer"
	SDPAnswer SDPType = "answer"
)

// SessionDescription is an SDP offer or answer.
type SessionDescription struct {
	Type SDPType
	SDP  string
}

// ICEServer describes one STUN or TURN server handed to the media engine.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// MediaStats is the transport-level statistics snapshot reported by a peer connection.
type MediaStats struct {
	BytesSent            uint64
	BytesReceived        uint64
	PacketsSent          uint32
	PacketsReceived      uint32
	PacketsLost          int32
	Jitter               float64
	CurrentRoundTripTime float64
	// RemoteAudioLevel is the RMS level of the last decoded remote audio frame, 0..1
	RemoteAudioLevel float64
}

// CallStats combines media statistics with session timing.
type CallStats struct {
	CallID   string
	State    State
	Duration time.Duration
	Media    MediaStats
	// Quality is assessed from Media; it is meaningful only once media flows.
	Quality QualityLevel
}
