package call

import (
	"context"

	"github.com/opd-ai/toxcall/signaling"
)

// MediaHandlers are the peer-connection events the orchestrator subscribes to.
// Handlers may be invoked from any goroutine.
type MediaHandlers struct {
	OnIceCandidate          func(candidate signaling.IceCandidate)
	OnConnectionStateChange func(state ConnectionState)
	OnTrack                 func(kind MediaKind, trackID string)
}

// MediaAdapter wraps the media-transport engine.
type MediaAdapter interface {
	// CreatePeerConnection creates a peer connection bound to handlers.
	CreatePeerConnection(ctx context.Context, iceServers []ICEServer, handlers MediaHandlers) (PeerConnection, error)
}

// PeerConnection is one negotiated media session owned by the orchestrator.
type PeerConnection interface {
	// AddLocalTracks captures local media of the given kind and adds its tracks.
	AddLocalTracks(ctx context.Context, kind MediaKind) error
	CreateOffer(ctx context.Context) (SessionDescription, error)
	CreateAnswer(ctx context.Context) (SessionDescription, error)
	SetLocalDescription(desc SessionDescription) error
	SetRemoteDescription(desc SessionDescription) error
	AddIceCandidate(candidate signaling.IceCandidate) error

	// SetTrackEnabled replaces the outgoing track of kind with silence/black
	// (enabled=false) or restores it. Returns ErrNoTrack if none was added.
	SetTrackEnabled(kind MediaKind, enabled bool) error

	// SwitchCamera replaces the outgoing video track with the selected camera.
	SwitchCamera(front bool) error

	// DetachHandlers stops event delivery; called before Close.
	DetachHandlers()
	GetStats() (MediaStats, error)
	Close() error
}

// PlatformEventKind enumerates events raised by the platform call-UI surface.
type PlatformEventKind string

const (
	PlatformAnswer           PlatformEventKind = "answer"
	PlatformEnd              PlatformEventKind = "end"
	PlatformMute             PlatformEventKind = "mute"
	PlatformAudioActivated   PlatformEventKind = "audio_activated"
	PlatformAudioDeactivated PlatformEventKind = "audio_deactivated"
)

// PlatformEvent is one callback from the platform call-UI surface.
type PlatformEvent struct {
	Kind   PlatformEventKind
	CallID string
	Muted  bool
}

// PlatformCallAdapter wraps the native call-UI surface.
type PlatformCallAdapter interface {
	// RequiresAudioActivation reports whether the platform owns the audio
	// session, so media must wait for PlatformAudioActivated.
	RequiresAudioActivation() bool
	DisplayIncomingCall(callID, callerName, handle string, video bool) error
	StartCall(callID, handle, calleeName string, video bool) error
	// AnswerCall reports an incoming call answered by the application
	// rather than from the call UI. Gated platforms activate audio for it.
	AnswerCall(callID string) error
	ReportCallConnected(callID string) error
	EndCall(callID string) error
	EndAllCalls() error
	// SetEventHandler registers the receiver of platform events.
	SetEventHandler(handler func(PlatformEvent))
}

// AudioRouteAdapter wraps the audio-routing layer.
type AudioRouteAdapter interface {
	Start(kind MediaKind, ringback bool) error
	Stop() error
	SetSpeakerphoneOn(on bool) error
	SetKeepScreenOn(on bool) error
}

// SignalingTransport is the consumed contract of the persistent signaling connection.
type SignalingTransport interface {
	// Send delivers msg; it fails when the transport is not connected.
	Send(ctx context.Context, msg signaling.Message) error
	// Request sends msg and waits for the correlated response of responseType.
	Request(ctx context.Context, msg signaling.Message, responseType string) (signaling.Message, error)
	IsConnected() bool
}

// Capability is an optional collaborator. Callers branch on presence rather
// than on errors from a missing implementation.
type Capability[T any] struct {
	value     T
	available bool
}

// Available wraps an implementation that is present.
func Available[T any](value T) Capability[T] {
	return Capability[T]{value: value, available: true}
}

// Unavailable returns an absent capability.
func Unavailable[T any]() Capability[T] {
	return Capability[T]{}
}

// Get returns the implementation and whether it is present.
func (c Capability[T]) Get() (T, bool) {
	return c.value, c.available
}

// IsAvailable reports whether the implementation is present.
func (c Capability[T]) IsAvailable() bool {
	return c.available
}
