package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/toxcall/signaling"
	"github.com/sirupsen/logrus"
)

// IceServerSource supplies the server list for a new peer connection.
// *TurnCredentialsCache is the standard implementation.
type IceServerSource interface {
	GetIceServers(ctx context.Context) []ICEServer
}

// Dependencies are the collaborators an Orchestrator drives.
type Dependencies struct {
	// Transport carries signaling messages (required)
	Transport SignalingTransport

	// Media creates peer connections (required)
	Media MediaAdapter

	// Platform is the native call-UI surface, when the host has one
	Platform Capability[PlatformCallAdapter]

	// Audio is the audio-routing layer, when the host has one
	Audio Capability[AudioRouteAdapter]

	// IceServers overrides the server source; defaults to a
	// TurnCredentialsCache over Transport
	IceServers IceServerSource
}

// teardown is the set of resources detached from the orchestrator for one
// call. It is owned by whichever cleanup runs it.
type teardown struct {
	callID  string
	session *Session
	conn    PeerConnection
	queue   *IceCandidateQueue
}

// Orchestrator owns at most one call session and drives it through
// signaling, media negotiation, platform UI and audio routing.
//
// The orchestrator never holds its lock across a blocking collaborator call.
// Every suspension point captures the session first and re-validates it
// afterwards, so a call that ended mid-setup is never resurrected.
type Orchestrator struct {
	cfg        Config
	transport  SignalingTransport
	media      MediaAdapter
	platform   Capability[PlatformCallAdapter]
	audio      Capability[AudioRouteAdapter]
	iceServers IceServerSource
	codec      *signaling.Codec
	strategy   setupStrategy
	events     *EventBuffer

	// Guarded by mu
	session              *Session
	conn                 PeerConnection
	iceQueue             *IceCandidateQueue
	remoteDescriptionSet bool
	cleaningUp           bool
	cleanupGen           uint64
	cleanupStartedAt     time.Time
	cleanupBacklog       []*teardown
	cooldownUntil        time.Time
	timeProvider         TimeProvider
	mu                   sync.Mutex

	// Observer callbacks, invoked without mu held
	stateCallback       func(info SessionInfo)
	incomingCallback    func(info SessionInfo)
	errorCallback       func(callID string, err error)
	remoteTrackCallback func(callID string, kind MediaKind, trackID string)
	callbackMu          sync.RWMutex
}

// NewOrchestrator creates an orchestrator with no active session.
//
// The media setup strategy is fixed here: platforms that own the audio
// session defer setup until they report activation, all others set up
// media immediately.
func NewOrchestrator(cfg Config, deps Dependencies) (*Orchestrator, error) {
	logrus.WithFields(logrus.Fields{
		"function": "NewOrchestrator",
	}).Info("Creating call orchestrator")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid call config: %w", err)
	}
	if deps.Transport == nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewOrchestrator",
			"error":    "signaling transport cannot be nil",
		}).Error("Dependency validation failed")
		return nil, errors.New("signaling transport cannot be nil")
	}
	if deps.Media == nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewOrchestrator",
			"error":    "media adapter cannot be nil",
		}).Error("Dependency validation failed")
		return nil, errors.New("media adapter cannot be nil")
	}

	if cfg.Quality == (QualityThresholds{}) {
		cfg.Quality = DefaultQualityThresholds()
	}

	iceServers := deps.IceServers
	if iceServers == nil {
		iceServers = NewTurnCredentialsCache(deps.Transport, cfg)
	}

	o := &Orchestrator{
		cfg:          cfg,
		transport:    deps.Transport,
		media:        deps.Media,
		platform:     deps.Platform,
		audio:        deps.Audio,
		iceServers:   iceServers,
		codec:        signaling.NewCodec(),
		events:       NewEventBuffer(cfg.EventBufferSize),
		iceQueue:     NewIceCandidateQueue(),
		timeProvider: DefaultTimeProvider{},
	}

	platform, hasPlatform := deps.Platform.Get()
	if hasPlatform && platform.RequiresAudioActivation() {
		o.strategy = newActivationGatedSetup()
	} else {
		o.strategy = immediateSetup{}
	}
	if hasPlatform {
		platform.SetEventHandler(func(ev PlatformEvent) {
			o.HandleNativeUIEvent(context.Background(), ev)
		})
	}

	logrus.WithFields(logrus.Fields{
		"function":       "NewOrchestrator",
		"setup_strategy": o.strategy.name(),
		"platform":       hasPlatform,
		"audio_routing":  deps.Audio.IsAvailable(),
	}).Info("Call orchestrator created successfully")

	return o, nil
}

// SetTimeProvider sets the time provider for deterministic testing.
func (o *Orchestrator) SetTimeProvider(tp TimeProvider) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timeProvider = tp
	if cache, ok := o.iceServers.(*TurnCredentialsCache); ok {
		cache.SetTimeProvider(tp)
	}
}

func (o *Orchestrator) now() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return getTimeProvider(o.timeProvider).Now()
}

// nowLocked must be called with mu held.
func (o *Orchestrator) nowLocked() time.Time {
	return getTimeProvider(o.timeProvider).Now()
}

// SetStateCallback registers a callback invoked on every session state change.
func (o *Orchestrator) SetStateCallback(callback func(info SessionInfo)) {
	o.callbackMu.Lock()
	defer o.callbackMu.Unlock()
	o.stateCallback = callback
}

// SetIncomingCallCallback registers a callback invoked when a call offer arrives.
func (o *Orchestrator) SetIncomingCallCallback(callback func(info SessionInfo)) {
	o.callbackMu.Lock()
	defer o.callbackMu.Unlock()
	o.incomingCallback = callback
}

// SetErrorCallback registers a callback for failures that have no caller to
// return to, such as deferred setup or platform-initiated actions.
func (o *Orchestrator) SetErrorCallback(callback func(callID string, err error)) {
	o.callbackMu.Lock()
	defer o.callbackMu.Unlock()
	o.errorCallback = callback
}

// SetRemoteTrackCallback registers a callback invoked when remote media arrives.
func (o *Orchestrator) SetRemoteTrackCallback(callback func(callID string, kind MediaKind, trackID string)) {
	o.callbackMu.Lock()
	defer o.callbackMu.Unlock()
	o.remoteTrackCallback = callback
}

func (o *Orchestrator) notifyState(sess *Session) {
	o.callbackMu.RLock()
	cb := o.stateCallback
	o.callbackMu.RUnlock()
	if cb == nil {
		return
	}
	info := sess.Info()
	isolate("callback.state", func() error {
		cb(info)
		return nil
	})
}

func (o *Orchestrator) notifyIncoming(sess *Session) {
	o.callbackMu.RLock()
	cb := o.incomingCallback
	o.callbackMu.RUnlock()
	if cb == nil {
		return
	}
	info := sess.Info()
	isolate("callback.incoming", func() error {
		cb(info)
		return nil
	})
}

func (o *Orchestrator) reportError(callID string, err error) {
	logrus.WithFields(logrus.Fields{
		"function": "reportError",
		"call_id":  callID,
		"error":    err.Error(),
	}).Error("Call failed")

	o.callbackMu.RLock()
	cb := o.errorCallback
	o.callbackMu.RUnlock()
	if cb == nil {
		return
	}
	isolate("callback.error", func() error {
		cb(callID, err)
		return nil
	})
}

func (o *Orchestrator) notifyRemoteTrack(callID string, kind MediaKind, trackID string) {
	o.callbackMu.RLock()
	cb := o.remoteTrackCallback
	o.callbackMu.RUnlock()
	if cb == nil {
		return
	}
	isolate("callback.remote_track", func() error {
		cb(callID, kind, trackID)
		return nil
	})
}

// CurrentSession returns a snapshot of the active session, if any.
func (o *Orchestrator) CurrentSession() (SessionInfo, bool) {
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil {
		return SessionInfo{}, false
	}
	return sess.Info(), true
}

// State returns the active session's state, or StateIdle.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil {
		return StateIdle
	}
	return sess.GetState()
}

// GetSession returns the active session, or nil.
func (o *Orchestrator) GetSession() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// isCurrent reports whether sess is still the active, live session.
func (o *Orchestrator) isCurrent(sess *Session) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session == sess && !sess.IsEnded()
}

// checkpoint re-validates sess after a suspension point.
func (o *Orchestrator) checkpoint(sess *Session) error {
	if !o.isCurrent(sess) {
		return ErrSetupCancelled
	}
	if sess.IsMediaForbidden() {
		return fmt.Errorf("%w: audio session deactivated", ErrMediaUnavailable)
	}
	return nil
}

// detachLocked hands the active resources to a teardown and resets the
// orchestrator to idle. Must be called with mu held.
func (o *Orchestrator) detachLocked() *teardown {
	td := &teardown{
		session: o.session,
		conn:    o.conn,
		queue:   o.iceQueue,
	}
	if o.session != nil {
		td.callID = o.session.GetCallID()
	}
	o.session = nil
	o.conn = nil
	o.iceQueue = NewIceCandidateQueue()
	o.remoteDescriptionSet = false
	return td
}

// send encodes and delivers one outbound signal.
func (o *Orchestrator) send(ctx context.Context, sig signaling.Signal) error {
	msg, err := o.codec.Encode(sig)
	if err != nil {
		return err
	}
	if !o.transport.IsConnected() {
		return fmt.Errorf("%w: transport not connected", ErrSignalingUnavailable)
	}
	if err := o.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrSignalingUnavailable, err)
	}
	return nil
}

// sendBestEffort sends sig and only logs a failure.
func (o *Orchestrator) sendBestEffort(ctx context.Context, sig signaling.Signal) {
	if err := o.send(ctx, sig); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendBestEffort",
			"kind":     sig.Kind,
			"call_id":  sig.CallID,
			"error":    err.Error(),
		}).Warn("Failed to send signal")
	}
}

// withPlatform runs fn against the platform adapter when present.
func (o *Orchestrator) withPlatform(step string, fn func(PlatformCallAdapter) error) StepResult {
	platform, ok := o.platform.Get()
	if !ok {
		return StepResult{Step: step}
	}
	return isolate(step, func() error { return fn(platform) })
}

// withAudio runs fn against the audio routing adapter when present.
func (o *Orchestrator) withAudio(step string, fn func(AudioRouteAdapter) error) StepResult {
	audio, ok := o.audio.Get()
	if !ok {
		return StepResult{Step: step}
	}
	return isolate(step, func() error { return fn(audio) })
}
