package platform

import (
	"errors"
	"sync"

	"github.com/opd-ai/toxcall/call"
	"github.com/sirupsen/logrus"
)

// AudioRoute is the output device in use.
type AudioRoute string

const (
	RouteEarpiece AudioRoute = "earpiece"
	RouteSpeaker  AudioRoute = "speaker"
)

// AudioState is a snapshot of the audio router.
type AudioState struct {
	Running      bool
	Kind         call.MediaKind
	Ringback     bool
	Route        AudioRoute
	KeepScreenOn bool
}

// AudioRouter implements call.AudioRouteAdapter by tracking routing state.
// Video calls default to the speaker, audio calls to the earpiece.
type AudioRouter struct {
	state    AudioState
	onChange func(AudioState)
	mu       sync.Mutex
}

var _ call.AudioRouteAdapter = (*AudioRouter)(nil)

// NewAudioRouter creates a stopped router.
func NewAudioRouter() *AudioRouter {
	return &AudioRouter{state: AudioState{Route: RouteEarpiece}}
}

// OnChange registers a callback invoked after every state change.
func (r *AudioRouter) OnChange(callback func(AudioState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = callback
}

func (r *AudioRouter) Start(kind call.MediaKind, ringback bool) error {
	route := RouteEarpiece
	if kind.IsVideo() {
		route = RouteSpeaker
	}
	r.update("Start", func(s *AudioState) {
		s.Running = true
		s.Kind = kind
		s.Ringback = ringback
		s.Route = route
	})
	return nil
}

// Stop resets the router. Stopping a stopped router is a no-op.
func (r *AudioRouter) Stop() error {
	r.update("Stop", func(s *AudioState) {
		*s = AudioState{Route: RouteEarpiece}
	})
	return nil
}

func (r *AudioRouter) SetSpeakerphoneOn(on bool) error {
	r.mu.Lock()
	running := r.state.Running
	r.mu.Unlock()
	if !running {
		return errors.New("audio routing not started")
	}

	route := RouteEarpiece
	if on {
		route = RouteSpeaker
	}
	r.update("SetSpeakerphoneOn", func(s *AudioState) { s.Route = route })
	return nil
}

func (r *AudioRouter) SetKeepScreenOn(on bool) error {
	r.update("SetKeepScreenOn", func(s *AudioState) { s.KeepScreenOn = on })
	return nil
}

// State returns the current routing state.
func (r *AudioRouter) State() AudioState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *AudioRouter) update(op string, fn func(*AudioState)) {
	r.mu.Lock()
	fn(&r.state)
	state := r.state
	onChange := r.onChange
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  op,
		"running":   state.Running,
		"route":     state.Route,
		"ringback":  state.Ringback,
		"screen_on": state.KeepScreenOn,
	}).Debug("Audio route updated")

	if onChange != nil {
		onChange(state)
	}
}
