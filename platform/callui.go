package platform

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/toxcall/call"
	"github.com/sirupsen/logrus"
)

// ErrUnknownCall is returned for actions on calls the UI is not showing.
var ErrUnknownCall = errors.New("call not registered with call UI")

// CallUIMode selects how the headless call UI treats the audio session.
type CallUIMode string

const (
	// ModeImmediate hands the audio session to the application at once.
	ModeImmediate CallUIMode = "immediate"
	// ModeActivationGated owns the audio session and reports activation
	// after a call is started or answered, as system call UIs do.
	// Answers from the application arrive through AnswerCall.
	ModeActivationGated CallUIMode = "activation_gated"
)

// UICall is one call registered with the call UI.
type UICall struct {
	CallID    string
	Handle    string
	Name      string
	Video     bool
	Incoming  bool
	Connected bool
	Muted     bool
}

// HeadlessCallUI implements call.PlatformCallAdapter for hosts with no
// native call screen. Application code drives it through Answer, End and
// SetMuted; events are delivered in order on a dedicated goroutine.
type HeadlessCallUI struct {
	mode            CallUIMode
	activationDelay time.Duration

	calls   map[string]*UICall
	handler func(call.PlatformEvent)
	active  bool
	closed  bool
	mu      sync.Mutex

	events chan call.PlatformEvent
	done   chan struct{}
}

var _ call.PlatformCallAdapter = (*HeadlessCallUI)(nil)

// NewHeadlessCallUI creates a call UI. In ModeActivationGated, audio
// activation is reported activationDelay after StartCall, Answer or
// AnswerCall.
func NewHeadlessCallUI(mode CallUIMode, activationDelay time.Duration) *HeadlessCallUI {
	if mode != ModeActivationGated {
		mode = ModeImmediate
	}
	ui := &HeadlessCallUI{
		mode:            mode,
		activationDelay: activationDelay,
		calls:           make(map[string]*UICall),
		events:          make(chan call.PlatformEvent, 64),
		done:            make(chan struct{}),
	}
	go ui.deliver()

	logrus.WithFields(logrus.Fields{
		"function": "NewHeadlessCallUI",
		"mode":     mode,
	}).Info("Headless call UI created")
	return ui
}

// RequiresAudioActivation reports whether the UI owns the audio session.
func (ui *HeadlessCallUI) RequiresAudioActivation() bool {
	return ui.mode == ModeActivationGated
}

func (ui *HeadlessCallUI) SetEventHandler(handler func(call.PlatformEvent)) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.handler = handler
}

// DisplayIncomingCall shows a ringing call.
func (ui *HeadlessCallUI) DisplayIncomingCall(callID, callerName, handle string, video bool) error {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if _, exists := ui.calls[callID]; exists {
		return fmt.Errorf("call %s already displayed", callID)
	}
	ui.calls[callID] = &UICall{CallID: callID, Handle: handle, Name: callerName, Video: video, Incoming: true}

	logrus.WithFields(logrus.Fields{
		"function": "DisplayIncomingCall",
		"call_id":  callID,
		"handle":   handle,
		"video":    video,
	}).Info("Incoming call displayed")
	return nil
}

// StartCall registers an outgoing call.
func (ui *HeadlessCallUI) StartCall(callID, handle, calleeName string, video bool) error {
	ui.mu.Lock()
	ui.calls[callID] = &UICall{CallID: callID, Handle: handle, Name: calleeName, Video: video}
	ui.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "StartCall",
		"call_id":  callID,
		"handle":   handle,
	}).Info("Outgoing call registered")

	ui.activateLater(callID)
	return nil
}

// AnswerCall records an incoming call answered by the application. A call
// accepted without ever ringing here is registered first.
func (ui *HeadlessCallUI) AnswerCall(callID string) error {
	ui.mu.Lock()
	c, ok := ui.calls[callID]
	if !ok {
		c = &UICall{CallID: callID, Incoming: true}
		ui.calls[callID] = c
	}
	incoming := c.Incoming
	ui.mu.Unlock()
	if !incoming {
		return fmt.Errorf("call %s is outgoing", callID)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "AnswerCall",
		"call_id":    callID,
		"registered": !ok,
	}).Info("Incoming call answered by application")

	ui.activateLater(callID)
	return nil
}

func (ui *HeadlessCallUI) ReportCallConnected(callID string) error {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	c, ok := ui.calls[callID]
	if !ok {
		return ErrUnknownCall
	}
	c.Connected = true
	return nil
}

// EndCall removes a call. Ending the last call releases the audio session.
func (ui *HeadlessCallUI) EndCall(callID string) error {
	ui.mu.Lock()
	if _, ok := ui.calls[callID]; !ok {
		ui.mu.Unlock()
		return nil
	}
	delete(ui.calls, callID)
	release := ui.active && len(ui.calls) == 0
	ui.mu.Unlock()

	if release {
		ui.deactivate([]string{callID})
	}
	return nil
}

// EndAllCalls removes every call. Deactivation is reported once per ended
// call so each event stays scoped to its call.
func (ui *HeadlessCallUI) EndAllCalls() error {
	ui.mu.Lock()
	ended := ui.callIDsLocked()
	ui.calls = make(map[string]*UICall)
	release := ui.active
	ui.mu.Unlock()

	if release {
		ui.deactivate(ended)
	}
	return nil
}

// Answer is the user accepting the call from the call UI.
func (ui *HeadlessCallUI) Answer(callID string) error {
	ui.mu.Lock()
	c, ok := ui.calls[callID]
	ui.mu.Unlock()
	if !ok || !c.Incoming {
		return ErrUnknownCall
	}
	ui.emit(call.PlatformEvent{Kind: call.PlatformAnswer, CallID: callID})
	ui.activateLater(callID)
	return nil
}

// End is the user hanging up from the call UI.
func (ui *HeadlessCallUI) End(callID string) error {
	ui.mu.Lock()
	_, ok := ui.calls[callID]
	ui.mu.Unlock()
	if !ok {
		return ErrUnknownCall
	}
	ui.emit(call.PlatformEvent{Kind: call.PlatformEnd, CallID: callID})
	return nil
}

// SetMuted is the user toggling mute from the call UI.
func (ui *HeadlessCallUI) SetMuted(callID string, muted bool) error {
	ui.mu.Lock()
	c, ok := ui.calls[callID]
	if ok {
		c.Muted = muted
	}
	ui.mu.Unlock()
	if !ok {
		return ErrUnknownCall
	}
	ui.emit(call.PlatformEvent{Kind: call.PlatformMute, CallID: callID, Muted: muted})
	return nil
}

// InterruptAudio simulates the system revoking the audio session, such as
// an incoming cellular call.
func (ui *HeadlessCallUI) InterruptAudio() {
	ui.mu.Lock()
	active := ui.active
	affected := ui.callIDsLocked()
	ui.mu.Unlock()
	if active {
		ui.deactivate(affected)
	}
}

// Calls returns a snapshot of the registered calls.
func (ui *HeadlessCallUI) Calls() []UICall {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	out := make([]UICall, 0, len(ui.calls))
	for _, c := range ui.calls {
		out = append(out, *c)
	}
	return out
}

// AudioActive reports whether the UI currently grants the audio session.
func (ui *HeadlessCallUI) AudioActive() bool {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	return ui.active
}

// Close stops event delivery.
func (ui *HeadlessCallUI) Close() {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.closed {
		return
	}
	ui.closed = true
	close(ui.done)
}

func (ui *HeadlessCallUI) activateLater(callID string) {
	if ui.mode != ModeActivationGated {
		return
	}
	time.AfterFunc(ui.activationDelay, func() {
		ui.mu.Lock()
		_, live := ui.calls[callID]
		already := ui.active
		if live {
			ui.active = true
		}
		ui.mu.Unlock()
		if !live {
			return
		}
		if already {
			logrus.WithFields(logrus.Fields{
				"function": "activateLater",
				"call_id":  callID,
			}).Debug("Audio session already active, re-reporting activation")
		}
		ui.emit(call.PlatformEvent{Kind: call.PlatformAudioActivated, CallID: callID})
	})
}

// deactivate releases the audio session and reports it for each of
// callIDs, or once without a call when there are none.
func (ui *HeadlessCallUI) deactivate(callIDs []string) {
	ui.mu.Lock()
	ui.active = false
	ui.mu.Unlock()
	if len(callIDs) == 0 {
		ui.emit(call.PlatformEvent{Kind: call.PlatformAudioDeactivated})
		return
	}
	for _, id := range callIDs {
		ui.emit(call.PlatformEvent{Kind: call.PlatformAudioDeactivated, CallID: id})
	}
}

func (ui *HeadlessCallUI) callIDsLocked() []string {
	ids := make([]string, 0, len(ui.calls))
	for id := range ui.calls {
		ids = append(ids, id)
	}
	return ids
}

func (ui *HeadlessCallUI) emit(ev call.PlatformEvent) {
	select {
	case ui.events <- ev:
	case <-ui.done:
	default:
		logrus.WithFields(logrus.Fields{
			"function": "emit",
			"kind":     ev.Kind,
			"call_id":  ev.CallID,
		}).Warn("Call UI event queue full, dropping event")
	}
}

func (ui *HeadlessCallUI) deliver() {
	for {
		select {
		case ev := <-ui.events:
			ui.mu.Lock()
			handler := ui.handler
			ui.mu.Unlock()
			if handler == nil {
				logrus.WithFields(logrus.Fields{
					"function": "deliver",
					"kind":     ev.Kind,
				}).Debug("No call UI event handler registered")
				continue
			}
			handler(ev)
		case <-ui.done:
			return
		}
	}
}
