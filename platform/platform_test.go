package platform

import (
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/toxcall/call"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventSink struct {
	mu     sync.Mutex
	events []call.PlatformEvent
}

func (s *eventSink) handle(ev call.PlatformEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) kinds() []call.PlatformEventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]call.PlatformEventKind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

func newUI(t *testing.T, mode CallUIMode) (*HeadlessCallUI, *eventSink) {
	t.Helper()
	ui := NewHeadlessCallUI(mode, 5*time.Millisecond)
	t.Cleanup(ui.Close)
	sink := &eventSink{}
	ui.SetEventHandler(sink.handle)
	return ui, sink
}

func waitKinds(t *testing.T, sink *eventSink, want ...call.PlatformEventKind) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, sink.kinds())
	}, time.Second, 2*time.Millisecond, "events: %v", sink.kinds())
}

func TestImmediateModeNeverActivates(t *testing.T) {
	ui, sink := newUI(t, ModeImmediate)
	assert.False(t, ui.RequiresAudioActivation())

	require.NoError(t, ui.StartCall("c1", "bob", "Bob", false))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.kinds())
	assert.False(t, ui.AudioActive())
}

func TestUnknownModeFallsBackToImmediate(t *testing.T) {
	ui := NewHeadlessCallUI("carplay", 0)
	defer ui.Close()
	assert.False(t, ui.RequiresAudioActivation())
}

func TestGatedStartCallActivatesAudio(t *testing.T) {
	ui, sink := newUI(t, ModeActivationGated)
	assert.True(t, ui.RequiresAudioActivation())

	require.NoError(t, ui.StartCall("c1", "bob", "Bob", true))
	waitKinds(t, sink, call.PlatformAudioActivated)
	assert.True(t, ui.AudioActive())

	require.NoError(t, ui.EndCall("c1"))
	waitKinds(t, sink, call.PlatformAudioActivated, call.PlatformAudioDeactivated)
	assert.False(t, ui.AudioActive())
	assert.Empty(t, ui.Calls())
}

func TestGatedActivationSkippedForEndedCall(t *testing.T) {
	ui := NewHeadlessCallUI(ModeActivationGated, 30*time.Millisecond)
	defer ui.Close()
	sink := &eventSink{}
	ui.SetEventHandler(sink.handle)

	require.NoError(t, ui.StartCall("c1", "bob", "Bob", false))
	require.NoError(t, ui.EndCall("c1"))
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, sink.kinds())
}

func TestIncomingAnswerFlow(t *testing.T) {
	ui, sink := newUI(t, ModeActivationGated)

	require.NoError(t, ui.DisplayIncomingCall("c2", "Alice", "alice", false))
	assert.Error(t, ui.DisplayIncomingCall("c2", "Alice", "alice", false))

	require.NoError(t, ui.Answer("c2"))
	waitKinds(t, sink, call.PlatformAnswer, call.PlatformAudioActivated)

	require.NoError(t, ui.ReportCallConnected("c2"))
	calls := ui.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Connected)
	assert.True(t, calls[0].Incoming)
}

func TestAnswerCallFromApplication(t *testing.T) {
	ui, sink := newUI(t, ModeActivationGated)

	require.NoError(t, ui.DisplayIncomingCall("c5", "Alice", "alice", false))
	require.NoError(t, ui.AnswerCall("c5"))
	waitKinds(t, sink, call.PlatformAudioActivated)
	assert.True(t, ui.AudioActive())

	sink.mu.Lock()
	assert.Equal(t, "c5", sink.events[0].CallID)
	sink.mu.Unlock()
}

func TestAnswerCallRegistersUnknownCall(t *testing.T) {
	ui, sink := newUI(t, ModeActivationGated)

	require.NoError(t, ui.AnswerCall("c6"))
	waitKinds(t, sink, call.PlatformAudioActivated)
	calls := ui.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Incoming)

	require.NoError(t, ui.StartCall("out", "bob", "Bob", false))
	assert.Error(t, ui.AnswerCall("out"))
}

func TestAnswerCallImmediateModeStaysQuiet(t *testing.T) {
	ui, sink := newUI(t, ModeImmediate)
	require.NoError(t, ui.DisplayIncomingCall("c7", "Alice", "alice", false))
	require.NoError(t, ui.AnswerCall("c7"))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.kinds())
}

func TestDeactivationNamesEndedCall(t *testing.T) {
	ui, sink := newUI(t, ModeActivationGated)

	require.NoError(t, ui.StartCall("c8", "bob", "Bob", false))
	waitKinds(t, sink, call.PlatformAudioActivated)
	require.NoError(t, ui.EndCall("c8"))
	waitKinds(t, sink, call.PlatformAudioActivated, call.PlatformAudioDeactivated)

	sink.mu.Lock()
	assert.Equal(t, "c8", sink.events[1].CallID)
	sink.mu.Unlock()
}

func TestEndAllCallsDeactivatesEachCall(t *testing.T) {
	ui, sink := newUI(t, ModeActivationGated)

	require.NoError(t, ui.StartCall("a", "bob", "Bob", false))
	waitKinds(t, sink, call.PlatformAudioActivated)
	require.NoError(t, ui.DisplayIncomingCall("b", "Carol", "carol", false))
	require.NoError(t, ui.EndAllCalls())
	waitKinds(t, sink, call.PlatformAudioActivated, call.PlatformAudioDeactivated, call.PlatformAudioDeactivated)

	sink.mu.Lock()
	ended := []string{sink.events[1].CallID, sink.events[2].CallID}
	sink.mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b"}, ended)
}

func TestUserActionsOnUnknownCall(t *testing.T) {
	ui, _ := newUI(t, ModeImmediate)
	assert.ErrorIs(t, ui.Answer("nope"), ErrUnknownCall)
	assert.ErrorIs(t, ui.End("nope"), ErrUnknownCall)
	assert.ErrorIs(t, ui.SetMuted("nope", true), ErrUnknownCall)
	assert.ErrorIs(t, ui.ReportCallConnected("nope"), ErrUnknownCall)
	assert.NoError(t, ui.EndCall("nope"))

	require.NoError(t, ui.StartCall("out", "bob", "Bob", false))
	assert.ErrorIs(t, ui.Answer("out"), ErrUnknownCall)
}

func TestEndAndMuteEvents(t *testing.T) {
	ui, sink := newUI(t, ModeImmediate)
	require.NoError(t, ui.DisplayIncomingCall("c3", "Alice", "alice", true))

	require.NoError(t, ui.SetMuted("c3", true))
	require.NoError(t, ui.End("c3"))
	waitKinds(t, sink, call.PlatformMute, call.PlatformEnd)

	sink.mu.Lock()
	assert.True(t, sink.events[0].Muted)
	assert.Equal(t, "c3", sink.events[1].CallID)
	sink.mu.Unlock()
}

func TestInterruptAudio(t *testing.T) {
	ui, sink := newUI(t, ModeActivationGated)

	ui.InterruptAudio()
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, sink.kinds())

	require.NoError(t, ui.StartCall("c4", "bob", "Bob", false))
	waitKinds(t, sink, call.PlatformAudioActivated)
	ui.InterruptAudio()
	waitKinds(t, sink, call.PlatformAudioActivated, call.PlatformAudioDeactivated)
}

func TestEndAllCalls(t *testing.T) {
	ui, _ := newUI(t, ModeImmediate)
	require.NoError(t, ui.StartCall("a", "bob", "Bob", false))
	require.NoError(t, ui.DisplayIncomingCall("b", "Carol", "carol", false))
	require.NoError(t, ui.EndAllCalls())
	assert.Empty(t, ui.Calls())
}

func TestAudioRouter(t *testing.T) {
	r := NewAudioRouter()
	var changes []AudioState
	r.OnChange(func(s AudioState) { changes = append(changes, s) })

	assert.Error(t, r.SetSpeakerphoneOn(true))

	require.NoError(t, r.Start(call.MediaAudio, true))
	assert.Equal(t, AudioState{Running: true, Kind: call.MediaAudio, Ringback: true, Route: RouteEarpiece}, r.State())

	require.NoError(t, r.SetSpeakerphoneOn(true))
	assert.Equal(t, RouteSpeaker, r.State().Route)

	require.NoError(t, r.SetKeepScreenOn(true))
	assert.True(t, r.State().KeepScreenOn)

	require.NoError(t, r.Stop())
	assert.Equal(t, AudioState{Route: RouteEarpiece}, r.State())
	require.NoError(t, r.Stop())

	assert.Len(t, changes, 5)
}

func TestAudioRouterVideoDefaultsToSpeaker(t *testing.T) {
	r := NewAudioRouter()
	require.NoError(t, r.Start(call.MediaVideo, false))
	assert.Equal(t, RouteSpeaker, r.State().Route)
}
