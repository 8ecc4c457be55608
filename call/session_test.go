package call

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionInitialState(t *testing.T) {
	now := time.Now()

	out := NewSession("c1", "bob", DirectionOutgoing, MediaAudio, now)
	assert.Equal(t, StateCalling, out.GetState())
	assert.False(t, out.IsCameraOn())
	assert.False(t, out.IsSpeakerOn())
	assert.True(t, out.IsFrontCamera())

	in := NewSession("c2", "alice", DirectionIncoming, MediaVideo, now)
	assert.Equal(t, StateRinging, in.GetState())
	assert.True(t, in.IsCameraOn())
	assert.True(t, in.IsSpeakerOn())
	assert.Equal(t, now, in.GetCreatedAt())
}

func TestSessionStateOnlyAdvances(t *testing.T) {
	s := NewSession("c1", "bob", DirectionOutgoing, MediaAudio, time.Now())

	assert.True(t, s.advanceTo(StateConnecting))
	assert.True(t, s.markConnected(time.Now()))
	assert.False(t, s.advanceTo(StateConnecting), "connected never regresses")
	assert.Equal(t, StateConnected, s.GetState())

	assert.True(t, s.finish(StateNoAnswer))
	assert.False(t, s.finish(StateEnded), "terminal state is kept")
	assert.Equal(t, StateNoAnswer, s.GetState())
	assert.True(t, s.IsEnded())
	assert.False(t, s.markConnected(time.Now()))
}

func TestSessionDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSession("c1", "bob", DirectionOutgoing, MediaAudio, start)
	assert.Zero(t, s.Duration(start.Add(time.Minute)))

	s.markConnected(start.Add(10 * time.Second))
	assert.Equal(t, 50*time.Second, s.Duration(start.Add(time.Minute)))
}

func TestSessionIsStale(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ringing, connecting := 60*time.Second, 30*time.Second

	tests := []struct {
		name  string
		state State
		age   time.Duration
		stale bool
	}{
		{"fresh calling", StateCalling, 59 * time.Second, false},
		{"old calling", StateCalling, 61 * time.Second, true},
		{"old ringing", StateRinging, 61 * time.Second, true},
		{"fresh connecting", StateConnecting, 29 * time.Second, false},
		{"old connecting", StateConnecting, 31 * time.Second, true},
		{"long connected call", StateConnected, time.Hour, false},
		{"ended", StateEnded, 0, true},
		{"no answer", StateNoAnswer, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("c1", "bob", DirectionOutgoing, MediaAudio, created)
			s.SetState(tt.state)
			assert.Equal(t, tt.stale, s.IsStale(created.Add(tt.age), ringing, connecting))
		})
	}
}

func TestSessionInfoDisplayState(t *testing.T) {
	s := NewSession("c1", "bob", DirectionOutgoing, MediaAudio, time.Now())
	assert.Equal(t, StateCalling, s.Info().DisplayState)

	s.setRemoteRinging(true)
	info := s.Info()
	assert.Equal(t, StateCalling, info.State)
	assert.Equal(t, StateRinging, info.DisplayState)

	s.markConnected(time.Now())
	assert.Equal(t, StateConnected, s.Info().DisplayState)
}

func TestSessionPendingOffer(t *testing.T) {
	s := NewSession("c1", "alice", DirectionIncoming, MediaAudio, time.Now())
	s.setPendingRemoteOffer("v=0")
	assert.Equal(t, "v=0", s.GetPendingRemoteOffer())
	assert.Equal(t, "v=0", s.takePendingRemoteOffer())
	assert.Empty(t, s.takePendingRemoteOffer())
}

func TestSetMediaKindDowngrade(t *testing.T) {
	s := NewSession("c1", "alice", DirectionIncoming, MediaVideo, time.Now())
	s.setMediaKind(MediaAudio)
	assert.Equal(t, MediaAudio, s.GetMediaKind())
	assert.False(t, s.IsCameraOn())
}
