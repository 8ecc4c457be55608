package call

import (
	"errors"
	"testing"

	"github.com/opd-ai/toxcall/signaling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolate(t *testing.T) {
	ok := isolate("step.ok", func() error { return nil })
	assert.True(t, ok.OK())
	assert.Equal(t, "step.ok", ok.Step)

	failed := isolate("step.fail", func() error { return errors.New("boom") })
	assert.False(t, failed.OK())
	assert.EqualError(t, failed.Err, "boom")

	panicked := isolate("step.panic", func() error { panic("kaboom") })
	require.Error(t, panicked.Err)
	assert.Contains(t, panicked.Err.Error(), "kaboom")
}

func TestJoinStepErrors(t *testing.T) {
	assert.NoError(t, joinStepErrors(nil))
	assert.NoError(t, joinStepErrors([]StepResult{{Step: "a"}}))

	sentinel := errors.New("closed twice")
	err := joinStepErrors([]StepResult{
		{Step: "a"},
		{Step: "media.Close", Err: sentinel},
		{Step: "audio.Stop", Err: errors.New("no route")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "media.Close")
	assert.Contains(t, err.Error(), "audio.Stop")
}

func TestIceCandidateQueue(t *testing.T) {
	q := NewIceCandidateQueue()
	assert.Empty(t, q.Drain())

	q.Push(candidate("a"))
	q.Push(candidate("b"))
	assert.Equal(t, 2, q.Len())

	got := q.Drain()
	assert.Equal(t, []signaling.IceCandidate{candidate("a"), candidate("b")}, got)
	assert.Zero(t, q.Len())
}

func TestPendingCallSetupExpiry(t *testing.T) {
	clock := newMockTimeProvider()
	p := PendingCallSetup{CallID: "c1", CreatedAt: clock.Now()}

	clock.Advance(DefaultConfig().PendingSetupTTL)
	assert.False(t, p.IsExpired(clock.Now(), DefaultConfig().PendingSetupTTL))

	clock.Advance(1)
	assert.True(t, p.IsExpired(clock.Now(), DefaultConfig().PendingSetupTTL))
}

func TestCapability(t *testing.T) {
	none := Unavailable[AudioRouteAdapter]()
	_, ok := none.Get()
	assert.False(t, ok)
	assert.False(t, none.IsAvailable())

	audio := &mockAudio{}
	some := Available[AudioRouteAdapter](audio)
	got, ok := some.Get()
	assert.True(t, ok)
	assert.Same(t, audio, got)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.DefaultICEServers = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SettleDelay = -1
	assert.Error(t, cfg.Validate())
}
