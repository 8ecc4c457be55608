package media

import (
	"testing"

	"github.com/opd-ai/toxcall/call"
	"github.com/opd-ai/toxcall/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
)

func TestToWebRTCServers(t *testing.T) {
	servers := toWebRTCServers([]call.ICEServer{
		{URLs: []string{"turn:turn.example.org:3478"}, Username: "u", Credential: "p"},
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	})

	assert.Len(t, servers, 2)
	assert.Equal(t, "u", servers[0].Username)
	assert.Equal(t, "p", servers[0].Credential)
	assert.Empty(t, servers[1].Username)
	assert.Empty(t, servers[1].Credential)
}

func TestDescriptionRoundTrip(t *testing.T) {
	desc := call.SessionDescription{Type: call.SDPAnswer, SDP: "v=0"}
	w := toWebRTCDescription(desc)
	assert.Equal(t, webrtc.SDPTypeAnswer, w.Type)
	assert.Equal(t, desc, fromWebRTCDescription(w))
}

func TestCandidateConversion(t *testing.T) {
	mid := "audio"
	idx := uint16(1)
	c := signaling.IceCandidate{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx}

	init := toCandidateInit(c)
	assert.Equal(t, c.Candidate, init.Candidate)
	assert.Equal(t, &mid, init.SDPMid)
	assert.Equal(t, c, fromCandidateInit(init))
}

func TestConnectionStateMapping(t *testing.T) {
	assert.Equal(t, call.ConnectionConnected, fromConnectionState(webrtc.PeerConnectionStateConnected))
	assert.Equal(t, call.ConnectionFailed, fromConnectionState(webrtc.PeerConnectionStateFailed))
	assert.Equal(t, call.ConnectionDisconnected, fromConnectionState(webrtc.PeerConnectionStateDisconnected))
	assert.Equal(t, call.ConnectionNew, fromConnectionState(webrtc.PeerConnectionStateNew))
}

func TestCollectStats(t *testing.T) {
	report := webrtc.StatsReport{
		"out-audio": webrtc.OutboundRTPStreamStats{BytesSent: 100, PacketsSent: 10},
		"out-video": webrtc.OutboundRTPStreamStats{BytesSent: 400, PacketsSent: 20},
		"in-audio":  webrtc.InboundRTPStreamStats{BytesReceived: 300, PacketsReceived: 12, PacketsLost: 2, Jitter: 0.01},
		"pair-a":    webrtc.ICECandidatePairStats{Nominated: true, CurrentRoundTripTime: 0.042},
		"pair-b":    webrtc.ICECandidatePairStats{Nominated: false, CurrentRoundTripTime: 0.9},
	}

	stats := collectStats(report)
	assert.Equal(t, uint64(500), stats.BytesSent)
	assert.Equal(t, uint32(30), stats.PacketsSent)
	assert.Equal(t, uint64(300), stats.BytesReceived)
	assert.Equal(t, int32(2), stats.PacketsLost)
	assert.InDelta(t, 0.042, stats.CurrentRoundTripTime, 1e-9)
}

func TestFromCodecType(t *testing.T) {
	assert.Equal(t, call.MediaVideo, fromCodecType(webrtc.RTPCodecTypeVideo))
	assert.Equal(t, call.MediaAudio, fromCodecType(webrtc.RTPCodecTypeAudio))
}
