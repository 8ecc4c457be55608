package media

import (
	"github.com/opd-ai/toxcall/call"
	"github.com/opd-ai/toxcall/signaling"
	"github.com/pion/webrtc/v4"
)

func toWebRTCServers(servers []call.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		server := webrtc.ICEServer{URLs: append([]string(nil), s.URLs...)}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		out = append(out, server)
	}
	return out
}

func toWebRTCDescription(desc call.SessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{
		Type: webrtc.NewSDPType(string(desc.Type)),
		SDP:  desc.SDP,
	}
}

func fromWebRTCDescription(desc webrtc.SessionDescription) call.SessionDescription {
	return call.SessionDescription{
		Type: call.SDPType(desc.Type.String()),
		SDP:  desc.SDP,
	}
}

func toCandidateInit(c signaling.IceCandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromCandidateInit(c webrtc.ICECandidateInit) signaling.IceCandidate {
	return signaling.IceCandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromConnectionState(s webrtc.PeerConnectionState) call.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return call.ConnectionConnecting
	case webrtc.PeerConnectionStateConnected:
		return call.ConnectionConnected
	case webrtc.PeerConnectionStateDisconnected:
		return call.ConnectionDisconnected
	case webrtc.PeerConnectionStateFailed:
		return call.ConnectionFailed
	case webrtc.PeerConnectionStateClosed:
		return call.ConnectionClosed
	default:
		return call.ConnectionNew
	}
}

func fromCodecType(t webrtc.RTPCodecType) call.MediaKind {
	if t == webrtc.RTPCodecTypeVideo {
		return call.MediaVideo
	}
	return call.MediaAudio
}

// collectStats folds a pion stats report into transport-level totals.
// RTT comes from the nominated candidate pair.
func collectStats(report webrtc.StatsReport) call.MediaStats {
	var out call.MediaStats
	for _, s := range report {
		switch st := s.(type) {
		case webrtc.OutboundRTPStreamStats:
			out.BytesSent += st.BytesSent
			out.PacketsSent += st.PacketsSent
		case webrtc.InboundRTPStreamStats:
			out.BytesReceived += st.BytesReceived
			out.PacketsReceived += st.PacketsReceived
			out.PacketsLost += st.PacketsLost
			if st.Jitter > out.Jitter {
				out.Jitter = st.Jitter
			}
		case webrtc.ICECandidatePairStats:
			if st.Nominated {
				out.CurrentRoundTripTime = st.CurrentRoundTripTime
			}
		}
	}
	return out
}
