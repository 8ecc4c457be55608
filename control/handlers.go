package control

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opd-ai/toxcall/call"
)

type startRequest struct {
	PeerID string `json:"peerId"`
	Video  bool   `json:"video"`
}

type acceptRequest struct {
	CallID string `json:"callId"`
	PeerID string `json:"peerId"`
	Video  bool   `json:"video"`
	// Offer is optional; the offer received while ringing is used if empty.
	Offer string `json:"offer,omitempty"`
}

type rejectRequest struct {
	CallID string `json:"callId"`
	PeerID string `json:"peerId"`
}

type statusResponse struct {
	Active  bool              `json:"active"`
	Session *call.SessionInfo `json:"session,omitempty"`
}

type statsResponse struct {
	CallID           string     `json:"callId"`
	State            call.State `json:"state"`
	DurationSeconds  float64    `json:"durationSeconds"`
	BytesSent        uint64     `json:"bytesSent"`
	BytesReceived    uint64     `json:"bytesReceived"`
	PacketsSent      uint32     `json:"packetsSent"`
	PacketsReceived  uint32     `json:"packetsReceived"`
	PacketsLost      int32      `json:"packetsLost"`
	Jitter           float64    `json:"jitter"`
	RoundTripTime    float64    `json:"roundTripTime"`
	RemoteAudioLevel float64    `json:"remoteAudioLevel"`
	PacketLoss       float64    `json:"packetLossPercent"`
	Quality          string     `json:"quality"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	info, ok := s.ctrl.CurrentSession()
	if !ok {
		writeJSON(w, http.StatusOK, statusResponse{})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Active: true, Session: &info})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decode(w, r, &req) {
		return
	}
	callID, err := s.ctrl.StartCall(r.Context(), req.PeerID, call.MediaKindFromVideo(req.Video))
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"callId": callID})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CallID == "" {
		writeError(w, http.StatusBadRequest, "callId is required")
		return
	}
	err := s.ctrl.AcceptCall(r.Context(), req.CallID, req.PeerID, call.MediaKindFromVideo(req.Video), req.Offer)
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"callId": req.CallID})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CallID == "" {
		writeError(w, http.StatusBadRequest, "callId is required")
		return
	}
	if err := s.ctrl.RejectCall(r.Context(), req.CallID, req.PeerID); err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"callId": req.CallID})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.ctrl.CurrentSession(); !ok {
		writeCallError(w, call.ErrNoActiveCall)
		return
	}
	if err := s.ctrl.EndCall(r.Context()); err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.ForceReset(r.Context()); err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var toggle func() bool
	switch chi.URLParam(r, "toggle") {
	case "mute":
		toggle = s.ctrl.ToggleMute
	case "video":
		toggle = s.ctrl.ToggleVideo
	case "camera":
		toggle = s.ctrl.SwitchCamera
	case "speaker":
		toggle = s.ctrl.ToggleSpeaker
	default:
		writeError(w, http.StatusNotFound, "unknown control")
		return
	}
	if _, ok := s.ctrl.CurrentSession(); !ok {
		writeCallError(w, call.ErrNoActiveCall)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"value": toggle()})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.ctrl.GetCallStats()
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		CallID:           stats.CallID,
		State:            stats.State,
		DurationSeconds:  stats.Duration.Seconds(),
		BytesSent:        stats.Media.BytesSent,
		BytesReceived:    stats.Media.BytesReceived,
		PacketsSent:      stats.Media.PacketsSent,
		PacketsReceived:  stats.Media.PacketsReceived,
		PacketsLost:      stats.Media.PacketsLost,
		Jitter:           stats.Media.Jitter,
		RoundTripTime:    stats.Media.CurrentRoundTripTime,
		RemoteAudioLevel: stats.Media.RemoteAudioLevel,
		PacketLoss:       stats.Media.PacketLossPercent(),
		Quality:          stats.Quality.String(),
	})
}
