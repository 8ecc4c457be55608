package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opd-ai/toxcall/call"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	session    *call.SessionInfo
	startErr   error
	acceptErr  error
	rejectErr  error
	muted      bool
	resets     int
	ended      int
	lastKind   call.MediaKind
	lastOffer  string
	lastReject [2]string
}

func (f *fakeController) StartCall(_ context.Context, peerID string, kind call.MediaKind) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.lastKind = kind
	f.session = &call.SessionInfo{CallID: "call-1", PeerID: peerID, MediaKind: kind, State: call.StateCalling}
	return "call-1", nil
}

func (f *fakeController) AcceptCall(_ context.Context, callID, _ string, kind call.MediaKind, offer string) error {
	f.lastKind, f.lastOffer = kind, offer
	return f.acceptErr
}

func (f *fakeController) RejectCall(_ context.Context, callID, peerID string) error {
	f.lastReject = [2]string{callID, peerID}
	return f.rejectErr
}

func (f *fakeController) EndCall(context.Context) error {
	f.ended++
	f.session = nil
	return nil
}

func (f *fakeController) ForceReset(context.Context) error {
	f.resets++
	return nil
}

func (f *fakeController) ToggleMute() bool    { f.muted = !f.muted; return f.muted }
func (f *fakeController) ToggleVideo() bool   { return false }
func (f *fakeController) SwitchCamera() bool  { return true }
func (f *fakeController) ToggleSpeaker() bool { return true }

func (f *fakeController) CurrentSession() (call.SessionInfo, bool) {
	if f.session == nil {
		return call.SessionInfo{}, false
	}
	return *f.session, true
}

func (f *fakeController) GetCallStats() (call.CallStats, error) {
	if f.session == nil {
		return call.CallStats{}, call.ErrNoActiveCall
	}
	return call.CallStats{
		CallID:   f.session.CallID,
		State:    call.StateConnected,
		Duration: 90 * time.Second,
		Media:    call.MediaStats{BytesSent: 1000, RemoteAudioLevel: 0.25},
	}, nil
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func newHandler(ctrl Controller) http.Handler {
	return NewServer(ctrl, Options{AllowedOrigins: []string{"http://localhost:3000"}}).Handler()
}

func TestCallLifecycle(t *testing.T) {
	ctrl := &fakeController{}
	h := newHandler(ctrl)

	rec, resp := do(t, h, http.MethodGet, "/api/call", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"active": false}, resp.Data)

	rec, resp = do(t, h, http.MethodPost, "/api/call", startRequest{PeerID: "bob", Video: true})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, map[string]any{"callId": "call-1"}, resp.Data)
	assert.Equal(t, call.MediaVideo, ctrl.lastKind)

	rec, resp = do(t, h, http.MethodGet, "/api/call", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	status := resp.Data.(map[string]any)
	assert.Equal(t, true, status["active"])
	assert.Equal(t, "bob", status["session"].(map[string]any)["peerId"])

	rec, resp = do(t, h, http.MethodPost, "/api/call/mute", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"value": true}, resp.Data)

	rec, resp = do(t, h, http.MethodGet, "/api/call/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	stats := resp.Data.(map[string]any)
	assert.Equal(t, 90.0, stats["durationSeconds"])
	assert.Equal(t, 0.25, stats["remoteAudioLevel"])
	assert.Equal(t, "excellent", stats["quality"])

	rec, _ = do(t, h, http.MethodDelete, "/api/call", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.ended)

	rec, resp = do(t, h, http.MethodDelete, "/api/call", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestStartErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{call.ErrCallInProgress, http.StatusConflict},
		{call.ErrInvalidPeer, http.StatusBadRequest},
		{call.ErrSignalingUnavailable, http.StatusServiceUnavailable},
		{call.ErrMediaUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		ctrl := &fakeController{startErr: tc.err}
		rec, resp := do(t, newHandler(ctrl), http.MethodPost, "/api/call", startRequest{PeerID: "bob"})
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
		assert.Equal(t, tc.err.Error(), resp.Error)
	}
}

func TestAcceptAndReject(t *testing.T) {
	ctrl := &fakeController{}
	h := newHandler(ctrl)

	rec, _ := do(t, h, http.MethodPost, "/api/call/accept", acceptRequest{PeerID: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/call/accept", acceptRequest{CallID: "c1", PeerID: "alice", Offer: "v=0"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v=0", ctrl.lastOffer)
	assert.Equal(t, call.MediaAudio, ctrl.lastKind)

	ctrl.acceptErr = call.ErrMissingOffer
	rec, _ = do(t, h, http.MethodPost, "/api/call/accept", acceptRequest{CallID: "c1", PeerID: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/call/reject", rejectRequest{CallID: "c2", PeerID: "carol"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [2]string{"c2", "carol"}, ctrl.lastReject)
}

func TestInvalidBody(t *testing.T) {
	h := newHandler(&fakeController{})
	req := httptest.NewRequest(http.MethodPost, "/api/call", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTogglesRequireCall(t *testing.T) {
	h := newHandler(&fakeController{})

	rec, _ := do(t, h, http.MethodPost, "/api/call/speaker", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/call/hologram", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/call/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReset(t *testing.T) {
	ctrl := &fakeController{}
	rec, _ := do(t, newHandler(ctrl), http.MethodPost, "/api/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.resets)
}

func TestCORSPreflight(t *testing.T) {
	h := newHandler(&fakeController{})

	req := httptest.NewRequest(http.MethodOptions, "/api/call", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/call", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthz(t *testing.T) {
	rec, resp := do(t, newHandler(&fakeController{}), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}
