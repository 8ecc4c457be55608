package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/opd-ai/toxcall/signaling"
	"github.com/sirupsen/logrus"
)

// setupFunc performs the media setup for one call.
type setupFunc func(ctx context.Context, p PendingCallSetup) error

// setupStrategy decides when media setup runs.
type setupStrategy interface {
	// schedule runs the setup now or parks it until the platform confirms
	// the audio session.
	schedule(ctx context.Context, p PendingCallSetup, run setupFunc) error
	// take removes and returns the parked setup for callID, or any parked
	// setup when callID is empty.
	take(callID string) (PendingCallSetup, bool)
	// discard drops the parked setup for callID, or any setup when callID
	// is empty. It reports whether a setup was dropped.
	discard(callID string) bool
	name() string
}

// immediateSetup runs media setup synchronously and surfaces its error.
type immediateSetup struct{}

func (immediateSetup) schedule(ctx context.Context, p PendingCallSetup, run setupFunc) error {
	return run(ctx, p)
}

func (immediateSetup) take(string) (PendingCallSetup, bool) { return PendingCallSetup{}, false }

func (immediateSetup) discard(string) bool { return false }

func (immediateSetup) name() string { return "immediate" }

// activationGatedSetup holds at most one setup until audio activation.
type activationGatedSetup struct {
	pending *PendingCallSetup
	mu      sync.Mutex
}

func newActivationGatedSetup() *activationGatedSetup {
	return &activationGatedSetup{}
}

func (g *activationGatedSetup) schedule(_ context.Context, p PendingCallSetup, _ setupFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil && g.pending.CallID != p.CallID {
		logrus.WithFields(logrus.Fields{
			"function":  "activationGatedSetup.schedule",
			"replaced":  g.pending.CallID,
			"call_id":   p.CallID,
			"direction": p.Direction,
		}).Warn("Replacing pending call setup")
	}
	g.pending = &p

	logrus.WithFields(logrus.Fields{
		"function":  "activationGatedSetup.schedule",
		"call_id":   p.CallID,
		"direction": p.Direction,
	}).Info("Media setup deferred until audio activation")
	return nil
}

func (g *activationGatedSetup) take(callID string) (PendingCallSetup, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil || (callID != "" && g.pending.CallID != callID) {
		return PendingCallSetup{}, false
	}
	p := *g.pending
	g.pending = nil
	return p, true
}

func (g *activationGatedSetup) discard(callID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil && (callID == "" || g.pending.CallID == callID) {
		g.pending = nil
		return true
	}
	return false
}

func (g *activationGatedSetup) name() string { return "activation_gated" }

// runSetup creates the peer connection, captures local media and performs
// this side's half of the offer/answer exchange. The session is
// re-validated after every suspension point.
func (o *Orchestrator) runSetup(ctx context.Context, p PendingCallSetup) error {
	logrus.WithFields(logrus.Fields{
		"function":  "runSetup",
		"call_id":   p.CallID,
		"direction": p.Direction,
		"kind":      p.MediaKind,
	}).Info("Setting up call media")

	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil || sess.GetCallID() != p.CallID {
		return ErrSetupCancelled
	}
	if err := o.checkpoint(sess); err != nil {
		return err
	}

	servers := o.iceServers.GetIceServers(ctx)
	if err := o.checkpoint(sess); err != nil {
		return err
	}

	conn, err := o.media.CreatePeerConnection(ctx, servers, o.handlersFor(sess))
	if err != nil {
		return fmt.Errorf("%w: create peer connection: %v", ErrMediaUnavailable, err)
	}
	if !o.attachConn(sess, conn) {
		isolate("media.Close", conn.Close)
		return ErrSetupCancelled
	}

	captureCtx, cancel := context.WithTimeout(ctx, o.cfg.CaptureTimeout)
	err = conn.AddLocalTracks(captureCtx, p.MediaKind)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: capture local media: %v", ErrMediaUnavailable, err)
	}
	if err := o.checkpoint(sess); err != nil {
		return err
	}

	if p.Direction == DirectionOutgoing {
		return o.negotiateOffer(ctx, sess, conn)
	}
	return o.negotiateAnswer(ctx, sess, conn, p.RemoteOffer)
}

// attachConn binds conn to sess if sess is still the active session.
func (o *Orchestrator) attachConn(sess *Session, conn PeerConnection) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != sess || sess.IsEnded() {
		return false
	}
	o.conn = conn
	return true
}

func (o *Orchestrator) negotiateOffer(ctx context.Context, sess *Session, conn PeerConnection) error {
	offer, err := conn.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("%w: create offer: %v", ErrMediaUnavailable, err)
	}
	if err := conn.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("%w: set local offer: %v", ErrMediaUnavailable, err)
	}
	if err := o.checkpoint(sess); err != nil {
		return err
	}

	return o.send(ctx, signaling.Signal{
		Kind:   signaling.KindOffer,
		CallID: sess.GetCallID(),
		PeerID: sess.GetPeerID(),
		SDP:    offer.SDP,
		Video:  sess.GetMediaKind().IsVideo(),
	})
}

func (o *Orchestrator) negotiateAnswer(ctx context.Context, sess *Session, conn PeerConnection, remoteOffer string) error {
	if err := conn.SetRemoteDescription(SessionDescription{Type: SDPOffer, SDP: remoteOffer}); err != nil {
		return fmt.Errorf("%w: apply remote offer: %v", ErrMediaUnavailable, err)
	}
	o.flushCandidates(sess, conn)

	answer, err := conn.CreateAnswer(ctx)
	if err != nil {
		return fmt.Errorf("%w: create answer: %v", ErrMediaUnavailable, err)
	}
	if err := conn.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("%w: set local answer: %v", ErrMediaUnavailable, err)
	}
	if err := o.checkpoint(sess); err != nil {
		return err
	}

	return o.send(ctx, signaling.Signal{
		Kind:   signaling.KindAnswer,
		CallID: sess.GetCallID(),
		PeerID: sess.GetPeerID(),
		SDP:    answer.SDP,
	})
}

// flushCandidates marks the remote description applied and hands queued
// candidates to conn in arrival order. Holding mu while draining means a
// candidate arriving concurrently is either queued before the drain or
// applied directly after it, never both.
func (o *Orchestrator) flushCandidates(sess *Session, conn PeerConnection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != sess || o.conn != conn {
		return
	}
	o.remoteDescriptionSet = true

	queued := o.iceQueue.Drain()
	for _, c := range queued {
		isolate("media.AddIceCandidate", func() error { return conn.AddIceCandidate(c) })
	}
	if len(queued) > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "flushCandidates",
			"call_id":  sess.GetCallID(),
			"count":    len(queued),
		}).Debug("Applied queued ICE candidates")
	}
}

// handlersFor builds the media callbacks for sess. Each handler ignores
// events once sess is no longer the active session.
func (o *Orchestrator) handlersFor(sess *Session) MediaHandlers {
	callID := sess.GetCallID()
	return MediaHandlers{
		OnIceCandidate: func(c signaling.IceCandidate) {
			if !o.isCurrent(sess) {
				return
			}
			o.sendBestEffort(context.Background(), signaling.Signal{
				Kind:      signaling.KindIceCandidate,
				CallID:    callID,
				PeerID:    sess.GetPeerID(),
				Candidate: &c,
			})
		},
		OnConnectionStateChange: func(state ConnectionState) {
			o.handleConnectionState(sess, state)
		},
		OnTrack: func(kind MediaKind, trackID string) {
			if !o.isCurrent(sess) {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "OnTrack",
				"call_id":  callID,
				"kind":     kind,
				"track_id": trackID,
			}).Info("Remote track received")
			o.notifyRemoteTrack(callID, kind, trackID)
		},
	}
}

func (o *Orchestrator) handleConnectionState(sess *Session, state ConnectionState) {
	logrus.WithFields(logrus.Fields{
		"function": "handleConnectionState",
		"call_id":  sess.GetCallID(),
		"state":    state,
	}).Info("Peer connection state changed")

	if !o.isCurrent(sess) {
		return
	}

	switch state {
	case ConnectionConnected:
		if !sess.markConnected(o.now()) {
			return
		}
		o.notifyState(sess)
		callID := sess.GetCallID()
		o.withPlatform("platform.ReportCallConnected", func(p PlatformCallAdapter) error {
			return p.ReportCallConnected(callID)
		})
		if sess.GetMediaKind().IsVideo() {
			o.withAudio("audio.SetKeepScreenOn", func(a AudioRouteAdapter) error { return a.SetKeepScreenOn(true) })
		}
	case ConnectionDisconnected, ConnectionFailed:
		// Handlers may run on the engine's goroutine; teardown closes the
		// connection, so it must not run inline.
		go func() {
			if err := o.terminate(context.Background(), sess, StateEnded, true); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "handleConnectionState",
					"call_id":  sess.GetCallID(),
					"error":    err.Error(),
				}).Warn("Cleanup after connection loss reported failures")
			}
		}()
	}
}
