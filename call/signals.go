package call

import (
	"context"
	"fmt"

	"github.com/opd-ai/toxcall/signaling"
	"github.com/sirupsen/logrus"
)

// HandleMessage decodes one inbound signaling message and dispatches it.
// Messages that carry no call signal are ignored.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg signaling.Message) error {
	sig, ok, err := o.codec.Decode(msg)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleMessage",
			"type":     msg.Type,
			"error":    err.Error(),
		}).Warn("Dropping malformed signaling message")
		return err
	}
	if !ok {
		return nil
	}
	return o.HandleSignal(ctx, sig)
}

// HandleSignal applies one decoded signal from sig.PeerID.
func (o *Orchestrator) HandleSignal(ctx context.Context, sig signaling.Signal) error {
	logrus.WithFields(logrus.Fields{
		"function": "HandleSignal",
		"kind":     sig.Kind,
		"call_id":  sig.CallID,
		"peer_id":  sig.PeerID,
	}).Debug("Handling signal")

	switch sig.Kind {
	case signaling.KindOffer:
		return o.handleOffer(ctx, sig)
	case signaling.KindAnswer:
		return o.handleAnswer(ctx, sig)
	case signaling.KindIceCandidate:
		return o.handleIceCandidate(sig)
	case signaling.KindReject, signaling.KindEnd:
		return o.handleRemoteEnd(ctx, sig)
	case signaling.KindRinging:
		o.handleRinging(sig)
		return nil
	case signaling.KindRecipientOffline:
		return o.handleRecipientOffline(ctx, sig)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "HandleSignal",
			"kind":     sig.Kind,
		}).Warn("Ignoring unknown signal kind")
		return nil
	}
}

func (o *Orchestrator) handleOffer(ctx context.Context, sig signaling.Signal) error {
	o.mu.Lock()
	cur := o.session
	o.mu.Unlock()
	if cur != nil && cur.GetCallID() == sig.CallID {
		logrus.WithFields(logrus.Fields{
			"function": "handleOffer",
			"call_id":  sig.CallID,
		}).Debug("Duplicate offer ignored")
		return nil
	}

	busy := func() error {
		logrus.WithFields(logrus.Fields{
			"function": "handleOffer",
			"call_id":  sig.CallID,
			"peer_id":  sig.PeerID,
		}).Info("Busy, rejecting incoming call")
		o.sendBestEffort(ctx, signaling.Signal{
			Kind:   signaling.KindReject,
			CallID: sig.CallID,
			PeerID: sig.PeerID,
			Reason: signaling.ReasonBusy,
		})
		return nil
	}

	if o.recoverBlocking(ctx) != nil {
		return busy()
	}

	o.mu.Lock()
	if o.session != nil {
		o.mu.Unlock()
		return busy()
	}
	sess := NewSession(sig.CallID, sig.PeerID, DirectionIncoming, MediaKindFromVideo(sig.Video), o.nowLocked())
	sess.setPendingRemoteOffer(sig.SDP)
	o.session = sess
	o.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "handleOffer",
		"call_id":  sig.CallID,
		"peer_id":  sig.PeerID,
		"video":    sig.Video,
	}).Info("Incoming call ringing")

	o.notifyState(sess)
	o.notifyIncoming(sess)
	o.withPlatform("platform.DisplayIncomingCall", func(p PlatformCallAdapter) error {
		return p.DisplayIncomingCall(sig.CallID, sig.PeerID, sig.PeerID, sig.Video)
	})
	o.sendBestEffort(ctx, signaling.Signal{
		Kind:   signaling.KindRinging,
		CallID: sig.CallID,
		PeerID: sig.PeerID,
	})
	return nil
}

func (o *Orchestrator) handleAnswer(ctx context.Context, sig signaling.Signal) error {
	o.mu.Lock()
	sess, conn := o.session, o.conn
	if sess == nil || sess.GetCallID() != sig.CallID || sess.GetDirection() != DirectionOutgoing || conn == nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: unexpected answer for call %s", ErrSessionConflict, sig.CallID)
	}
	if o.remoteDescriptionSet {
		o.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "handleAnswer",
			"call_id":  sig.CallID,
		}).Debug("Duplicate answer ignored")
		return nil
	}
	o.mu.Unlock()

	if err := conn.SetRemoteDescription(SessionDescription{Type: SDPAnswer, SDP: sig.SDP}); err != nil {
		err = fmt.Errorf("%w: apply remote answer: %v", ErrMediaUnavailable, err)
		return o.failSetup(ctx, sess, err)
	}
	o.flushCandidates(sess, conn)
	if !o.isCurrent(sess) {
		return nil
	}

	sess.setRemoteRinging(false)
	if sess.advanceTo(StateConnecting) {
		o.notifyState(sess)
	}
	kind := sess.GetMediaKind()
	o.withAudio("audio.Start", func(a AudioRouteAdapter) error { return a.Start(kind, false) })
	return nil
}

func (o *Orchestrator) handleIceCandidate(sig signaling.Signal) error {
	if sig.Candidate == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	sess := o.session
	if sess == nil || sess.GetCallID() != sig.CallID {
		return fmt.Errorf("%w: candidate for unknown call %s", ErrSessionConflict, sig.CallID)
	}
	if o.conn == nil || !o.remoteDescriptionSet {
		o.iceQueue.Push(*sig.Candidate)
		return nil
	}
	conn, candidate := o.conn, *sig.Candidate
	return isolate("media.AddIceCandidate", func() error { return conn.AddIceCandidate(candidate) }).Err
}

func (o *Orchestrator) handleRemoteEnd(ctx context.Context, sig signaling.Signal) error {
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil || sess.GetCallID() != sig.CallID {
		logrus.WithFields(logrus.Fields{
			"function": "handleRemoteEnd",
			"call_id":  sig.CallID,
		}).Debug("End for inactive call ignored")
		o.strategy.discard(sig.CallID)
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "handleRemoteEnd",
		"call_id":  sig.CallID,
		"kind":     sig.Kind,
		"reason":   sig.Reason,
	}).Info("Peer ended call")
	return o.terminate(ctx, sess, StateEnded, false)
}

func (o *Orchestrator) handleRinging(sig signaling.Signal) {
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil || sess.GetCallID() != sig.CallID || sess.GetDirection() != DirectionOutgoing {
		return
	}
	if sess.GetState() != StateCalling {
		return
	}
	sess.setRemoteRinging(true)
	o.notifyState(sess)
}

func (o *Orchestrator) handleRecipientOffline(ctx context.Context, sig signaling.Signal) error {
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil || sess.GetDirection() != DirectionOutgoing {
		return nil
	}
	if sig.CallID != "" && sess.GetCallID() != sig.CallID {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "handleRecipientOffline",
		"call_id":  sess.GetCallID(),
		"peer_id":  sess.GetPeerID(),
	}).Info("Callee is offline")
	return o.terminate(ctx, sess, StateNoAnswer, false)
}
