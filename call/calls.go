package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/toxcall/limits"
	"github.com/opd-ai/toxcall/signaling"
	"github.com/sirupsen/logrus"
)

func validatePeer(peerID string) error {
	if err := limits.ValidateIdentifier(peerID, limits.MaxPeerID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPeer, err)
	}
	return nil
}

// recoverBlocking forces a reset when the active session is stale or, with
// no live session, when the cleanup guard has been held too long. It
// returns the live session that still blocks a new call, if any.
func (o *Orchestrator) recoverBlocking(ctx context.Context) *Session {
	o.mu.Lock()
	now := o.nowLocked()
	sess := o.session
	stale := sess != nil && sess.IsStale(now, o.cfg.RingingStaleAfter, o.cfg.ConnectingStaleAfter)
	stuck := o.cleaningUp && now.Sub(o.cleanupStartedAt) > o.cfg.CleanupStuckAfter
	o.mu.Unlock()

	if sess != nil && !stale {
		return sess
	}
	if stale || stuck {
		logrus.WithFields(logrus.Fields{
			"function":      "recoverBlocking",
			"stale_session": stale,
			"cleanup_stuck": stuck,
		}).Warn("Recovering from stale call state")
		if err := o.ForceReset(ctx); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "recoverBlocking",
				"error":    err.Error(),
			}).Warn("Forced reset reported failures")
		}
	}
	return nil
}

// waitSettled blocks until the post-cleanup cooldown has elapsed.
func (o *Orchestrator) waitSettled(ctx context.Context) error {
	o.mu.Lock()
	wait := o.cooldownUntil.Sub(o.nowLocked())
	o.mu.Unlock()
	if wait <= 0 {
		return nil
	}

	logrus.WithFields(logrus.Fields{
		"function": "waitSettled",
		"wait":     wait,
	}).Debug("Waiting for media engine to settle")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StartCall places an outgoing call to peerID and returns its call ID.
//
// It fails with ErrCallInProgress while another live call exists. On
// platforms that own the audio session, media setup is deferred until the
// platform reports activation and StartCall returns once the call is
// registered.
func (o *Orchestrator) StartCall(ctx context.Context, peerID string, kind MediaKind) (string, error) {
	logrus.WithFields(logrus.Fields{
		"function": "StartCall",
		"peer_id":  peerID,
		"kind":     kind,
	}).Info("Starting outgoing call")

	if err := validatePeer(peerID); err != nil {
		return "", err
	}
	if o.recoverBlocking(ctx) != nil {
		logrus.WithFields(logrus.Fields{
			"function": "StartCall",
			"peer_id":  peerID,
		}).Warn("Call already in progress")
		return "", ErrCallInProgress
	}
	if err := o.waitSettled(ctx); err != nil {
		return "", err
	}

	o.mu.Lock()
	if o.session != nil {
		o.mu.Unlock()
		return "", ErrCallInProgress
	}
	now := o.nowLocked()
	sess := NewSession(uuid.NewString(), peerID, DirectionOutgoing, kind, now)
	o.session = sess
	o.mu.Unlock()

	callID := sess.GetCallID()
	o.notifyState(sess)

	o.withAudio("audio.Start", func(a AudioRouteAdapter) error { return a.Start(kind, true) })
	o.withPlatform("platform.StartCall", func(p PlatformCallAdapter) error {
		return p.StartCall(callID, peerID, peerID, kind.IsVideo())
	})

	setup := PendingCallSetup{
		CallID:    callID,
		PeerID:    peerID,
		MediaKind: kind,
		Direction: DirectionOutgoing,
		CreatedAt: now,
	}
	if err := o.strategy.schedule(ctx, setup, o.runSetup); err != nil {
		return "", o.failSetup(ctx, sess, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "StartCall",
		"call_id":  callID,
		"peer_id":  peerID,
	}).Info("Outgoing call started")

	return callID, nil
}

// AcceptCall answers the incoming call callID from peerID.
//
// An empty offer answers the description stored when the call rang. A call
// that arrives through AcceptCall without a prior offer signal is created
// on the spot. Accepting while a different live call exists fails with
// ErrSessionConflict.
func (o *Orchestrator) AcceptCall(ctx context.Context, callID, peerID string, kind MediaKind, offer string) error {
	return o.acceptCall(ctx, callID, peerID, kind, offer, false)
}

// acceptCall implements AcceptCall. fromPlatform is set when the answer
// came from the call UI, which then needs no answer report.
func (o *Orchestrator) acceptCall(ctx context.Context, callID, peerID string, kind MediaKind, offer string, fromPlatform bool) error {
	logrus.WithFields(logrus.Fields{
		"function":      "AcceptCall",
		"call_id":       callID,
		"peer_id":       peerID,
		"kind":          kind,
		"from_platform": fromPlatform,
	}).Info("Accepting incoming call")

	if err := validatePeer(peerID); err != nil {
		return err
	}
	if err := limits.ValidateIdentifier(callID, limits.MaxCallID); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionConflict, err)
	}

	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()

	if sess != nil && sess.GetCallID() != callID {
		if o.recoverBlocking(ctx) != nil {
			return ErrSessionConflict
		}
		sess = nil
	}
	if sess != nil {
		switch sess.GetState() {
		case StateConnecting, StateConnected:
			logrus.WithFields(logrus.Fields{
				"function": "AcceptCall",
				"call_id":  callID,
			}).Debug("Call already accepted")
			return nil
		case StateEnded, StateNoAnswer:
			return ErrNoActiveCall
		}
	}

	if err := o.waitSettled(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	if sess == nil {
		if o.session != nil {
			o.mu.Unlock()
			return ErrSessionConflict
		}
		sess = NewSession(callID, peerID, DirectionIncoming, kind, o.nowLocked())
		o.session = sess
	} else if o.session != sess {
		o.mu.Unlock()
		return ErrSetupCancelled
	}
	stored := sess.takePendingRemoteOffer()
	if offer == "" {
		offer = stored
	}
	if offer == "" {
		td := o.detachLocked()
		o.mu.Unlock()
		sess.finish(StateEnded)
		o.notifyState(sess)
		o.cleanupWithTimeout(td)
		return ErrMissingOffer
	}
	if err := limits.ValidateSDP(offer); err != nil {
		o.mu.Unlock()
		return o.failSetup(ctx, sess, fmt.Errorf("%w: %v", ErrMediaUnavailable, err))
	}
	if sess.GetMediaKind() != kind {
		sess.setMediaKind(kind)
	}
	sess.advanceTo(StateConnecting)
	createdAt := o.nowLocked()
	o.mu.Unlock()

	o.notifyState(sess)
	o.withAudio("audio.Start", func(a AudioRouteAdapter) error { return a.Start(kind, false) })
	if kind.IsVideo() {
		o.withAudio("audio.SetSpeakerphoneOn", func(a AudioRouteAdapter) error { return a.SetSpeakerphoneOn(true) })
	}

	setup := PendingCallSetup{
		CallID:      callID,
		PeerID:      peerID,
		MediaKind:   kind,
		Direction:   DirectionIncoming,
		RemoteOffer: offer,
		CreatedAt:   createdAt,
	}
	if err := o.strategy.schedule(ctx, setup, o.runSetup); err != nil {
		return o.failSetup(ctx, sess, err)
	}
	if !fromPlatform {
		o.withPlatform("platform.AnswerCall", func(p PlatformCallAdapter) error { return p.AnswerCall(callID) })
	}
	return nil
}

// RejectCall declines callID. The peer is told the call was rejected and
// cleanup runs whether or not the call is still the active one.
func (o *Orchestrator) RejectCall(ctx context.Context, callID, peerID string) error {
	logrus.WithFields(logrus.Fields{
		"function": "RejectCall",
		"call_id":  callID,
		"peer_id":  peerID,
	}).Info("Rejecting call")

	o.sendBestEffort(ctx, signaling.Signal{
		Kind:   signaling.KindReject,
		CallID: callID,
		PeerID: peerID,
		Reason: signaling.ReasonRejected,
	})

	o.mu.Lock()
	var td *teardown
	if o.session != nil && o.session.GetCallID() == callID {
		td = o.detachLocked()
	} else {
		td = &teardown{callID: callID}
	}
	o.mu.Unlock()

	if td.session != nil && td.session.finish(StateEnded) {
		o.notifyState(td.session)
	}
	return o.cleanupWithTimeout(td)
}

// EndCall hangs up the active call. It is idempotent: concurrent or
// repeated calls perform the teardown exactly once.
func (o *Orchestrator) EndCall(ctx context.Context) error {
	return o.terminate(ctx, nil, StateEnded, true)
}

// terminate ends sess (or the active session when sess is nil) in state
// final. Only the caller that detaches the session runs its cleanup.
func (o *Orchestrator) terminate(ctx context.Context, sess *Session, final State, notifyPeer bool) error {
	o.mu.Lock()
	if o.session == nil || (sess != nil && o.session != sess) {
		o.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "terminate",
		}).Debug("No matching active call, nothing to end")
		return nil
	}
	td := o.detachLocked()
	o.mu.Unlock()

	sess = td.session
	logrus.WithFields(logrus.Fields{
		"function": "terminate",
		"call_id":  td.callID,
		"final":    final,
		"notify":   notifyPeer,
	}).Info("Ending call")

	if sess.finish(final) {
		o.notifyState(sess)
	}
	if notifyPeer {
		o.sendBestEffort(ctx, signaling.Signal{
			Kind:   signaling.KindEnd,
			CallID: td.callID,
			PeerID: sess.GetPeerID(),
		})
	}
	return o.cleanupWithTimeout(td)
}

// failSetup tears the call down after a setup error and returns err.
// A cancelled setup is left alone: whoever ended the call owns its cleanup.
func (o *Orchestrator) failSetup(ctx context.Context, sess *Session, err error) error {
	if errors.Is(err, ErrSetupCancelled) {
		logrus.WithFields(logrus.Fields{
			"function": "failSetup",
			"call_id":  sess.GetCallID(),
		}).Debug("Setup cancelled by call end")
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "failSetup",
		"call_id":  sess.GetCallID(),
		"error":    err.Error(),
	}).Error("Call setup failed")

	if cleanupErr := o.terminate(ctx, sess, StateEnded, true); cleanupErr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "failSetup",
			"call_id":  sess.GetCallID(),
			"error":    cleanupErr.Error(),
		}).Warn("Cleanup after failed setup reported failures")
	}
	return err
}
