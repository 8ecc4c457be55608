package call

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// HandleNativeUIEvent applies an event raised by the platform call UI.
// Events arriving before MarkReady are buffered and replayed in order.
func (o *Orchestrator) HandleNativeUIEvent(ctx context.Context, ev PlatformEvent) {
	if !o.events.Offer(ev) {
		return
	}
	o.dispatchNativeEvent(ctx, ev)
}

// MarkReady signals that the host finished initialising. Buffered platform
// events are replayed in arrival order, followed by any that arrive during
// the replay.
func (o *Orchestrator) MarkReady(ctx context.Context) {
	events := o.events.MarkReady()
	replayed := 0
	for len(events) > 0 {
		for _, ev := range events {
			o.dispatchNativeEvent(ctx, ev)
		}
		replayed += len(events)
		events = o.events.ReplayNext()
	}

	logrus.WithFields(logrus.Fields{
		"function": "MarkReady",
		"replayed": replayed,
	}).Info("Orchestrator ready for platform events")
}

func (o *Orchestrator) dispatchNativeEvent(ctx context.Context, ev PlatformEvent) {
	logrus.WithFields(logrus.Fields{
		"function": "dispatchNativeEvent",
		"kind":     ev.Kind,
		"call_id":  ev.CallID,
	}).Debug("Dispatching platform event")

	switch ev.Kind {
	case PlatformAnswer:
		o.handleNativeAnswer(ctx, ev)
	case PlatformEnd:
		o.handleNativeEnd(ctx, ev)
	case PlatformMute:
		if o.matchesActive(ev.CallID) != nil {
			o.SetMuted(ev.Muted)
		}
	case PlatformAudioActivated:
		o.onAudioActivated(ctx, ev.CallID)
	case PlatformAudioDeactivated:
		o.onAudioDeactivated(ctx, ev.CallID)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "dispatchNativeEvent",
			"kind":     ev.Kind,
		}).Warn("Ignoring unknown platform event")
	}
}

// matchesActive returns the active session when callID names it or is empty.
func (o *Orchestrator) matchesActive(callID string) *Session {
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil || (callID != "" && sess.GetCallID() != callID) {
		return nil
	}
	return sess
}

func (o *Orchestrator) handleNativeAnswer(ctx context.Context, ev PlatformEvent) {
	sess := o.matchesActive(ev.CallID)
	if sess == nil || sess.GetDirection() != DirectionIncoming {
		logrus.WithFields(logrus.Fields{
			"function": "handleNativeAnswer",
			"call_id":  ev.CallID,
		}).Warn("Answer for unknown call ignored")
		return
	}
	callID := sess.GetCallID()
	if err := o.acceptCall(ctx, callID, sess.GetPeerID(), sess.GetMediaKind(), "", true); err != nil {
		o.reportError(callID, err)
	}
}

func (o *Orchestrator) handleNativeEnd(ctx context.Context, ev PlatformEvent) {
	sess := o.matchesActive(ev.CallID)
	if sess == nil {
		return
	}
	var err error
	if sess.GetDirection() == DirectionIncoming && sess.GetState() == StateRinging {
		err = o.RejectCall(ctx, sess.GetCallID(), sess.GetPeerID())
	} else {
		err = o.terminate(ctx, sess, StateEnded, true)
	}
	if err != nil {
		o.reportError(sess.GetCallID(), err)
	}
}

// onAudioActivated runs the deferred setup once the platform grants the
// audio session, provided its call is still live, permitted and recent.
// An activation naming another call leaves the pending setup alone.
func (o *Orchestrator) onAudioActivated(ctx context.Context, callID string) {
	p, ok := o.strategy.take(callID)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "onAudioActivated",
			"call_id":  callID,
		}).Debug("Audio activated with no pending setup")
		return
	}

	o.mu.Lock()
	sess := o.session
	now := o.nowLocked()
	o.mu.Unlock()

	discard := func(reason string) {
		logrus.WithFields(logrus.Fields{
			"function": "onAudioActivated",
			"call_id":  p.CallID,
			"reason":   reason,
		}).Warn("Discarding pending call setup")
	}

	switch {
	case sess == nil || sess.GetCallID() != p.CallID:
		discard("call no longer active")
		return
	case sess.IsEnded():
		discard("call ended")
		return
	case sess.IsMediaForbidden():
		discard("audio session deactivated")
		o.abandonForbidden(ctx, sess)
		return
	case p.IsExpired(now, o.cfg.PendingSetupTTL):
		discard("setup expired")
		if err := o.terminate(ctx, sess, StateEnded, true); err != nil {
			o.reportError(p.CallID, err)
		}
		return
	}

	if err := o.runSetup(ctx, p); err != nil {
		err = o.failSetup(ctx, sess, err)
		if !isCancelled(err) {
			o.reportError(p.CallID, err)
		}
	}
}

// onAudioDeactivated forbids further media for the call it names, or for
// the active call when callID is empty. A call whose setup was still
// waiting for activation can never get media and is ended.
func (o *Orchestrator) onAudioDeactivated(ctx context.Context, callID string) {
	sess := o.matchesActive(callID)
	if sess == nil {
		logrus.WithFields(logrus.Fields{
			"function": "onAudioDeactivated",
			"call_id":  callID,
		}).Debug("Deactivation for inactive call ignored")
		return
	}
	sess.forbidMedia()
	dropped := o.strategy.discard(sess.GetCallID())

	logrus.WithFields(logrus.Fields{
		"function":      "onAudioDeactivated",
		"call_id":       sess.GetCallID(),
		"setup_dropped": dropped,
	}).Info("Audio session deactivated, media attachment forbidden")

	if dropped {
		o.abandonForbidden(ctx, sess)
	}
}

// abandonForbidden ends a call that lost its audio session before media
// was set up and reports the failure.
func (o *Orchestrator) abandonForbidden(ctx context.Context, sess *Session) {
	if !o.isCurrent(sess) {
		return
	}
	callID := sess.GetCallID()
	if err := o.terminate(ctx, sess, StateEnded, true); err != nil {
		o.reportError(callID, err)
	}
	o.reportError(callID, fmt.Errorf("%w: audio session deactivated before setup", ErrMediaUnavailable))
}
