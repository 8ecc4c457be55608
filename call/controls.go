package call

import "github.com/sirupsen/logrus"

func (o *Orchestrator) active() (*Session, PeerConnection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session, o.conn
}

// ToggleMute flips outgoing audio and returns the resulting mute state.
// If the change cannot be applied the prior state is returned.
func (o *Orchestrator) ToggleMute() bool {
	sess, _ := o.active()
	if sess == nil {
		return false
	}
	return o.SetMuted(!sess.IsMuted())
}

// SetMuted applies an explicit mute state and returns the resulting state.
func (o *Orchestrator) SetMuted(muted bool) bool {
	sess, conn := o.active()
	if sess == nil {
		return false
	}
	prior := sess.IsMuted()
	if prior == muted {
		return prior
	}
	if conn == nil {
		return prior
	}
	res := isolate("media.SetTrackEnabled", func() error { return conn.SetTrackEnabled(MediaAudio, !muted) })
	if !res.OK() {
		return prior
	}
	sess.setMuted(muted)

	logrus.WithFields(logrus.Fields{
		"function": "SetMuted",
		"call_id":  sess.GetCallID(),
		"muted":    muted,
	}).Info("Microphone state changed")
	o.notifyState(sess)
	return muted
}

// ToggleVideo flips the outgoing camera track and returns whether the camera is on.
func (o *Orchestrator) ToggleVideo() bool {
	sess, conn := o.active()
	if sess == nil {
		return false
	}
	prior := sess.IsCameraOn()
	if conn == nil {
		return prior
	}
	next := !prior
	res := isolate("media.SetTrackEnabled", func() error { return conn.SetTrackEnabled(MediaVideo, next) })
	if !res.OK() {
		return prior
	}
	sess.setCameraOn(next)

	logrus.WithFields(logrus.Fields{
		"function":  "ToggleVideo",
		"call_id":   sess.GetCallID(),
		"camera_on": next,
	}).Info("Camera state changed")
	o.notifyState(sess)
	return next
}

// SwitchCamera flips between front and back cameras and returns whether the
// front camera is selected.
func (o *Orchestrator) SwitchCamera() bool {
	sess, conn := o.active()
	if sess == nil {
		return true
	}
	prior := sess.IsFrontCamera()
	if conn == nil {
		return prior
	}
	next := !prior
	res := isolate("media.SwitchCamera", func() error { return conn.SwitchCamera(next) })
	if !res.OK() {
		return prior
	}
	sess.setFrontCamera(next)
	o.notifyState(sess)
	return next
}

// ToggleSpeaker flips the speakerphone route and returns whether it is on.
func (o *Orchestrator) ToggleSpeaker() bool {
	sess, _ := o.active()
	if sess == nil {
		return false
	}
	prior := sess.IsSpeakerOn()
	audio, ok := o.audio.Get()
	if !ok {
		return prior
	}
	next := !prior
	res := isolate("audio.SetSpeakerphoneOn", func() error { return audio.SetSpeakerphoneOn(next) })
	if !res.OK() {
		return prior
	}
	sess.setSpeakerOn(next)
	o.notifyState(sess)
	return next
}

// GetCallStats returns timing and transport statistics for the active call.
func (o *Orchestrator) GetCallStats() (CallStats, error) {
	sess, conn := o.active()
	if sess == nil {
		return CallStats{}, ErrNoActiveCall
	}
	stats := CallStats{
		CallID:   sess.GetCallID(),
		State:    sess.GetState(),
		Duration: sess.Duration(o.now()),
	}
	if conn == nil {
		return stats, nil
	}

	var media MediaStats
	res := isolate("media.GetStats", func() error {
		var err error
		media, err = conn.GetStats()
		return err
	})
	if !res.OK() {
		return stats, res.Err
	}
	stats.Media = media
	stats.Quality = AssessQuality(media, o.cfg.Quality)
	return stats, nil
}
