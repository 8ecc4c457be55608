package call

import (
	"context"
	"fmt"
	"time"

	"github.com/opd-ai/toxcall/signaling"
	"github.com/sirupsen/logrus"
)

// cleanupWithTimeout runs cleanup for td and gives up waiting after
// CleanupTimeout. A timed-out cleanup releases the guard so the next call
// is not blocked; its late completion is then ignored.
func (o *Orchestrator) cleanupWithTimeout(td *teardown) error {
	done := make(chan error, 1)
	go func() {
		done <- joinStepErrors(o.cleanup(td))
	}()

	timer := time.NewTimer(o.cfg.CleanupTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
	}

	logrus.WithFields(logrus.Fields{
		"function": "cleanupWithTimeout",
		"call_id":  td.callID,
		"timeout":  o.cfg.CleanupTimeout,
	}).Error("Call cleanup timed out, releasing guard")

	o.mu.Lock()
	o.cleaningUp = false
	o.cleanupGen++
	o.cooldownUntil = o.nowLocked().Add(o.cfg.SettleDelay)
	backlog := o.cleanupBacklog
	o.cleanupBacklog = nil
	o.mu.Unlock()

	for _, pending := range backlog {
		go o.cleanup(pending)
	}
	return fmt.Errorf("call cleanup timed out after %s", o.cfg.CleanupTimeout)
}

// cleanup releases the resources in td. Only one cleanup runs at a time;
// a teardown requested while another is in progress joins its backlog and
// is drained by the running cleanup.
func (o *Orchestrator) cleanup(td *teardown) []StepResult {
	if td == nil {
		return nil
	}

	o.mu.Lock()
	if o.cleaningUp {
		o.cleanupBacklog = append(o.cleanupBacklog, td)
		o.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "cleanup",
			"call_id":  td.callID,
		}).Debug("Cleanup in progress, queued teardown")
		return nil
	}
	o.cleaningUp = true
	o.cleanupGen++
	gen := o.cleanupGen
	o.cleanupStartedAt = o.nowLocked()
	o.mu.Unlock()

	defer o.releaseCleanup(gen)

	var results []StepResult
	done := make(map[string]bool)
	for td != nil {
		// A reject for an already torn-down call only repeats platform steps.
		if td.session != nil || td.conn != nil || !done[td.callID] {
			results = append(results, o.teardownSteps(td, false)...)
			done[td.callID] = true
		}
		td = o.nextBacklog(gen)
	}

	logrus.WithFields(logrus.Fields{
		"function": "cleanup",
		"steps":    len(results),
		"failed":   joinStepErrors(results) != nil,
	}).Info("Call cleanup complete")
	return results
}

// nextBacklog pops the next queued teardown while gen still owns the guard.
func (o *Orchestrator) nextBacklog(gen uint64) *teardown {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cleanupGen != gen || len(o.cleanupBacklog) == 0 {
		return nil
	}
	td := o.cleanupBacklog[0]
	o.cleanupBacklog = o.cleanupBacklog[1:]
	return td
}

func (o *Orchestrator) releaseCleanup(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cleanupGen != gen {
		return
	}
	o.cleaningUp = false
	o.cooldownUntil = o.nowLocked().Add(o.cfg.SettleDelay)
}

// teardownSteps performs each release step in isolation so one failure
// never prevents the rest.
func (o *Orchestrator) teardownSteps(td *teardown, forced bool) []StepResult {
	var results []StepResult

	if td.conn != nil {
		conn := td.conn
		results = append(results,
			isolate("media.DetachHandlers", func() error {
				conn.DetachHandlers()
				return nil
			}),
			isolate("media.Close", conn.Close),
		)
	}

	// A newer call owns the audio route once it exists.
	o.mu.Lock()
	newer := o.session != nil
	o.mu.Unlock()
	if forced || !newer {
		results = append(results,
			o.withAudio("audio.SetKeepScreenOn", func(a AudioRouteAdapter) error { return a.SetKeepScreenOn(false) }),
			o.withAudio("audio.Stop", func(a AudioRouteAdapter) error { return a.Stop() }),
		)
	}

	switch {
	case forced:
		results = append(results, o.withPlatform("platform.EndAllCalls", func(p PlatformCallAdapter) error {
			return p.EndAllCalls()
		}))
	case td.callID != "":
		callID := td.callID
		results = append(results, o.withPlatform("platform.EndCall", func(p PlatformCallAdapter) error {
			return p.EndCall(callID)
		}))
	}

	if td.queue != nil {
		if dropped := td.queue.Drain(); len(dropped) > 0 {
			logrus.WithFields(logrus.Fields{
				"function": "teardownSteps",
				"call_id":  td.callID,
				"dropped":  len(dropped),
			}).Debug("Discarded unapplied ICE candidates")
		}
	}

	if forced {
		o.strategy.discard("")
	} else if td.callID != "" {
		o.strategy.discard(td.callID)
	}
	return results
}

// ForceReset unconditionally tears down every call resource and returns
// the orchestrator to idle, regardless of any cleanup in progress.
func (o *Orchestrator) ForceReset(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"function": "ForceReset",
	}).Warn("Forcing call state reset")

	o.mu.Lock()
	td := o.detachLocked()
	o.cleaningUp = true
	o.cleanupGen++
	gen := o.cleanupGen
	o.cleanupStartedAt = o.nowLocked()
	backlog := o.cleanupBacklog
	o.cleanupBacklog = nil
	o.mu.Unlock()

	defer o.releaseCleanup(gen)

	if td.session != nil {
		if td.session.finish(StateEnded) {
			o.notifyState(td.session)
		}
		o.sendBestEffort(ctx, signalEnd(td))
	}

	results := o.teardownSteps(td, true)
	for _, pending := range backlog {
		results = append(results, o.teardownSteps(pending, true)...)
	}

	err := joinStepErrors(results)
	logrus.WithFields(logrus.Fields{
		"function": "ForceReset",
		"call_id":  td.callID,
		"backlog":  len(backlog),
		"failed":   err != nil,
	}).Info("Forced reset complete")
	return err
}

func signalEnd(td *teardown) signaling.Signal {
	return signaling.Signal{
		Kind:   signaling.KindEnd,
		CallID: td.callID,
		PeerID: td.session.GetPeerID(),
	}
}
