package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/toxcall/call"
	"github.com/opd-ai/toxcall/signaling"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// connection wraps one pion peer connection for a single call.
type connection struct {
	pc       *webrtc.PeerConnection
	cfg      Config
	source   Source
	handlers call.MediaHandlers
	detached atomic.Bool
	meter    *levelMeter

	senders map[call.MediaKind]*webrtc.RTPSender
	tracks  map[call.MediaKind]webrtc.TrackLocal
	mu      sync.Mutex
}

func newConnection(pc *webrtc.PeerConnection, cfg Config, source Source, handlers call.MediaHandlers) *connection {
	c := &connection{
		pc:       pc,
		cfg:      cfg,
		source:   source,
		handlers: handlers,
		senders:  make(map[call.MediaKind]*webrtc.RTPSender),
		tracks:   make(map[call.MediaKind]webrtc.TrackLocal),
	}
	if cfg.MeterRemoteAudio {
		c.meter = newLevelMeter()
	}
	c.bind()
	return c
}

// bind subscribes to pion events. Every handler is a no-op once the
// connection is detached.
func (c *connection) bind() {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || c.detached.Load() || c.handlers.OnIceCandidate == nil {
			return
		}
		c.handlers.OnIceCandidate(fromCandidateInit(cand.ToJSON()))
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logrus.WithFields(logrus.Fields{
			"function": "OnConnectionStateChange",
			"state":    s.String(),
		}).Debug("Peer connection state")
		if c.detached.Load() || c.handlers.OnConnectionStateChange == nil {
			return
		}
		c.handlers.OnConnectionStateChange(fromConnectionState(s))
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := fromCodecType(track.Kind())
		logrus.WithFields(logrus.Fields{
			"function":  "OnTrack",
			"kind":      kind,
			"track_id":  track.ID(),
			"stream_id": track.StreamID(),
		}).Info("Remote track received")

		go c.readRemote(track, kind)
		if kind == call.MediaVideo && c.cfg.RequestKeyframeOnVideo {
			c.requestKeyframe(track)
		}
		if c.detached.Load() || c.handlers.OnTrack == nil {
			return
		}
		c.handlers.OnTrack(kind, track.ID())
	})
}

// readRemote drains the remote track until it ends, metering audio.
func (c *connection) readRemote(track *webrtc.TrackRemote, kind call.MediaKind) {
	meter := kind == call.MediaAudio && c.meter != nil &&
		track.Codec().MimeType == webrtc.MimeTypeOpus
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if meter {
			c.meter.observe(pkt.Payload)
		}
	}
}

func (c *connection) requestKeyframe(track *webrtc.TrackRemote) {
	err := c.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "requestKeyframe",
			"error":    err.Error(),
		}).Debug("Keyframe request failed")
	}
}

// AddLocalTracks captures audio, plus video for video calls, and adds the
// tracks to the connection.
func (c *connection) AddLocalTracks(ctx context.Context, kind call.MediaKind) error {
	audio, err := c.source.AudioTrack(ctx)
	if err != nil {
		return fmt.Errorf("capture audio: %w", err)
	}
	if err := c.addTrack(call.MediaAudio, audio); err != nil {
		return err
	}

	if kind.IsVideo() {
		video, err := c.source.VideoTrack(ctx, true)
		if err != nil {
			return fmt.Errorf("capture video: %w", err)
		}
		if err := c.addTrack(call.MediaVideo, video); err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "AddLocalTracks",
		"kind":     kind,
	}).Debug("Local tracks added")
	return nil
}

func (c *connection) addTrack(kind call.MediaKind, track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return fmt.Errorf("add %s track: %w", kind, err)
	}

	c.mu.Lock()
	c.senders[kind] = sender
	c.tracks[kind] = track
	c.mu.Unlock()

	// RTCP must be read for interceptors such as NACK to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *connection) CreateOffer(context.Context) (call.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return call.SessionDescription{}, err
	}
	return fromWebRTCDescription(offer), nil
}

func (c *connection) CreateAnswer(context.Context) (call.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return call.SessionDescription{}, err
	}
	return fromWebRTCDescription(answer), nil
}

func (c *connection) SetLocalDescription(desc call.SessionDescription) error {
	return c.pc.SetLocalDescription(toWebRTCDescription(desc))
}

func (c *connection) SetRemoteDescription(desc call.SessionDescription) error {
	return c.pc.SetRemoteDescription(toWebRTCDescription(desc))
}

func (c *connection) AddIceCandidate(candidate signaling.IceCandidate) error {
	return c.pc.AddICECandidate(toCandidateInit(candidate))
}

// SetTrackEnabled detaches the outgoing track from its sender (the peer
// receives nothing) or re-attaches the captured track.
func (c *connection) SetTrackEnabled(kind call.MediaKind, enabled bool) error {
	c.mu.Lock()
	sender, ok := c.senders[kind]
	track := c.tracks[kind]
	c.mu.Unlock()
	if !ok {
		return call.ErrNoTrack
	}

	if enabled {
		return sender.ReplaceTrack(track)
	}
	return sender.ReplaceTrack(nil)
}

// SwitchCamera captures the other camera and swaps it into the video sender.
func (c *connection) SwitchCamera(front bool) error {
	c.mu.Lock()
	sender, ok := c.senders[call.MediaVideo]
	c.mu.Unlock()
	if !ok {
		return call.ErrNoTrack
	}

	track, err := c.source.VideoTrack(context.Background(), front)
	if err != nil {
		return fmt.Errorf("capture camera: %w", err)
	}
	if err := sender.ReplaceTrack(track); err != nil {
		return err
	}

	c.mu.Lock()
	c.tracks[call.MediaVideo] = track
	c.mu.Unlock()
	return nil
}

func (c *connection) DetachHandlers() {
	c.detached.Store(true)
}

func (c *connection) GetStats() (call.MediaStats, error) {
	if c.pc.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return call.MediaStats{}, errors.New("peer connection closed")
	}
	stats := collectStats(c.pc.GetStats())
	if c.meter != nil {
		stats.RemoteAudioLevel = c.meter.Level()
	}
	return stats, nil
}

func (c *connection) Close() error {
	c.detached.Store(true)
	if err := c.pc.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Close",
			"error":    err.Error(),
		}).Error("Peer connection close error")
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function": "Close",
	}).Debug("Peer connection closed")
	return nil
}
