package media

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Source captures local media. Capture may block (device permission
// prompts, camera warm-up) and must honour ctx.
type Source interface {
	// AudioTrack returns the microphone track.
	AudioTrack(ctx context.Context) (webrtc.TrackLocal, error)
	// VideoTrack returns the track for the front or back camera.
	VideoTrack(ctx context.Context, front bool) (webrtc.TrackLocal, error)
}

// StaticSource produces sample-based tracks that an application feeds
// itself. It is the source for headless hosts with no capture devices.
type StaticSource struct {
	streamID string
}

// NewStaticSource creates a source whose tracks share one stream ID.
func NewStaticSource() *StaticSource {
	return &StaticSource{streamID: "toxcall-" + uuid.NewString()}
}

// AudioTrack returns an Opus sample track.
func (s *StaticSource) AudioTrack(ctx context.Context) (webrtc.TrackLocal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", s.streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	return track, nil
}

// VideoTrack returns a VP8 sample track labelled with the selected camera.
func (s *StaticSource) VideoTrack(ctx context.Context, front bool) (webrtc.TrackLocal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := "video-back"
	if front {
		id = "video-front"
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		id, s.streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create video track: %w", err)
	}
	return track, nil
}
