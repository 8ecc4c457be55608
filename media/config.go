package media

// Config controls how peer connections are built.
type Config struct {
	// RelayOnly restricts ICE to TURN relay candidates
	RelayOnly bool `mapstructure:"relay_only"`

	// MeterRemoteAudio decodes remote Opus frames to report the remote audio level
	MeterRemoteAudio bool `mapstructure:"meter_remote_audio"`

	// RequestKeyframeOnVideo sends a picture loss indication when remote video arrives
	RequestKeyframeOnVideo bool `mapstructure:"request_keyframe_on_video"`
}

// DefaultConfig returns the standard media settings.
func DefaultConfig() Config {
	return Config{
		RelayOnly:              false,
		MeterRemoteAudio:       true,
		RequestKeyframeOnVideo: true,
	}
}
