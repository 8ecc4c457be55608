// Package config loads toxcall settings from a YAML file, a .env file and
// TOXCALL_ environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/opd-ai/toxcall/call"
	"github.com/opd-ai/toxcall/media"
	"github.com/opd-ai/toxcall/platform"
	"github.com/opd-ai/toxcall/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TOXCALL_SIGNALING_URL.
const EnvPrefix = "TOXCALL"

// SignalingConfig configures the websocket signaling connection.
type SignalingConfig struct {
	URL              string        `mapstructure:"url"`
	Token            string        `mapstructure:"token"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	ReconnectMin     time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax     time.Duration `mapstructure:"reconnect_max"`
	InboundBuffer    int           `mapstructure:"inbound_buffer"`
}

// PlatformConfig selects the call UI behaviour.
type PlatformConfig struct {
	Mode            string        `mapstructure:"mode"`
	ActivationDelay time.Duration `mapstructure:"activation_delay"`
}

// ControlConfig configures the HTTP control surface.
type ControlConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	ListenAddr     string   `mapstructure:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Config is the complete daemon configuration.
type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	LogFormat string          `mapstructure:"log_format"`
	Call      call.Config     `mapstructure:"call"`
	Media     media.Config    `mapstructure:"media"`
	Signaling SignalingConfig `mapstructure:"signaling"`
	Platform  PlatformConfig  `mapstructure:"platform"`
	Control   ControlConfig   `mapstructure:"control"`
}

func setDefaults(v *viper.Viper) {
	c := call.DefaultConfig()
	m := media.DefaultConfig()
	t := transport.DefaultConfig("")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetDefault("call.capture_timeout", c.CaptureTimeout)
	v.SetDefault("call.credential_fetch_timeout", c.CredentialFetchTimeout)
	v.SetDefault("call.cleanup_timeout", c.CleanupTimeout)
	v.SetDefault("call.settle_delay", c.SettleDelay)
	v.SetDefault("call.ringing_stale_after", c.RingingStaleAfter)
	v.SetDefault("call.connecting_stale_after", c.ConnectingStaleAfter)
	v.SetDefault("call.pending_setup_ttl", c.PendingSetupTTL)
	v.SetDefault("call.cleanup_stuck_after", c.CleanupStuckAfter)
	v.SetDefault("call.event_buffer_size", c.EventBufferSize)
	v.SetDefault("call.default_ice_servers", c.DefaultICEServers)

	v.SetDefault("media.relay_only", m.RelayOnly)
	v.SetDefault("media.meter_remote_audio", m.MeterRemoteAudio)
	v.SetDefault("media.request_keyframe_on_video", m.RequestKeyframeOnVideo)

	v.SetDefault("signaling.url", "")
	v.SetDefault("signaling.token", "")
	v.SetDefault("signaling.handshake_timeout", t.HandshakeTimeout)
	v.SetDefault("signaling.write_timeout", t.WriteTimeout)
	v.SetDefault("signaling.ping_interval", t.PingInterval)
	v.SetDefault("signaling.reconnect_min", t.ReconnectMin)
	v.SetDefault("signaling.reconnect_max", t.ReconnectMax)
	v.SetDefault("signaling.inbound_buffer", t.InboundBuffer)

	v.SetDefault("platform.mode", string(platform.ModeImmediate))
	v.SetDefault("platform.activation_delay", "50ms")

	v.SetDefault("control.enabled", true)
	v.SetDefault("control.listen_addr", "127.0.0.1:8089")
	v.SetDefault("control.allowed_origins", []string{"http://localhost:3000"})
}

// Load reads configuration. An empty path searches for toxcall.yaml in the
// working directory and ./config; a missing file is not an error, but an
// explicitly named one is.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Load",
		}).Debug("Loaded .env file")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("toxcall")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logrus.WithFields(logrus.Fields{
			"function": "Load",
		}).Info("No config file found, using defaults and environment")
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "Load",
			"file":     v.ConfigFileUsed(),
		}).Info("Loaded config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Call.Validate(); err != nil {
		return fmt.Errorf("call: %w", err)
	}
	if c.Signaling.URL == "" {
		return errors.New("signaling.url is required")
	}
	if err := c.Transport().Validate(); err != nil {
		return fmt.Errorf("signaling: %w", err)
	}
	switch platform.CallUIMode(c.Platform.Mode) {
	case platform.ModeImmediate, platform.ModeActivationGated:
	default:
		return fmt.Errorf("platform.mode %q is not one of %s, %s",
			c.Platform.Mode, platform.ModeImmediate, platform.ModeActivationGated)
	}
	if c.Control.Enabled && c.Control.ListenAddr == "" {
		return errors.New("control.listen_addr is required when control is enabled")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Transport builds the websocket transport settings. A token is sent as a
// bearer Authorization header.
func (c *Config) Transport() transport.Config {
	t := transport.Config{
		URL:              c.Signaling.URL,
		HandshakeTimeout: c.Signaling.HandshakeTimeout,
		WriteTimeout:     c.Signaling.WriteTimeout,
		PingInterval:     c.Signaling.PingInterval,
		ReconnectMin:     c.Signaling.ReconnectMin,
		ReconnectMax:     c.Signaling.ReconnectMax,
		InboundBuffer:    c.Signaling.InboundBuffer,
	}
	if c.Signaling.Token != "" {
		t.Header = http.Header{}
		t.Header.Set("Authorization", "Bearer "+c.Signaling.Token)
	}
	return t
}

// ApplyLogging configures the global logrus logger.
func (c *Config) ApplyLogging() {
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
