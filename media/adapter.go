package media

import (
	"context"
	"fmt"

	"github.com/opd-ai/toxcall/call"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// Adapter implements call.MediaAdapter on pion/webrtc.
type Adapter struct {
	api    *webrtc.API
	cfg    Config
	source Source
}

var _ call.MediaAdapter = (*Adapter)(nil)

// NewAdapter creates an adapter using the default codecs and interceptors.
// A nil source selects NewStaticSource.
func NewAdapter(cfg Config, source Source) *Adapter {
	if source == nil {
		source = NewStaticSource()
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		// Registering the built-in codec table cannot fail.
		panic(err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewAdapter",
		"relay_only": cfg.RelayOnly,
		"meter":      cfg.MeterRemoteAudio,
	}).Info("Creating media adapter")

	return &Adapter{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		cfg:    cfg,
		source: source,
	}
}

// CreatePeerConnection builds a connection bound to handlers.
func (a *Adapter) CreatePeerConnection(ctx context.Context, servers []call.ICEServer, handlers call.MediaHandlers) (call.PeerConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := webrtc.Configuration{ICEServers: toWebRTCServers(servers)}
	if a.cfg.RelayOnly {
		cfg.ICETransportPolicy = webrtc.ICETransportPolicyRelay
	}

	pc, err := a.api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "CreatePeerConnection",
		"server_count": len(servers),
	}).Debug("Peer connection created")

	return newConnection(pc, a.cfg, a.source, handlers), nil
}
