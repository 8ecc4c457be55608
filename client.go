package toxcall

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opd-ai/toxcall/call"
	"github.com/opd-ai/toxcall/config"
	"github.com/opd-ai/toxcall/control"
	"github.com/opd-ai/toxcall/media"
	"github.com/opd-ai/toxcall/platform"
	"github.com/opd-ai/toxcall/signaling"
	"github.com/opd-ai/toxcall/transport"
	"github.com/sirupsen/logrus"
)

// Client assembles the signaling transport, media engine, call UI, audio
// routing and call orchestrator into one calling endpoint.
//
// Client follows the usual pattern of this codebase:
//   - callbacks registered with On* setters
//   - safe for concurrent use
//   - Kill releases every resource
type Client struct {
	cfg *config.Config

	transport *transport.WebSocketTransport
	media     *media.Adapter
	ui        *platform.HeadlessCallUI
	audio     *platform.AudioRouter
	orch      *call.Orchestrator
	control   *control.Server

	mu      sync.RWMutex
	running bool
	killed  bool
}

// Option customizes a Client before it is assembled.
type Option func(*clientOptions)

type clientOptions struct {
	source media.Source
}

// WithMediaSource replaces the static sample source used for local media.
func WithMediaSource(source media.Source) Option {
	return func(o *clientOptions) { o.source = source }
}

// New creates a client from cfg. It does not connect; call Run.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		cfg:       cfg,
		transport: transport.NewWebSocketTransport(cfg.Transport()),
		media:     media.NewAdapter(cfg.Media, o.source),
		ui:        platform.NewHeadlessCallUI(platform.CallUIMode(cfg.Platform.Mode), cfg.Platform.ActivationDelay),
		audio:     platform.NewAudioRouter(),
	}

	orch, err := call.NewOrchestrator(cfg.Call, call.Dependencies{
		Transport: c.transport,
		Media:     c.media,
		Platform:  call.Available[call.PlatformCallAdapter](c.ui),
		Audio:     call.Available[call.AudioRouteAdapter](c.audio),
	})
	if err != nil {
		c.ui.Close()
		_ = c.transport.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	c.orch = orch

	c.transport.SetDefaultHandler(func(ctx context.Context, msg signaling.Message) {
		if err := orch.HandleMessage(ctx, msg); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Client.handleMessage",
				"type":     msg.Type,
				"error":    err.Error(),
			}).Warn("Signaling message not applied")
		}
	})

	if cfg.Control.Enabled {
		c.control = control.NewServer(orch, control.Options{
			ListenAddr:     cfg.Control.ListenAddr,
			AllowedOrigins: cfg.Control.AllowedOrigins,
		})
	}

	logrus.WithFields(logrus.Fields{
		"function":  "New",
		"signaling": cfg.Signaling.URL,
		"platform":  cfg.Platform.Mode,
		"control":   cfg.Control.Enabled,
	}).Info("Call client created")

	return c, nil
}

// Run marks the client ready for platform events, keeps signaling
// connected and serves the control API until ctx is cancelled. On return
// any active call has been ended and the client is killed.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.killed {
		c.mu.Unlock()
		return errors.New("client has been killed")
	}
	if c.running {
		c.mu.Unlock()
		return errors.New("client already running")
	}
	c.running = true
	c.mu.Unlock()

	c.orch.MarkReady(ctx)

	errc := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.transport.Run(ctx); err != nil && !errors.Is(err, transport.ErrClosed) {
			errc <- fmt.Errorf("signaling: %w", err)
		}
	}()
	if c.control != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.control.ListenAndServe(ctx); err != nil {
				errc <- fmt.Errorf("control api: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}

	c.Kill()
	wg.Wait()
	return runErr
}

// Kill ends any active call and releases every resource. Safe to call
// more than once.
func (c *Client) Kill() {
	c.mu.Lock()
	if c.killed {
		c.mu.Unlock()
		return
	}
	c.killed = true
	c.mu.Unlock()

	if _, ok := c.orch.CurrentSession(); ok {
		if err := c.orch.EndCall(context.Background()); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Kill",
				"error":    err.Error(),
			}).Warn("Ending active call during shutdown failed")
		}
	}
	_ = c.transport.Close()
	c.ui.Close()

	logrus.WithFields(logrus.Fields{
		"function": "Kill",
	}).Info("Call client stopped")
}

// Call places a call to peerID and returns its call ID.
func (c *Client) Call(ctx context.Context, peerID string, video bool) (string, error) {
	return c.orch.StartCall(ctx, peerID, call.MediaKindFromVideo(video))
}

// Answer accepts the ringing incoming call with its offered media kind.
func (c *Client) Answer(ctx context.Context, callID string) error {
	info, ok := c.orch.CurrentSession()
	if !ok || info.CallID != callID {
		return fmt.Errorf("%w: %s", call.ErrNoActiveCall, callID)
	}
	return c.orch.AcceptCall(ctx, callID, info.PeerID, info.MediaKind, "")
}

// Reject declines the ringing incoming call.
func (c *Client) Reject(ctx context.Context, callID string) error {
	info, ok := c.orch.CurrentSession()
	if !ok || info.CallID != callID {
		return fmt.Errorf("%w: %s", call.ErrNoActiveCall, callID)
	}
	return c.orch.RejectCall(ctx, callID, info.PeerID)
}

// Hangup ends the active call.
func (c *Client) Hangup(ctx context.Context) error {
	return c.orch.EndCall(ctx)
}

// CurrentCall returns a snapshot of the active call.
func (c *Client) CurrentCall() (call.SessionInfo, bool) {
	return c.orch.CurrentSession()
}

// IsConnected reports whether signaling is up.
func (c *Client) IsConnected() bool {
	return c.transport.IsConnected()
}

// OnIncomingCall registers a callback for calls that start ringing.
func (c *Client) OnIncomingCall(callback func(info call.SessionInfo)) {
	c.orch.SetIncomingCallCallback(callback)
}

// OnCallState registers a callback for every session state change.
func (c *Client) OnCallState(callback func(info call.SessionInfo)) {
	c.orch.SetStateCallback(callback)
}

// OnCallError registers a callback for asynchronous call failures.
func (c *Client) OnCallError(callback func(callID string, err error)) {
	c.orch.SetErrorCallback(callback)
}

// OnRemoteTrack registers a callback for remote media tracks.
func (c *Client) OnRemoteTrack(callback func(callID string, kind call.MediaKind, trackID string)) {
	c.orch.SetRemoteTrackCallback(callback)
}

// Orchestrator exposes the underlying orchestrator for media controls.
func (c *Client) Orchestrator() *call.Orchestrator {
	return c.orch
}

// CallUI exposes the headless call UI so hosts can drive answer/end/mute.
func (c *Client) CallUI() *platform.HeadlessCallUI {
	return c.ui
}

// AudioRouter exposes the audio routing state.
func (c *Client) AudioRouter() *platform.AudioRouter {
	return c.audio
}
