// Package toxcall implements one-to-one audio/video calling for a messaging
// client.
//
// A [Client] keeps a websocket signaling connection to the messaging server,
// negotiates WebRTC media with pion, and drives a call UI and audio router
// through a single call orchestrator that allows at most one call at a time.
//
// # Getting Started
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.ApplyLogging()
//
//	client, err := toxcall.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client.OnIncomingCall(func(info call.SessionInfo) {
//	    fmt.Printf("Call from %s\n", info.PeerID)
//	    _ = client.Answer(context.Background(), info.CallID)
//	})
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := client.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Packages
//
//   - call: the session orchestrator and its collaborator contracts
//   - signaling: wire envelope and the signal codec
//   - media: pion/webrtc peer connections
//   - transport: websocket signaling transport
//   - platform: headless call UI and audio routing
//   - config: viper-based configuration
//   - control: HTTP control API
//
// # Call Controls
//
// Media controls are available on the orchestrator:
//
//	orch := client.Orchestrator()
//	muted := orch.ToggleMute()
//	stats, err := orch.GetCallStats()
//
// With the control API enabled the same operations are served over HTTP
// (POST /api/call, POST /api/call/accept, DELETE /api/call, ...).
package toxcall
