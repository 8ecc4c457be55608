// Package transport carries signaling messages over a persistent websocket.
//
// WebSocketTransport implements call.SignalingTransport. Each text frame is
// one JSON envelope ({type, requestId, payload}). Frames whose requestId
// matches an outstanding Request complete that request directly from the
// read loop; every other frame is queued and delivered, in arrival order, to
// the handler registered for its type or to the default handler.
//
// Delivery runs on its own goroutine so a handler may itself issue a Request
// without stalling the reader.
//
// Basic usage:
//
//	t := transport.NewWebSocketTransport(transport.DefaultConfig("wss://signal.example.org/ws"))
//	t.SetDefaultHandler(func(ctx context.Context, msg signaling.Message) {
//	    _ = orchestrator.HandleMessage(ctx, msg)
//	})
//	go t.Run(ctx)
package transport
