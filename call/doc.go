// Package call implements one-to-one voice and video call orchestration.
//
// An Orchestrator owns at most one call Session at a time and drives it
// through signaling, media negotiation, the platform call UI and audio
// routing. Collaborators are injected as interfaces so the package has no
// dependency on a particular media engine or operating system.
//
// # Architecture
//
//   - Orchestrator: the single owner of the active session and its resources
//   - Session: identity, lifecycle state and media flags of one call
//   - TurnCredentialsCache: relay credentials fetched over signaling
//   - IceCandidateQueue: remote candidates held until the remote description is applied
//   - EventBuffer: platform events held until the host is ready
//
// # Collaborators
//
//   - MediaAdapter / PeerConnection: the media-transport engine
//   - SignalingTransport: the persistent signaling connection
//   - PlatformCallAdapter: native call UI, optional
//   - AudioRouteAdapter: audio routing, optional
//
// Optional collaborators are passed as Capability values:
//
//	orch, err := call.NewOrchestrator(call.DefaultConfig(), call.Dependencies{
//	    Transport: client,
//	    Media:     media.NewAdapter(media.DefaultConfig(), nil),
//	    Platform:  call.Unavailable[call.PlatformCallAdapter](),
//	    Audio:     call.Available[call.AudioRouteAdapter](router),
//	})
//
// # Making Calls
//
//	callID, err := orch.StartCall(ctx, "peer-42", call.MediaVideo)
//	if errors.Is(err, call.ErrCallInProgress) {
//	    // another call is live
//	}
//	defer orch.EndCall(ctx)
//
// Inbound signaling is fed with HandleMessage. Incoming offers create a
// ringing session reported through SetIncomingCallCallback; answer them with
// AcceptCall or decline with RejectCall.
//
// # Audio Activation
//
// Platforms that own the audio session report RequiresAudioActivation. On
// those, media setup is parked until a PlatformAudioActivated event arrives
// and is discarded if the call ended, the audio session was deactivated, or
// the setup is older than Config.PendingSetupTTL.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Callbacks are invoked
// without internal locks held and may call back into the Orchestrator.
package call
