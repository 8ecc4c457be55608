package signaling

// Kind is a logical signaling intent as seen by the call orchestrator.
type Kind string

const (
	// KindOffer carries the caller's session description
	KindOffer Kind = "call_offer"
	// KindAnswer carries the callee's session description
	KindAnswer Kind = "call_answer"
	// KindIceCandidate carries one trickled ICE candidate
	KindIceCandidate Kind = "ice_candidate"
	// KindReject declines a call (busy or user decision)
	KindReject Kind = "call_reject"
	// KindEnd terminates an established or pending call
	KindEnd Kind = "call_end"
	// KindRinging reports that the callee's device is alerting
	KindRinging Kind = "call_ringing"
	// KindRecipientOffline reports that the callee could not be reached
	KindRecipientOffline Kind = "recipient_offline"
)

// Reasons attached to KindReject.
const (
	ReasonBusy     = "busy"
	ReasonRejected = "rejected"
)

// IceCandidate mirrors the RTCIceCandidateInit dictionary.
type IceCandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Signal is one signaling intent exchanged with a remote peer.
//
// PeerID names the remote party: the destination of an outbound signal
// and the origin of an inbound one.
type Signal struct {
	Kind      Kind
	CallID    string
	PeerID    string
	SDP       string
	Candidate *IceCandidate
	Video     bool
	Reason    string
}
