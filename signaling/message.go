package signaling

import "encoding/json"

// Wire message types exchanged with the signaling server.
// Outbound and inbound vocabularies differ: the server rewrites the type
// when it relays a message and replaces toPeerId with fromPeerId.
const (
	TypeCallInitiate       = "call_initiate"
	TypeCallAnswer         = "call_answer"
	TypeCallIceCandidate   = "call_ice_candidate"
	TypeCallEnd            = "call_end"
	TypeCallRinging        = "call_ringing"
	TypeGetTurnCredentials = "get_turn_credentials"

	TypeIncomingCall    = "incoming_call"
	TypeCallAnswered    = "call_answered"
	TypeCallEnded       = "call_ended"
	TypeCallRejected    = "call_rejected"
	TypeTurnCredentials = "turn_credentials"
	TypeError           = "error"
)

// Error codes carried by TypeError messages.
const (
	ErrorCodeRecipientOffline = "RECIPIENT_OFFLINE"
)

// Message is the {type, payload} envelope carried by the transport.
//
// RequestID is set on requests that expect a correlated response
// (get_turn_credentials) and echoed back by the server.
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// CallPayload is the payload shared by every call signaling message.
// Only the fields relevant to the message type are populated.
type CallPayload struct {
	ToPeerID   string `json:"toPeerId,omitempty"`
	FromPeerID string `json:"fromPeerId,omitempty"`
	CallID     string `json:"callId"`
	Offer      string `json:"offer,omitempty"`
	Answer     string `json:"answer,omitempty"`
	Candidate  string `json:"candidate,omitempty"` // JSON-encoded IceCandidate
	IsVideo    bool   `json:"isVideo,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ErrorPayload is the payload of a TypeError message.
type ErrorPayload struct {
	Code     string `json:"code"`
	Message  string `json:"message,omitempty"`
	CallID   string `json:"callId,omitempty"`
	ToPeerID string `json:"toPeerId,omitempty"`
}

// TurnCredentialsPayload is the payload of a TypeTurnCredentials response.
type TurnCredentialsPayload struct {
	Username   string   `json:"username"`
	Credential string   `json:"credential"`
	TTL        int      `json:"ttl"`
	URLs       []string `json:"urls"`
}
