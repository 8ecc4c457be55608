package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opd-ai/toxcall/limits"
	"github.com/sirupsen/logrus"
)

// Codec errors.
var (
	// ErrUnsupportedKind indicates an intent that cannot be sent on the wire.
	ErrUnsupportedKind = errors.New("unsupported signal kind")

	// ErrMalformedMessage indicates a frame or payload that could not be decoded.
	ErrMalformedMessage = errors.New("malformed signaling message")
)

// Codec translates between signaling intents and wire messages.
//
// It is the only place where the orchestrator's protocol vocabulary and the
// transport's message vocabulary meet. Codec holds no state and is safe for
// concurrent use.
type Codec struct{}

// NewCodec creates a new codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Encode converts an outbound signal to a wire message addressed to sig.PeerID.
//
// Rejections travel as call_end carrying a reason; the remote side decodes
// them back to KindReject.
func (c *Codec) Encode(sig Signal) (Message, error) {
	if sig.CallID == "" || sig.PeerID == "" {
		return Message{}, fmt.Errorf("%w: call id and peer id are required", ErrMalformedMessage)
	}

	payload := CallPayload{
		ToPeerID: sig.PeerID,
		CallID:   sig.CallID,
	}

	var msgType string
	switch sig.Kind {
	case KindOffer:
		msgType = TypeCallInitiate
		payload.Offer = sig.SDP
		payload.IsVideo = sig.Video
	case KindAnswer:
		msgType = TypeCallAnswer
		payload.Answer = sig.SDP
	case KindIceCandidate:
		if sig.Candidate == nil {
			return Message{}, fmt.Errorf("%w: ice candidate is nil", ErrMalformedMessage)
		}
		raw, err := json.Marshal(sig.Candidate)
		if err != nil {
			return Message{}, fmt.Errorf("failed to marshal candidate: %w", err)
		}
		msgType = TypeCallIceCandidate
		payload.Candidate = string(raw)
	case KindReject:
		msgType = TypeCallEnd
		payload.Reason = sig.Reason
		if payload.Reason == "" {
			payload.Reason = ReasonRejected
		}
	case KindEnd:
		msgType = TypeCallEnd
	case KindRinging:
		msgType = TypeCallRinging
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Encode",
			"kind":     sig.Kind,
		}).Error("Refusing to encode unsupported signal kind")
		return Message{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, sig.Kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Encode",
		"kind":         sig.Kind,
		"message_type": msgType,
		"call_id":      sig.CallID,
	}).Debug("Signal encoded")

	return Message{Type: msgType, Payload: raw}, nil
}

// DecodeFrame parses a raw transport frame into a message envelope after
// validating its size.
func (c *Codec) DecodeFrame(frame []byte) (Message, error) {
	if err := limits.ValidateSignalingMessage(frame); err != nil {
		return Message{}, err
	}

	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return msg, nil
}

// Decode converts an inbound wire message to a signal.
//
// The boolean result is false for message types that carry no call intent
// (unknown types, unrelated errors, credential responses); such messages are
// logged and ignored rather than reported as errors.
func (c *Codec) Decode(msg Message) (Signal, bool, error) {
	switch msg.Type {
	case TypeIncomingCall, TypeCallAnswered, TypeCallIceCandidate,
		TypeCallEnded, TypeCallRejected, TypeCallRinging:
		return c.decodeCall(msg)
	case TypeError:
		return c.decodeError(msg)
	default:
		logrus.WithFields(logrus.Fields{
			"function":     "Decode",
			"message_type": msg.Type,
		}).Debug("Ignoring message with no call intent")
		return Signal{}, false, nil
	}
}

func (c *Codec) decodeCall(msg Message) (Signal, bool, error) {
	var payload CallPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return Signal{}, false, fmt.Errorf("%w: %s payload: %v", ErrMalformedMessage, msg.Type, err)
	}
	if err := limits.ValidateIdentifier(payload.CallID, limits.MaxCallID); err != nil {
		return Signal{}, false, fmt.Errorf("invalid call id: %w", err)
	}
	if err := limits.ValidateIdentifier(payload.FromPeerID, limits.MaxPeerID); err != nil {
		return Signal{}, false, fmt.Errorf("invalid peer id: %w", err)
	}

	sig := Signal{
		CallID: payload.CallID,
		PeerID: payload.FromPeerID,
	}

	switch msg.Type {
	case TypeIncomingCall:
		if err := limits.ValidateSDP(payload.Offer); err != nil {
			return Signal{}, false, fmt.Errorf("invalid offer: %w", err)
		}
		sig.Kind = KindOffer
		sig.SDP = payload.Offer
		sig.Video = payload.IsVideo
	case TypeCallAnswered:
		if err := limits.ValidateSDP(payload.Answer); err != nil {
			return Signal{}, false, fmt.Errorf("invalid answer: %w", err)
		}
		sig.Kind = KindAnswer
		sig.SDP = payload.Answer
	case TypeCallIceCandidate:
		if err := limits.ValidateCandidate(payload.Candidate); err != nil {
			return Signal{}, false, fmt.Errorf("invalid candidate: %w", err)
		}
		var cand IceCandidate
		if err := json.Unmarshal([]byte(payload.Candidate), &cand); err != nil {
			return Signal{}, false, fmt.Errorf("%w: candidate: %v", ErrMalformedMessage, err)
		}
		sig.Kind = KindIceCandidate
		sig.Candidate = &cand
	case TypeCallEnded:
		sig.Kind = KindEnd
		if payload.Reason == ReasonBusy || payload.Reason == ReasonRejected {
			sig.Kind = KindReject
			sig.Reason = payload.Reason
		}
	case TypeCallRejected:
		sig.Kind = KindReject
		sig.Reason = payload.Reason
		if sig.Reason == "" {
			sig.Reason = ReasonRejected
		}
	case TypeCallRinging:
		sig.Kind = KindRinging
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Decode",
		"message_type": msg.Type,
		"kind":         sig.Kind,
		"call_id":      sig.CallID,
	}).Debug("Signal decoded")

	return sig, true, nil
}

func (c *Codec) decodeError(msg Message) (Signal, bool, error) {
	var payload ErrorPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return Signal{}, false, fmt.Errorf("%w: error payload: %v", ErrMalformedMessage, err)
	}

	if payload.Code != ErrorCodeRecipientOffline {
		logrus.WithFields(logrus.Fields{
			"function": "Decode",
			"code":     payload.Code,
			"message":  payload.Message,
		}).Warn("Ignoring signaling server error")
		return Signal{}, false, nil
	}

	return Signal{
		Kind:   KindRecipientOffline,
		CallID: payload.CallID,
		PeerID: payload.ToPeerID,
	}, true, nil
}

// EncodeTurnRequest builds a credential request correlated by requestID.
func (c *Codec) EncodeTurnRequest(requestID string) Message {
	return Message{Type: TypeGetTurnCredentials, RequestID: requestID}
}

// DecodeTurnCredentials extracts relay credentials from a turn_credentials response.
func (c *Codec) DecodeTurnCredentials(msg Message) (TurnCredentialsPayload, error) {
	if msg.Type != TypeTurnCredentials {
		return TurnCredentialsPayload{}, fmt.Errorf("%w: expected %s, got %s", ErrMalformedMessage, TypeTurnCredentials, msg.Type)
	}

	var payload TurnCredentialsPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return TurnCredentialsPayload{}, fmt.Errorf("%w: turn credentials: %v", ErrMalformedMessage, err)
	}
	if payload.TTL <= 0 || len(payload.URLs) == 0 {
		return TurnCredentialsPayload{}, fmt.Errorf("%w: turn credentials missing ttl or urls", ErrMalformedMessage)
	}
	return payload, nil
}
