// Package limits provides centralized size limits for call signaling traffic.
// This ensures consistent validation of untrusted frames before they are decoded.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxSignalingMessage is the largest inbound signaling frame accepted from the transport.
	// Offers carrying video plus simulcast descriptions stay well below this size.
	MaxSignalingMessage = 64 * 1024

	// MaxSDP is the maximum size of a single session description
	MaxSDP = 32 * 1024

	// MaxCandidate is the maximum size of a serialized ICE candidate
	MaxCandidate = 1024

	// MaxPeerID bounds the opaque peer identifiers carried in payloads
	MaxPeerID = 256

	// MaxCallID bounds call identifiers (a UUID string is 36 bytes)
	MaxCallID = 128
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateSignalingMessage validates a raw inbound frame against MaxSignalingMessage.
func ValidateSignalingMessage(frame []byte) error {
	if len(frame) == 0 {
		return ErrMessageEmpty
	}
	if len(frame) > MaxSignalingMessage {
		return fmt.Errorf("%w: signaling frame size %d exceeds limit %d", ErrMessageTooLarge, len(frame), MaxSignalingMessage)
	}
	return nil
}

// ValidateSDP validates a session description against MaxSDP.
// Returns an error with context if the description is empty or exceeds the limit.
func ValidateSDP(sdp string) error {
	if len(sdp) == 0 {
		return ErrMessageEmpty
	}
	if len(sdp) > MaxSDP {
		return fmt.Errorf("%w: sdp size %d exceeds limit %d", ErrMessageTooLarge, len(sdp), MaxSDP)
	}
	return nil
}

// ValidateCandidate validates a serialized ICE candidate against MaxCandidate.
func ValidateCandidate(candidate string) error {
	if len(candidate) == 0 {
		return ErrMessageEmpty
	}
	if len(candidate) > MaxCandidate {
		return fmt.Errorf("%w: candidate size %d exceeds limit %d", ErrMessageTooLarge, len(candidate), MaxCandidate)
	}
	return nil
}

// ValidateIdentifier validates a call or peer identifier against maxSize.
// Empty identifiers are rejected because every signaling payload is addressed.
func ValidateIdentifier(id string, maxSize int) error {
	if len(id) == 0 {
		return ErrMessageEmpty
	}
	if len(id) > maxSize {
		return fmt.Errorf("%w: identifier size %d exceeds limit %d", ErrMessageTooLarge, len(id), maxSize)
	}
	return nil
}
