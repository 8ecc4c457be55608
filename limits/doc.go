// Package limits provides centralized size constants and validation functions
// for call signaling traffic. Every frame read from the signaling transport is
// untrusted input and is checked here before the codec decodes it.
//
// # Size Hierarchy
//
//   - MaxSignalingMessage (64 KiB): the whole JSON frame as read from the wire.
//   - MaxSDP (32 KiB): a single offer or answer description.
//   - MaxCandidate (1 KiB): one serialized ICE candidate.
//   - MaxPeerID / MaxCallID: opaque identifiers carried in every payload.
//
// # Validation Functions
//
// Each validation function checks for empty input and size limit violations:
//
//	if err := limits.ValidateSDP(offer); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
//
// For custom size limits, use the generic ValidateMessageSize function:
//
//	err := limits.ValidateMessageSize(data, 4096)
package limits
