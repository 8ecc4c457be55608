package call

import "errors"

// Sentinel errors for call package operations.
// These errors enable reliable error classification using errors.Is().

// Call setup errors.
var (
	// ErrCallInProgress indicates another live session already exists.
	ErrCallInProgress = errors.New("call already in progress")

	// ErrSessionConflict indicates an operation or signal names a call other
	// than the active one.
	ErrSessionConflict = errors.New("session conflict")

	// ErrInvalidPeer indicates an empty or oversized peer identifier.
	ErrInvalidPeer = errors.New("invalid peer")

	// ErrSetupCancelled indicates the call ended while its setup was in flight.
	ErrSetupCancelled = errors.New("call setup cancelled")

	// ErrMissingOffer indicates an accept without a remote description to answer.
	ErrMissingOffer = errors.New("no remote offer to answer")
)

// Collaborator errors.
var (
	// ErrMediaUnavailable indicates capture or peer-connection creation failed.
	ErrMediaUnavailable = errors.New("media unavailable")

	// ErrSignalingUnavailable indicates the transport could not deliver a
	// signal that had to be sent.
	ErrSignalingUnavailable = errors.New("signaling unavailable")

	// ErrCredentialTimeout indicates the relay credential fetch timed out.
	// It is soft: the cache falls back to default servers and never returns it.
	ErrCredentialTimeout = errors.New("turn credential fetch timed out")

	// ErrNoTrack indicates the peer connection has no track of the requested kind.
	ErrNoTrack = errors.New("no such media track")
)

// Call control errors.
var (
	// ErrNoActiveCall indicates no session exists.
	ErrNoActiveCall = errors.New("no active call")
)

func isCancelled(err error) bool {
	return errors.Is(err, ErrSetupCancelled)
}
