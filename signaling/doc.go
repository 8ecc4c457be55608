// Package signaling defines the call signaling wire format and the codec that
// maps it to the logical intents used by the call orchestrator.
//
// Six intents (offer, answer, ice-candidate, reject, end, ringing) travel over
// the same persistent connection as text messages, each as a JSON
// {type, payload} envelope:
//
//	outbound            inbound (relayed)
//	call_initiate   ->  incoming_call
//	call_answer     ->  call_answered
//	call_ice_candidate  call_ice_candidate
//	call_end        ->  call_ended (reason busy/rejected decodes as a reject)
//	call_ringing        call_ringing
//
// A server-side error with code RECIPIENT_OFFLINE decodes to
// KindRecipientOffline. Unknown inbound types are logged and ignored.
//
// Relay credentials are requested with get_turn_credentials and arrive as a
// correlated turn_credentials response.
package signaling
