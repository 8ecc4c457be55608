// Package media implements call.MediaAdapter on pion/webrtc.
//
// Each call gets its own peer connection. Local tracks come from a Source;
// StaticSource provides sample tracks for hosts without capture devices.
// Muting detaches the outgoing track from its RTP sender rather than
// renegotiating, and camera switching replaces the video track in place.
//
// Remote Opus audio is decoded with pion/opus to report the remote level in
// call statistics, and a keyframe is requested when remote video arrives.
package media
