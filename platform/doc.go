// Package platform provides headless implementations of the call UI and
// audio routing collaborators.
//
// HeadlessCallUI stands in for a native call screen. In ModeActivationGated
// it behaves like a system call UI that owns the audio session: media setup
// waits until it reports audio activation, and ending the last call or
// InterruptAudio revokes the session. AudioRouter tracks the output route
// and screen-wake state so a host can mirror them.
package platform
