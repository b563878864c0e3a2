package rtsp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionFSMLifecycleTransitions(t *testing.T) {
	f := newSessionFSM()
	require.Equal(t, SessionStateSetup, f.Current())

	sessionTransition(f, "setup_track")
	require.Equal(t, SessionStateSetup, f.Current())

	sessionTransition(f, "play")
	require.Equal(t, SessionStatePlaying, f.Current())

	sessionTransition(f, "teardown")
	require.Equal(t, SessionStateTorndown, f.Current())
}

func TestSessionFSMTimeoutFromEitherState(t *testing.T) {
	f := newSessionFSM()
	sessionTransition(f, "timeout")
	require.Equal(t, SessionStateTorndown, f.Current())

	playing := newSessionFSM()
	sessionTransition(playing, "play")
	sessionTransition(playing, "timeout")
	require.Equal(t, SessionStateTorndown, playing.Current())
}

// sessionTransition swallows invalid-transition errors rather than
// panicking, since it is an observability aid, not a gate.
func TestSessionFSMIgnoresInvalidTransition(t *testing.T) {
	f := newSessionFSM()
	require.NotPanics(t, func() {
		sessionTransition(f, "play")
		sessionTransition(f, "play") // already playing: no setup->playing edge again
	})
}
