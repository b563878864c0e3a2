package rtsp

import (
	"context"

	"github.com/looplab/fsm"
)

// RTSP session lifecycle states, mirroring the SIP side's ring FSM
// pattern (internal/sip/ringfsm.go), itself grounded on the teacher's
// pkg/dialog three-parallel-FSM shape: the Session struct's own
// HasVideo/HasAudio/IsPlaying fields stay the authoritative state the
// streamer and SETUP/PLAY/TEARDOWN handlers branch on, while this FSM
// gives every lifecycle transition a named, validated state for logging.
const (
	SessionStateSetup     = "setup"
	SessionStatePlaying   = "playing"
	SessionStateTorndown  = "torndown"
)

// newSessionFSM builds one session's lifecycle FSM, started in "setup"
// since a Session only exists from its first successful SETUP onward.
func newSessionFSM() *fsm.FSM {
	return fsm.NewFSM(
		SessionStateSetup,
		fsm.Events{
			{Name: "setup_track", Src: []string{SessionStateSetup}, Dst: SessionStateSetup},
			{Name: "play", Src: []string{SessionStateSetup}, Dst: SessionStatePlaying},
			{Name: "teardown", Src: []string{SessionStateSetup, SessionStatePlaying}, Dst: SessionStateTorndown},
			{Name: "timeout", Src: []string{SessionStateSetup, SessionStatePlaying}, Dst: SessionStateTorndown},
		},
		nil,
	)
}

// sessionTransition drives the FSM, swallowing "no such transition"
// errors: it is an observability aid, not a gate on the handlers.
func sessionTransition(f *fsm.FSM, event string) {
	_ = f.Event(context.Background(), event)
}
