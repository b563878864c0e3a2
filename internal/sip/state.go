package sip

import "time"

// RegisterInterval is the REGISTER refresh cadence from §3.
const RegisterInterval = 60 * time.Second

// RingTimeout is how long an outgoing INVITE rings before CANCEL, §4.1.
const RingTimeout = 30 * time.Second

// CancelGrace is how long the ring state machine waits for a 487 after
// sending CANCEL before hard-clearing, §4.1.
const CancelGrace = 3 * time.Second

// InCallHold is how long an answered call runs before an automatic BYE,
// §4.1/§5.
const InCallHold = 60 * time.Second

// Config is the persisted SIP configuration from §3.
type Config struct {
	User        string
	Password    string
	DisplayName string
	Target      string // e.g. "**610"
	ProxyHost   string
	ProxyPort   int
	Enabled     bool
	Verbose     bool
}

// RegistrationState is the §3 registration data model.
type RegistrationState struct {
	Registered    bool
	LastAttempt   time.Time
	LastSuccess   time.Time
	LastStatus    int
	NonceCount    uint32
	challenge     Challenge
	haveChallenge bool
}

// Fresh reports whether the registration is still within the §3 freshness
// window (now - last-success <= 2*register-interval).
func (r RegistrationState) Fresh(now time.Time) bool {
	if !r.Registered || r.LastSuccess.IsZero() {
		return false
	}
	return now.Sub(r.LastSuccess) <= 2*RegisterInterval
}

// PendingInvite is the §3 at-most-one-at-a-time outgoing call attempt.
type PendingInvite struct {
	Active       bool
	AuthSent     bool
	CanCancel    bool
	Answered     bool
	ACKSent      bool
	BYESent      bool
	CancelSent   bool
	CancelStart  time.Time
	CallID       string
	FromTag      string
	ToTag        string
	CSeq         uint32
	Branch       string
	Target       string
	RemoteURI    string // Contact from 2xx
	InviteStart  time.Time
	AnsweredAt   time.Time
	MediaReady   bool
	Media        MediaDescriptor
	Config       Config
}

// ActiveCall is the §3 at-most-one active-call record.
type ActiveCall struct {
	Inbound         bool
	Acked           bool
	BYESent         bool
	CallID          string
	LocalTag        string
	RemoteTag       string
	RemoteContact   string
	RequestURI      string
	LocalCSeq       uint32
	RemoteCSeq      uint32
	SIPRemoteIP     string
	SIPRemotePort   int
	RTPRemoteIP     string
	RTPRemotePort   int
	AudioPayload    uint8 // 0 PCMU, 8 PCMA
	DTMFPayload     uint8
	RemoteSends     bool
	RemoteReceives  bool
	LocalSends      bool
	LocalReceives   bool
	StartedAt       time.Time
	LastRTPSendAt   time.Time
	LastRTPRecvAt   time.Time
}
