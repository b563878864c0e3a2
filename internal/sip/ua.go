package sip

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/jfg3rd/doorbell-core/internal/metrics"
	"github.com/jfg3rd/doorbell-core/internal/netinfo"
	"github.com/jfg3rd/doorbell-core/internal/rtpcommon"
)

const userAgentHeader = "doorbell-core/1.0"

// UA is the SIP user agent state machine from §4.1: registration with
// digest auth, the outgoing ring/call machine, and inbound INVITE
// answering. Per §5's shared-resource table, every field here except
// ringRequested is touched only by the main task; ringRequested is the
// single atomic flag any task may set, consumed only by CheckPendingRing.
type UA struct {
	cfg       Config
	localIP   string
	network   netinfo.Network
	transport *Transport
	logger    zerolog.Logger
	metrics   *metrics.Registry

	reg          RegistrationState
	registerCSeq uint32
	pending      *PendingInvite
	active       *ActiveCall
	ringFSM      *fsm.FSM

	ringRequested int32

	// MicEnabled/SpeakerEnabled drive the SDP offer direction attribute
	// and the active call's local send/receive flags, per §4.1's
	// "derived from whether local mic/speaker are enabled and unmuted".
	MicEnabled     bool
	SpeakerEnabled bool
	RTPPort        int

	dtmfCallback      func(rtpcommon.DTMFDigit)
	ringTickCallback  func()
	callStartCallback func(ActiveCall)
	callEndCallback   func()
}

// NewUA builds an uninitialized user agent. Call Init before any other
// method; Init is idempotent per §8's "sip_init twice is a no-op" property.
func NewUA(cfg Config, localIP string, network netinfo.Network, logger zerolog.Logger, m *metrics.Registry) *UA {
	return &UA{
		cfg: cfg, localIP: localIP, network: network,
		logger: logger.With().Str("component", "sip").Logger(), metrics: m,
		MicEnabled: true, SpeakerEnabled: true, RTPPort: 40000,
		ringFSM: newRingFSM(),
	}
}

// RingFSMState reports the dialog-level FSM's current state, for logging
// and metrics; the authoritative call data lives in pending/active.
func (u *UA) RingFSMState() string { return u.ringFSM.Current() }

// Init binds the UDP transport. A second call after success is a no-op.
func (u *UA) Init() error {
	if u.transport != nil {
		return nil
	}
	t, err := NewTransport(u.cfg.ProxyHost, u.cfg.ProxyPort, u.network)
	if err != nil {
		return err
	}
	u.transport = t
	return nil
}

// Close releases the UDP socket.
func (u *UA) Close() error {
	if u.transport == nil {
		return nil
	}
	return u.transport.Close()
}

// SetDTMFCallback registers the callback fired once per unique DTMF digit
// decoded from the SIP RTP stream, per §4.1/§6.
func (u *UA) SetDTMFCallback(cb func(rtpcommon.DTMFDigit)) { u.dtmfCallback = cb }

// SetRingTickCallback registers a callback fired on each provisional
// (1xx) response while ringing, per §6.
func (u *UA) SetRingTickCallback(cb func()) { u.ringTickCallback = cb }

// SetCallStartCallback registers the callback the media layer uses to
// start the SIP RTP session once a call becomes active.
func (u *UA) SetCallStartCallback(cb func(ActiveCall)) { u.callStartCallback = cb }

// SetCallEndCallback registers the callback the media layer uses to tear
// down the SIP RTP session when the active call clears.
func (u *UA) SetCallEndCallback(cb func()) { u.callEndCallback = cb }

// IsRegistered reports the current registration state.
func (u *UA) IsRegistered() bool { return u.reg.Registered }

// RingActive reports whether a pending outgoing invite or active call
// currently occupies the UA.
func (u *UA) RingActive() bool { return u.pending != nil || u.active != nil }

// ActiveCall returns the current active call, or nil.
func (u *UA) ActiveCall() *ActiveCall { return u.active }

func (u *UA) domain() string { return u.cfg.ProxyHost }

func (u *UA) registrarURI() string { return "sip:" + u.domain() }

func (u *UA) contactHeader() string {
	return fmt.Sprintf("<sip:%s@%s:%d>", u.cfg.User, u.localIP, LocalPort)
}

func newBranch() string   { return "z9hG4bK-" + uuid.NewString()[:12] }
func newTag() string      { return uuid.NewString()[:10] }
func newCallID(localIP string) string {
	return uuid.NewString() + "@" + localIP
}

// parseSIPURIAddr extracts host:port from a SIP URI / name-addr value
// (e.g. `"Name" <sip:user@host:port>` or `sip:user@host:port`). Falls back
// to the given default port if none is present.
func parseSIPURIAddr(raw string, defaultPort int) (string, int, bool) {
	start := strings.Index(raw, "sip:")
	if start < 0 {
		return "", 0, false
	}
	s := raw[start+len("sip:"):]
	if end := strings.IndexAny(s, ">;"); end >= 0 {
		s = s[:end]
	}
	if at := strings.LastIndex(s, "@"); at >= 0 {
		s = s[at+1:]
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return s, defaultPort, s != ""
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort, true
	}
	return host, port, true
}

func contactURI(contactHeader string) string {
	start := strings.Index(contactHeader, "<")
	end := strings.Index(contactHeader, ">")
	if start >= 0 && end > start {
		return contactHeader[start+1 : end]
	}
	return strings.TrimSpace(contactHeader)
}

func (u *UA) resolveAddr(uriOrHost string, defaultPort int) *net.UDPAddr {
	host, port, ok := parseSIPURIAddr(uriOrHost, defaultPort)
	if !ok {
		host, port = uriOrHost, defaultPort
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil
		}
		ip = ips[0]
	}
	return &net.UDPAddr{IP: ip, Port: port}
}

// ---- registration (§4.1) ----

// RegisterIfNeeded sends a REGISTER if none is in flight, the interval has
// elapsed, and no call is active (registrations are skipped during a
// call). The first call registers immediately (LastAttempt is zero).
func (u *UA) RegisterIfNeeded(now time.Time) {
	if !u.cfg.Enabled || u.transport == nil {
		return
	}
	if u.active != nil {
		return
	}
	if !u.reg.LastAttempt.IsZero() && now.Sub(u.reg.LastAttempt) < RegisterInterval {
		return
	}
	u.sendRegister(now, nil)
}

func (u *UA) sendRegister(now time.Time, auth *AuthParams) {
	proxy, err := u.transport.ProxyAddr(now)
	if err != nil {
		u.logger.Warn().Err(err).Msg("register: proxy unresolved, skipping")
		return
	}
	u.registerCSeq++
	u.reg.LastAttempt = now

	req := NewRequest("REGISTER", u.registrarURI())
	req.AddHeader("Via", fmt.Sprintf("SIP/2.0/UDP %s:%d;branch=%s", u.localIP, LocalPort, newBranch()))
	req.AddHeader("Max-Forwards", "70")
	req.AddHeader("From", fmt.Sprintf(`"%s" <sip:%s@%s>;tag=%s`, u.cfg.DisplayName, u.cfg.User, u.domain(), newTag()))
	req.AddHeader("To", fmt.Sprintf(`"%s" <sip:%s@%s>`, u.cfg.DisplayName, u.cfg.User, u.domain()))
	req.AddHeader("Call-ID", newCallID(u.localIP))
	req.AddHeader("CSeq", fmt.Sprintf("%d REGISTER", u.registerCSeq))
	req.AddHeader("Contact", u.contactHeader())
	req.AddHeader("Expires", "3600")
	req.AddHeader("User-Agent", userAgentHeader)
	if auth != nil {
		headerName := "Authorization"
		if auth.QOP != "" && u.reg.haveChallenge && u.reg.challenge.IsProxy {
			headerName = "Proxy-Authorization"
		}
		req.AddHeader(headerName, auth.String())
	}
	req.SetBody(nil)

	if err := u.transport.SendTo(req.Bytes(), proxy); err != nil {
		u.logger.Warn().Err(err).Msg("register: send failed")
	}
}

func (u *UA) handleRegisterResponse(msg *Message) {
	switch {
	case msg.StatusCode == 401 || msg.StatusCode == 407:
		isProxy := msg.StatusCode == 407
		headerName := "WWW-Authenticate"
		if isProxy {
			headerName = "Proxy-Authenticate"
		}
		chal := ParseChallenge(msg.Header(headerName), isProxy)
		if !chal.Valid() {
			u.reg.Registered = false
			u.reg.LastStatus = msg.StatusCode
			return
		}
		if u.reg.haveChallenge && u.reg.challenge.Nonce == chal.Nonce {
			// second auth attempt also challenged: auth-failed per §7.
			u.reg.Registered = false
			u.reg.LastStatus = msg.StatusCode
			u.reg.haveChallenge = false
			return
		}
		u.reg.haveChallenge = true
		u.reg.challenge = chal
		if chal.QOP != "" {
			u.reg.NonceCount++
		}
		auth := ComputeAuth(u.cfg.User, u.cfg.Password, chal, "REGISTER", u.registrarURI(), u.reg.NonceCount, NewCNonce())
		u.sendRegister(time.Now(), &auth)
	case msg.StatusCode >= 200 && msg.StatusCode < 300:
		u.reg.Registered = true
		u.reg.LastSuccess = time.Now()
		u.reg.LastStatus = msg.StatusCode
		u.reg.haveChallenge = false
		if u.metrics != nil {
			u.metrics.SetSIPRegistered(true)
		}
	default:
		u.reg.Registered = false
		u.reg.LastStatus = msg.StatusCode
		if u.metrics != nil {
			u.metrics.SetSIPRegistered(false)
		}
	}
}

// ---- outgoing ring (§4.1) ----

// RequestRing sets a one-shot flag; safe to call from any context since it
// only touches an atomic int32, matching §9's deferred-execution pattern.
func (u *UA) RequestRing() {
	atomic.StoreInt32(&u.ringRequested, 1)
}

// CheckPendingRing is main-loop only: it consumes the ring_requested flag
// and, if nothing is already in progress, starts the INVITE.
func (u *UA) CheckPendingRing(now time.Time) {
	if atomic.SwapInt32(&u.ringRequested, 0) == 0 {
		return
	}
	if u.RingActive() || !u.cfg.Enabled || u.transport == nil {
		return
	}
	u.ringExecute(now)
}

func (u *UA) ringExecute(now time.Time) {
	proxy, err := u.transport.ProxyAddr(now)
	if err != nil {
		u.logger.Warn().Err(err).Msg("ring: proxy unresolved")
		return
	}

	p := &PendingInvite{
		Active:      true,
		CallID:      newCallID(u.localIP),
		FromTag:     newTag(),
		CSeq:        1,
		Branch:      newBranch(),
		Target:      fmt.Sprintf("sip:%s@%s", u.cfg.Target, u.domain()),
		InviteStart: now,
		Config:      u.cfg,
	}
	u.pending = p
	ringTransition(u.ringFSM, "invite_sent")
	u.sendInvite(p, nil, now)
}

func (u *UA) buildInvite(p *PendingInvite, auth *AuthParams) *Message {
	req := NewRequest("INVITE", p.Target)
	req.AddHeader("Via", fmt.Sprintf("SIP/2.0/UDP %s:%d;branch=%s", u.localIP, LocalPort, p.Branch))
	req.AddHeader("Max-Forwards", "70")
	req.AddHeader("From", fmt.Sprintf(`"%s" <sip:%s@%s>;tag=%s`, u.cfg.DisplayName, u.cfg.User, u.domain(), p.FromTag))
	req.AddHeader("To", fmt.Sprintf("<%s>", p.Target))
	req.AddHeader("Call-ID", p.CallID)
	req.AddHeader("CSeq", fmt.Sprintf("%d INVITE", p.CSeq))
	req.AddHeader("Contact", u.contactHeader())
	req.AddHeader("User-Agent", userAgentHeader)
	if auth != nil {
		req.AddHeader("Authorization", auth.String())
	}
	sdp := BuildOffer(OfferConfig{
		LocalIP: u.localIP, RTPPort: u.RTPPort, DTMFPayload: 101,
		SendAudio: u.MicEnabled, ReceiveAudio: u.SpeakerEnabled,
	})
	req.SetBody(sdp)
	req.AddHeader("Content-Type", "application/sdp")
	return req
}

func (u *UA) sendInvite(p *PendingInvite, auth *AuthParams, now time.Time) {
	proxy, err := u.transport.ProxyAddr(now)
	if err != nil {
		return
	}
	req := u.buildInvite(p, auth)
	if err := u.transport.SendTo(req.Bytes(), proxy); err != nil {
		u.logger.Warn().Err(err).Msg("invite: send failed")
	}
}

func (u *UA) sendNon2xxAck(p *PendingInvite, resp *Message, now time.Time) {
	proxy, err := u.transport.ProxyAddr(now)
	if err != nil {
		return
	}
	ack := NewRequest("ACK", p.Target)
	ack.AddHeader("Via", fmt.Sprintf("SIP/2.0/UDP %s:%d;branch=%s", u.localIP, LocalPort, p.Branch))
	ack.AddHeader("Max-Forwards", "70")
	ack.AddHeader("From", fmt.Sprintf(`"%s" <sip:%s@%s>;tag=%s`, u.cfg.DisplayName, u.cfg.User, u.domain(), p.FromTag))
	toTag := paramValue(resp.Header("To"), "tag")
	to := fmt.Sprintf("<%s>", p.Target)
	if toTag != "" {
		to += ";tag=" + toTag
	}
	ack.AddHeader("To", to)
	ack.AddHeader("Call-ID", p.CallID)
	ack.AddHeader("CSeq", fmt.Sprintf("%d ACK", p.CSeq))
	ack.SetBody(nil)
	_ = u.transport.SendTo(ack.Bytes(), proxy)
}

func (u *UA) send2xxAck(p *PendingInvite, now time.Time) {
	target := u.resolveAddr(p.RemoteURI, u.cfg.ProxyPort)
	if target == nil {
		return
	}
	branch := newBranch()
	ack := NewRequest("ACK", contactURI(p.RemoteURI))
	ack.AddHeader("Via", fmt.Sprintf("SIP/2.0/UDP %s:%d;branch=%s", u.localIP, LocalPort, branch))
	ack.AddHeader("Max-Forwards", "70")
	ack.AddHeader("From", fmt.Sprintf(`"%s" <sip:%s@%s>;tag=%s`, u.cfg.DisplayName, u.cfg.User, u.domain(), p.FromTag))
	to := fmt.Sprintf("<%s>", p.Target)
	if p.ToTag != "" {
		to += ";tag=" + p.ToTag
	}
	ack.AddHeader("To", to)
	ack.AddHeader("Call-ID", p.CallID)
	ack.AddHeader("CSeq", fmt.Sprintf("%d ACK", p.CSeq))
	ack.SetBody(nil)
	_ = u.transport.SendTo(ack.Bytes(), target)
}

func (u *UA) sendCancel(p *PendingInvite, now time.Time) {
	proxy, err := u.transport.ProxyAddr(now)
	if err != nil {
		return
	}
	req := NewRequest("CANCEL", p.Target)
	req.AddHeader("Via", fmt.Sprintf("SIP/2.0/UDP %s:%d;branch=%s", u.localIP, LocalPort, p.Branch))
	req.AddHeader("Max-Forwards", "70")
	req.AddHeader("From", fmt.Sprintf(`"%s" <sip:%s@%s>;tag=%s`, u.cfg.DisplayName, u.cfg.User, u.domain(), p.FromTag))
	req.AddHeader("To", fmt.Sprintf("<%s>", p.Target))
	req.AddHeader("Call-ID", p.CallID)
	req.AddHeader("CSeq", fmt.Sprintf("%d CANCEL", p.CSeq))
	req.SetBody(nil)
	_ = u.transport.SendTo(req.Bytes(), proxy)
}

func (u *UA) clearPending() {
	u.pending = nil
	ringTransition(u.ringFSM, "hangup")
	ringTransition(u.ringFSM, "reset")
}

// RingProcess drives the ring timer: CANCEL at 30s, hard-clear 3s after
// CANCEL (or immediately if no provisional response ever arrived), per
// §4.1/§8's boundary behaviors.
func (u *UA) RingProcess(now time.Time) {
	p := u.pending
	if p == nil || !p.Active || p.Answered {
		return
	}
	if !p.CancelSent && now.Sub(p.InviteStart) >= RingTimeout {
		if p.CanCancel {
			u.sendCancel(p, now)
			p.CancelSent = true
			p.CancelStart = now
			ringTransition(u.ringFSM, "cancel_sent")
		} else {
			u.clearPending()
		}
		return
	}
	if p.CancelSent && now.Sub(p.CancelStart) >= CancelGrace {
		u.clearPending()
	}
}

// MediaProcess enforces the in-call-hold timeout: an answered call auto-
// BYEs after 60s, per §4.1/§5.
func (u *UA) MediaProcess(now time.Time) {
	a := u.active
	if a == nil {
		return
	}
	if now.Sub(a.StartedAt) >= InCallHold {
		u.sendBye(a, now)
		u.clearActive()
	}
}

func (u *UA) sendBye(a *ActiveCall, now time.Time) {
	if a.BYESent {
		return
	}
	target := &net.UDPAddr{IP: net.ParseIP(a.SIPRemoteIP), Port: a.SIPRemotePort}
	if target.IP == nil {
		target = u.resolveAddr(a.RemoteContact, u.cfg.ProxyPort)
	}
	if target == nil {
		return
	}
	a.LocalCSeq++
	req := NewRequest("BYE", a.RemoteContact)
	req.AddHeader("Via", fmt.Sprintf("SIP/2.0/UDP %s:%d;branch=%s", u.localIP, LocalPort, newBranch()))
	req.AddHeader("Max-Forwards", "70")
	req.AddHeader("From", fmt.Sprintf(`"%s" <sip:%s@%s>;tag=%s`, u.cfg.DisplayName, u.cfg.User, u.domain(), a.LocalTag))
	req.AddHeader("To", fmt.Sprintf("<sip:%s@%s>;tag=%s", u.cfg.Target, u.domain(), a.RemoteTag))
	req.AddHeader("Call-ID", a.CallID)
	req.AddHeader("CSeq", fmt.Sprintf("%d BYE", a.LocalCSeq))
	req.SetBody(nil)
	if err := u.transport.SendTo(req.Bytes(), target); err != nil {
		u.logger.Warn().Err(err).Msg("bye: send failed")
	}
	a.BYESent = true
}

func (u *UA) clearActive() {
	u.active = nil
	ringTransition(u.ringFSM, "hangup")
	ringTransition(u.ringFSM, "reset")
	if u.callEndCallback != nil {
		u.callEndCallback()
	}
	if u.metrics != nil {
		u.metrics.ActiveCalls.Set(0)
	}
}

func (u *UA) startActiveFromPending(p *PendingInvite, now time.Time) {
	host, port, _ := parseSIPURIAddr(p.RemoteURI, u.cfg.ProxyPort)
	audioPT := uint8(0)
	if !p.Media.HasPCMU && p.Media.HasPCMA {
		audioPT = 8
	}
	a := &ActiveCall{
		Inbound: false, CallID: p.CallID, LocalTag: p.FromTag, RemoteTag: p.ToTag,
		RemoteContact: p.RemoteURI, RequestURI: p.Target, LocalCSeq: p.CSeq,
		SIPRemoteIP: host, SIPRemotePort: port,
		RTPRemoteIP: p.Media.RemoteIP, RTPRemotePort: p.Media.RemotePort,
		AudioPayload: audioPT, DTMFPayload: p.Media.DTMFPayloadType,
		RemoteSends: p.Media.RemoteSends, RemoteReceives: p.Media.RemoteReceives,
		LocalSends: u.MicEnabled, LocalReceives: u.SpeakerEnabled,
		StartedAt: now,
	}
	u.active = a
	u.pending = nil
	ringTransition(u.ringFSM, "answered")
	if u.metrics != nil {
		u.metrics.ActiveCalls.Set(1)
	}
	if u.callStartCallback != nil {
		u.callStartCallback(*a)
	}
}

// ---- inbound requests (§4.1) ----

func (u *UA) handleInviteResponse(msg *Message, now time.Time) {
	p := u.pending
	if p == nil {
		return
	}
	cseq, method, ok := msg.CSeq()
	if !ok || method != "INVITE" || cseq != p.CSeq {
		return
	}
	switch {
	case msg.StatusCode >= 100 && msg.StatusCode < 200:
		p.CanCancel = true
		if u.ringTickCallback != nil {
			u.ringTickCallback()
		}
	case msg.StatusCode == 401 || msg.StatusCode == 407:
		// ACK this response against the INVITE transaction it actually
		// answers (same branch, same CSeq) before any auth retry below
		// mutates p.Branch/p.CSeq for the rebuilt INVITE, per RFC 3261
		// §17.1.1.3.
		u.sendNon2xxAck(p, msg, now)
		if !p.AuthSent {
			isProxy := msg.StatusCode == 407
			headerName := "WWW-Authenticate"
			if isProxy {
				headerName = "Proxy-Authenticate"
			}
			chal := ParseChallenge(msg.Header(headerName), isProxy)
			if !chal.Valid() {
				u.clearPending()
				return
			}
			p.CSeq++
			p.Branch = newBranch()
			p.AuthSent = true
			if chal.QOP != "" {
				u.reg.NonceCount++
			}
			auth := ComputeAuth(u.cfg.User, u.cfg.Password, chal, "INVITE", u.registrarURI(), u.reg.NonceCount, NewCNonce())
			u.sendInvite(p, &auth, now)
		}
	case msg.StatusCode >= 200 && msg.StatusCode < 300:
		p.ToTag = paramValue(msg.Header("To"), "tag")
		p.RemoteURI = contactURI(msg.Header("Contact"))
		if desc, ok := ParseMediaDescriptor(msg.Body); ok {
			p.Media = desc
			p.MediaReady = true
		}
		p.Answered = true
		p.AnsweredAt = now
		u.send2xxAck(p, now)
		u.startActiveFromPending(p, now)
	default:
		u.sendNon2xxAck(p, msg, now)
		u.clearPending()
	}
}

// handleResponse classifies an incoming response by its CSeq method.
func (u *UA) handleResponse(msg *Message, now time.Time) {
	_, method, ok := msg.CSeq()
	if !ok {
		return
	}
	switch method {
	case "REGISTER":
		u.handleRegisterResponse(msg)
	case "INVITE":
		u.handleInviteResponse(msg, now)
	}
}

func (u *UA) sendStatelessResponse(req *Message, addr *net.UDPAddr, code int, reason string, extra map[string]string) {
	resp := NewResponse(code, reason)
	resp.AddHeader("Via", req.Header("Via"))
	from := req.Header("From")
	resp.AddHeader("From", from)
	to := req.Header("To")
	if !strings.Contains(to, "tag=") {
		to += ";tag=" + newTag()
	}
	resp.AddHeader("To", to)
	resp.AddHeader("Call-ID", req.Header("Call-ID"))
	resp.AddHeader("CSeq", req.Header("CSeq"))
	for k, v := range extra {
		resp.AddHeader(k, v)
	}
	resp.SetBody(nil)
	_ = u.transport.SendTo(resp.Bytes(), addr)
}

func (u *UA) handleInboundInvite(req *Message, addr *net.UDPAddr, now time.Time) {
	if u.RingActive() {
		u.sendStatelessResponse(req, addr, 486, "Busy Here", nil)
		return
	}

	desc, ok := ParseMediaDescriptor(req.Body)
	if !ok {
		return // protocol-parse failure: ignore per §7
	}

	localTag := newTag()
	remoteTag := paramValue(req.Header("From"), "tag")
	callID := req.Header("Call-ID")
	cseq, _, _ := req.CSeq()
	audioPT := uint8(0)
	if !desc.HasPCMU && desc.HasPCMA {
		audioPT = 8
	}

	u.sendStatelessResponse(req, addr, 100, "Trying", nil)

	resp := NewResponse(200, "OK")
	resp.AddHeader("Via", req.Header("Via"))
	resp.AddHeader("From", req.Header("From"))
	resp.AddHeader("To", req.Header("To")+";tag="+localTag)
	resp.AddHeader("Call-ID", callID)
	resp.AddHeader("CSeq", req.Header("CSeq"))
	resp.AddHeader("Contact", u.contactHeader())
	resp.AddHeader("User-Agent", userAgentHeader)
	resp.AddHeader("Content-Type", "application/sdp")
	resp.SetBody(BuildOffer(OfferConfig{
		LocalIP: u.localIP, RTPPort: u.RTPPort, DTMFPayload: 101,
		SendAudio: u.MicEnabled, ReceiveAudio: u.SpeakerEnabled,
	}))
	_ = u.transport.SendTo(resp.Bytes(), addr)

	u.active = &ActiveCall{
		Inbound: true, Acked: false, CallID: callID, LocalTag: localTag, RemoteTag: remoteTag,
		RemoteContact: contactURI(req.Header("Contact")), RequestURI: req.RequestURI,
		LocalCSeq: cseq, RemoteCSeq: cseq,
		SIPRemoteIP: addr.IP.String(), SIPRemotePort: addr.Port,
		RTPRemoteIP: desc.RemoteIP, RTPRemotePort: desc.RemotePort,
		AudioPayload: audioPT, DTMFPayload: desc.DTMFPayloadType,
		RemoteSends: desc.RemoteSends, RemoteReceives: desc.RemoteReceives,
		LocalSends: u.MicEnabled, LocalReceives: u.SpeakerEnabled,
		StartedAt: now,
	}
	ringTransition(u.ringFSM, "invite_received")
}

func (u *UA) handleAck(req *Message) {
	a := u.active
	if a == nil || a.CallID != req.Header("Call-ID") {
		return
	}
	if !a.Acked {
		a.Acked = true
		ringTransition(u.ringFSM, "ack_received")
		if u.metrics != nil {
			u.metrics.ActiveCalls.Set(1)
		}
		if u.callStartCallback != nil {
			u.callStartCallback(*a)
		}
	}
}

func (u *UA) handleByeOrCancel(req *Message, addr *net.UDPAddr) {
	u.sendStatelessResponse(req, addr, 200, "OK", nil)
	if u.active != nil {
		u.clearActive()
	} else if u.pending != nil {
		u.clearPending()
	}
}

func (u *UA) handleOptions(req *Message, addr *net.UDPAddr) {
	u.sendStatelessResponse(req, addr, 200, "OK", map[string]string{
		"Allow": "INVITE, ACK, BYE, CANCEL, OPTIONS",
	})
}

func (u *UA) handleRequest(req *Message, addr *net.UDPAddr, now time.Time) {
	switch req.Method {
	case "OPTIONS":
		u.handleOptions(req, addr)
	case "BYE", "CANCEL":
		u.handleByeOrCancel(req, addr)
	case "INVITE":
		u.handleInboundInvite(req, addr, now)
	case "ACK":
		u.handleAck(req)
	}
}

// HandleIncoming drains every pending UDP datagram this tick (non-
// blocking per §5) and dispatches each as a response or a request.
func (u *UA) HandleIncoming() {
	if u.transport == nil {
		return
	}
	now := time.Now()
	buf := make([]byte, 2048)
	for {
		n, addr, ok := u.transport.ReadDatagram(buf)
		if !ok {
			return
		}
		msg, parsed := Parse(buf[:n])
		if !parsed {
			continue // protocol-parse failure: silently dropped per §7
		}
		if !msg.IsRequest {
			u.handleResponse(msg, now)
			continue
		}
		u.handleRequest(msg, addr, now)
	}
}
