// Package boot implements the §4.5 boot orchestrator: the deferred,
// one-shot bring-up sequence that runs once an IP address is acquired,
// and the two-task main-loop split §5 describes (a 50ms-period main task
// owning SIP/button/LED, and a busy-looping streaming task owning the
// RTSP listener and frame fan-out).
package boot

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfg3rd/doorbell-core/internal/audio"
	"github.com/jfg3rd/doorbell-core/internal/button"
	"github.com/jfg3rd/doorbell-core/internal/camera"
	"github.com/jfg3rd/doorbell-core/internal/led"
	"github.com/jfg3rd/doorbell-core/internal/metrics"
	"github.com/jfg3rd/doorbell-core/internal/netinfo"
	"github.com/jfg3rd/doorbell-core/internal/rtpcommon"
	"github.com/jfg3rd/doorbell-core/internal/rtsp"
	"github.com/jfg3rd/doorbell-core/internal/sip"
	"github.com/jfg3rd/doorbell-core/internal/siprtp"
)

// mainLoopTick is the main task's period, §5.
const mainLoopTick = 50 * time.Millisecond

// streamingLoopTick is the streaming task's yield interval between
// busy-loop iterations, §5.
const streamingLoopTick = time.Millisecond

// micNativeRate is the microphone's fixed capture rate; the AAC pipeline
// decimates down from it to the configured target rate, per §4.3/§4.4.
const micNativeRate = 16000

// Config bundles the boot-time choices the orchestrator sequences
// bring-up around.
type Config struct {
	SIP           sip.Config
	MicEnabled    bool
	RTSPEnabled   bool
	RTSPAllowUDP  bool
	AACSampleRate int // 8000 or 16000
}

// Deps bundles the already-constructed collaborators the orchestrator
// sequences and drives; this module builds the sequencing logic, not the
// hardware bindings themselves; callers (cmd/doorbell, tests) provide
// real or simulated implementations.
type Deps struct {
	UA      *sip.UA
	Mic     *audio.MicCapture
	Speaker *audio.SpeakerOutput
	Camera  camera.Camera
	Network netinfo.Network
	Button  *button.Debouncer
}

// Orchestrator runs the two task loops described in §4.5/§5 over one set
// of Deps.
type Orchestrator struct {
	cfg     Config
	deps    Deps
	metrics *metrics.Registry
	logger  zerolog.Logger

	wasConnected    int32 // atomic bool
	ipAcquired      int32 // atomic bool, deferred one-shot flag
	cameraBroughtUp int32 // atomic bool, one-shot latch
	apMode          int32 // atomic bool, externally driven

	rtpSession   *siprtp.Session
	aacPipeline  *audio.Pipeline
	rtspManager  *rtsp.Manager
	rtspServer   *rtsp.Server
	rtspStreamer *rtsp.Streamer

	buttonLevel int32 // atomic bool, raw GPIO level
}

// New builds an Orchestrator and wires the UA's call-lifecycle callbacks
// to this module's RTP session and DTMF handling.
func New(cfg Config, deps Deps, m *metrics.Registry, logger zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg: cfg, deps: deps, metrics: m,
		logger: logger.With().Str("component", "orchestrator").Logger(),
	}
	if deps.UA != nil {
		deps.UA.SetCallStartCallback(o.onCallStart)
		deps.UA.SetCallEndCallback(o.onCallEnd)
		deps.UA.SetDTMFCallback(o.onDTMF)
	}
	return o
}

// SetButtonLevel reports the raw, possibly-bouncy GPIO level (true ==
// pressed) for the next Tick's debounce pass.
func (o *Orchestrator) SetButtonLevel(pressed bool) {
	if pressed {
		atomic.StoreInt32(&o.buttonLevel, 1)
	} else {
		atomic.StoreInt32(&o.buttonLevel, 0)
	}
}

// SetAPMode reports whether the device has fallen back to Wi-Fi AP mode,
// for the LED priority resolution; Wi-Fi mode selection itself is owned
// by the external network driver, not this module.
func (o *Orchestrator) SetAPMode(active bool) {
	if active {
		atomic.StoreInt32(&o.apMode, 1)
	} else {
		atomic.StoreInt32(&o.apMode, 0)
	}
}

func (o *Orchestrator) onCallStart(call sip.ActiveCall) {
	sess, err := siprtp.New(o.deps.Mic, o.deps.Speaker, o.metrics, o.logger)
	if err != nil {
		o.logger.Error().Err(err).Msg("siprtp session init failed")
		return
	}
	sess.Start(call, o.onDTMF)
	o.rtpSession = sess
}

func (o *Orchestrator) onCallEnd() {
	if o.rtpSession != nil {
		o.rtpSession.Stop()
		o.rtpSession = nil
	}
}

func (o *Orchestrator) onDTMF(d rtpcommon.DTMFDigit) {
	o.logger.Info().Str("digit", string(d.Rune())).Msg("dtmf received")
}

// Run drives the 50ms main task until ctx is canceled, per §4.5's tick
// order: service deferred bring-up flags, drive SIP, poll the button,
// then recompute the status LED.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(mainLoopTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			o.Tick(now)
		}
	}
}

// Tick runs one main-task iteration. Exported so tests and an
// alternative scheduler can drive it directly instead of through Run.
func (o *Orchestrator) Tick(now time.Time) led.State {
	o.serviceConnectivity(now)

	connected := o.deps.Network != nil && o.deps.Network.IsConnected()
	if o.deps.UA != nil && o.cfg.SIP.Enabled && connected {
		o.deps.UA.HandleIncoming()
		o.deps.UA.CheckPendingRing(now)
		if o.deps.UA.RingActive() {
			o.deps.UA.RingProcess(now)
			o.deps.UA.MediaProcess(now)
		}
		o.deps.UA.RegisterIfNeeded(now)
	}

	if o.rtpSession != nil {
		o.rtpSession.Poll()
	}

	if o.deps.Button != nil {
		o.deps.Button.Feed(atomic.LoadInt32(&o.buttonLevel) != 0, now)
	}

	return o.resolveLED(connected)
}

func (o *Orchestrator) resolveLED(connected bool) led.State {
	ringing := o.deps.UA != nil && o.deps.UA.RingActive()
	apMode := atomic.LoadInt32(&o.apMode) != 0
	registered := o.deps.UA != nil && o.deps.UA.IsRegistered()
	rtspActive := o.rtspManager != nil && len(o.rtspManager.Playing()) > 0

	return led.Resolve(led.Conditions{
		Ringing:    ringing,
		APMode:     apMode && !connected,
		Connecting: !connected && !apMode,
		SIPError:   o.cfg.SIP.Enabled && connected && !registered,
		SIPOk:      o.cfg.SIP.Enabled && registered,
		RTSPActive: rtspActive,
	})
}

// serviceConnectivity implements §4.5's deferred one-shot-flag pattern:
// the connectivity transition is detected here (this module's only event
// source, since there is no separate Wi-Fi event-callback context in
// this port), latched into an atomic flag the way the SIP UA latches
// ringRequested, and serviced exactly once per transition.
func (o *Orchestrator) serviceConnectivity(now time.Time) {
	connected := o.deps.Network != nil && o.deps.Network.IsConnected()
	wasConnected := atomic.LoadInt32(&o.wasConnected) != 0

	if connected && !wasConnected {
		atomic.StoreInt32(&o.ipAcquired, 1)
	}
	if connected {
		atomic.StoreInt32(&o.wasConnected, 1)
	} else {
		atomic.StoreInt32(&o.wasConnected, 0)
	}

	if atomic.CompareAndSwapInt32(&o.ipAcquired, 1, 0) {
		o.onIPAcquired(now)
	}
}

// onIPAcquired runs the IP-acquired bring-up sequence: SIP init, then
// (once, ever) the camera bring-up subsequence.
func (o *Orchestrator) onIPAcquired(now time.Time) {
	o.logger.Info().Msg("ip acquired")

	if o.cfg.SIP.Enabled && o.deps.UA != nil {
		if err := o.deps.UA.Init(); err != nil {
			o.logger.Error().Err(err).Msg("sip init failed")
		}
	}

	if atomic.CompareAndSwapInt32(&o.cameraBroughtUp, 0, 1) {
		o.bringUpCamera(now)
	}
}

// bringUpCamera runs the §4.5 camera bring-up subsequence: RTSP server,
// then mic capture, then the AAC pipeline, in that order, each step
// skipped (not fatal) if its prerequisite isn't met.
func (o *Orchestrator) bringUpCamera(now time.Time) {
	if o.deps.Camera == nil || !o.deps.Camera.IsReady() {
		o.logger.Warn().Msg("camera not ready, skipping media bring-up")
		return
	}

	if o.cfg.RTSPEnabled {
		localIP := "0.0.0.0"
		if o.deps.Network != nil && o.deps.Network.LocalIP() != nil {
			localIP = o.deps.Network.LocalIP().String()
		}
		manager := rtsp.NewManager(o.cfg.RTSPAllowUDP)
		micEnabled := func() bool { return o.cfg.MicEnabled && o.aacPipeline != nil }
		server, err := rtsp.NewServer(localIP, manager, micEnabled, nil, o.logger)
		if err != nil {
			o.logger.Error().Err(err).Msg("rtsp listen failed")
		} else {
			o.rtspManager = manager
			o.rtspServer = server
			o.rtspStreamer = rtsp.NewStreamer(manager, o.deps.Camera, nil, o.metrics, o.logger)
		}
	}

	if o.cfg.MicEnabled && o.deps.Mic != nil {
		o.deps.Mic.SetEnabled(true)
		encoder := &audio.PlaceholderEncoder{SampleRate: o.cfg.AACSampleRate}
		pipeline, err := audio.NewPipeline(o.deps.Mic, encoder, micNativeRate, o.cfg.AACSampleRate)
		if err != nil {
			o.logger.Error().Err(err).Msg("aac pipeline init failed")
		} else {
			o.aacPipeline = pipeline
			if o.rtspServer != nil {
				o.rtspServer.SetAACPipeline(pipeline)
			}
			if o.rtspStreamer != nil {
				o.rtspStreamer.SetAACPipeline(pipeline)
			}
		}
	}
}

// StreamingLoop drives the RTSP listener's accept/session-control polling
// and the per-tick frame fan-out until ctx is canceled, yielding
// streamingLoopTick between iterations — the core-1 analog of Run, per
// §5's two-task split. A no-op until the camera bring-up sequence has
// built the RTSP server (RTSP disabled, or no IP yet, or the camera
// never came up).
func (o *Orchestrator) StreamingLoop(ctx context.Context) {
	ticker := time.NewTicker(streamingLoopTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if o.rtspServer == nil || o.rtspStreamer == nil {
				continue
			}
			o.rtspServer.PollAccept()
			o.rtspServer.PollSessionControl()
			o.rtspStreamer.Tick(now)
		}
	}
}
