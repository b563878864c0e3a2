// Command doorbell is the firmware entrypoint: it builds every
// collaborator the boot orchestrator sequences (SIP UA, RTSP server,
// audio fabric, camera, button, network) and runs the two-task split
// from §5 — a 50ms main loop and a busy-looping streaming loop — until
// interrupted.
//
// This binary targets a desktop/CI host, not real silicon: the camera,
// audio I/O, network, and button collaborators are the simulated
// implementations internal/* ships for exactly this purpose (see each
// package's doc comment for the real-hardware swap-in point). It exists
// so the module can be run and observed end to end without a physical
// doorbell attached.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/jfg3rd/doorbell-core/internal/audio"
	"github.com/jfg3rd/doorbell-core/internal/boot"
	"github.com/jfg3rd/doorbell-core/internal/button"
	"github.com/jfg3rd/doorbell-core/internal/camera"
	"github.com/jfg3rd/doorbell-core/internal/logring"
	"github.com/jfg3rd/doorbell-core/internal/metrics"
	"github.com/jfg3rd/doorbell-core/internal/netinfo"
	"github.com/jfg3rd/doorbell-core/internal/nvs"
	"github.com/jfg3rd/doorbell-core/internal/sip"
)

func main() {
	var (
		nvsPath     = pflag.String("nvs-path", "doorbell.db", "path to the persisted config store")
		proxyHost   = pflag.String("sip-proxy-host", "fritz.box", "SIP registrar/proxy hostname")
		proxyPort   = pflag.Int("sip-proxy-port", 5060, "SIP registrar/proxy port")
		rtspAllow   = pflag.Bool("rtsp-allow-udp", true, "allow RTSP clients to request UDP transport")
		micSource   = pflag.String("mic-source", "external_i2s", "boot-time mic source: external_i2s or pdm")
		aacRate     = pflag.Int("aac-sample-rate", 16000, "AAC target sample rate: 8000 or 16000")
		localIPFlag = pflag.String("local-ip", "", "local IP to advertise in SIP Contact / RTSP SDP (autodetected if empty)")
		verbose     = pflag.BoolP("verbose", "v", false, "enable debug-level logging")
	)
	pflag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	base := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	ring := logring.New()
	logger := ring.Logger(base, "orchestrator")

	store, err := nvs.Open(*nvsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open config store")
	}
	defer store.Close()

	sipCfg, camCfg := loadConfig(store, *proxyHost, *proxyPort)
	m := metrics.New()

	localIP := *localIPFlag
	if localIP == "" {
		localIP = detectLocalIP()
	}

	network := netinfo.NewReporter()
	network.SetConnected(true)
	network.SetAddresses(net.ParseIP(localIP), net.ParseIP(localIP).Mask(net.CIDRMask(24, 32)))

	bus := audio.NewBus(parseMicSource(*micSource))
	mic := audio.NewMicCapture(bus, &audio.SimulatedCapture{}, camCfg.MicEn != 0)
	speaker := audio.NewSpeakerOutput(bus, &audio.SimulatedPlayback{}, nil)
	cam := camera.NewSimulated(640, 480)

	ua := sip.NewUA(sipCfg, localIP, network, ring.Logger(base, "sip"), m)

	dbounce := button.New(func() {
		logger.Info().Msg("button pressed, requesting ring")
		ua.RequestRing()
	})

	cfg := boot.Config{
		SIP:           sipCfg,
		MicEnabled:    camCfg.MicEn != 0,
		RTSPEnabled:   camCfg.RTSPEnabled != 0,
		RTSPAllowUDP:  *rtspAllow,
		AACSampleRate: *aacRate,
	}
	deps := boot.Deps{
		UA:      ua,
		Mic:     mic,
		Speaker: speaker,
		Camera:  cam,
		Network: network,
		Button:  dbounce,
	}
	orch := boot.New(cfg, deps, m, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info().Str("local_ip", localIP).Bool("sip_enabled", sipCfg.Enabled).
		Bool("rtsp_enabled", cfg.RTSPEnabled).Msg("doorbell-core starting")

	go orch.StreamingLoop(ctx)
	orch.Run(ctx)

	logger.Info().Msg("doorbell-core shutting down")
}

// loadConfig reads the sip/camera namespaces, falling back to disabled
// defaults when nothing has been provisioned yet — mirroring the
// "Configuration-missing" error kind from §7 (report, don't attempt).
func loadConfig(store *nvs.Store, proxyHost string, proxyPort int) (sip.Config, nvs.CameraConfig) {
	var sipRaw nvs.SIPConfig
	_ = store.OpenNamespace("sip").Decode(&sipRaw)
	var camRaw nvs.CameraConfig
	_ = store.OpenNamespace("camera").Decode(&camRaw)

	sipCfg := sip.Config{
		User:        sipRaw.User,
		Password:    sipRaw.Password,
		DisplayName: sipRaw.DisplayName,
		Target:      sipRaw.Target,
		ProxyHost:   proxyHost,
		ProxyPort:   proxyPort,
		Enabled:     sipRaw.Enabled != 0,
		Verbose:     sipRaw.Verbose != 0,
	}
	return sipCfg, camRaw
}

func parseMicSource(s string) audio.MicSource {
	if s == "pdm" {
		return audio.MicSourcePDM
	}
	return audio.MicSourceExternalI2S
}

// detectLocalIP dials out (no packets are sent for a UDP socket) to learn
// which local address the OS would route through, the same trick
// `arzzra-soft_phone` uses in its transport bring-up.
func detectLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
