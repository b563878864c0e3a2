// Package metrics exposes the ambient Prometheus registry every
// component reports through: SIP registration state, active call,
// RTSP active-session count, RTP/RTSP packets sent, and the AAC
// encoder's latched-failure state. This is observability, not a spec
// feature in its own right, so it is deliberately small.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every gauge/counter this binary reports, built over
// a private prometheus.Registry rather than the global default so
// multiple instances (e.g. one per test) never collide on duplicate
// registration.
type Registry struct {
	reg *prometheus.Registry

	SIPRegistered      prometheus.Gauge
	ActiveCalls        prometheus.Gauge
	RTSPActiveSessions prometheus.Gauge
	AACEncoderFailed   prometheus.Gauge

	RTPPacketsSent  *prometheus.CounterVec
	RTSPPacketsSent *prometheus.CounterVec
}

// New builds and registers every metric under the "doorbell" namespace.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		SIPRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "doorbell",
			Subsystem: "sip",
			Name:      "registered",
			Help:      "1 if the SIP user agent is currently registered, 0 otherwise.",
		}),
		ActiveCalls: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "doorbell",
			Subsystem: "sip",
			Name:      "active_calls",
			Help:      "Number of SIP calls currently in progress (0 or 1).",
		}),
		RTSPActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "doorbell",
			Subsystem: "rtsp",
			Name:      "active_sessions",
			Help:      "Number of currently active RTSP sessions.",
		}),
		AACEncoderFailed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "doorbell",
			Subsystem: "audio",
			Name:      "aac_encoder_failed",
			Help:      "1 if the AAC encoder has latched into permanent failure, 0 otherwise.",
		}),
		RTPPacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doorbell",
			Subsystem: "sip",
			Name:      "rtp_packets_sent_total",
			Help:      "Total RTP packets sent by the SIP media path, by payload type.",
		}, []string{"payload_type"}),
		RTSPPacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doorbell",
			Subsystem: "rtsp",
			Name:      "packets_sent_total",
			Help:      "Total RTP packets sent by the RTSP media path, by track.",
		}, []string{"track"}),
	}
}

// Gatherer exposes the underlying registry for an HTTP /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// SetSIPRegistered reports the SIP user agent's registration state as
// a 0/1 gauge, matching the original boolean status field.
func (r *Registry) SetSIPRegistered(registered bool) {
	if registered {
		r.SIPRegistered.Set(1)
		return
	}
	r.SIPRegistered.Set(0)
}

// SetAACEncoderFailed reports the AAC pipeline's latched-failure state.
func (r *Registry) SetAACEncoderFailed(failed bool) {
	if failed {
		r.AACEncoderFailed.Set(1)
		return
	}
	r.AACEncoderFailed.Set(0)
}
