package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FramesTotal counts frames handled by the station
	FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsta",
			Name:      "frames_total",
			Help:      "Total number of frames handled by the station",
		},
		[]string{"direction", "category"},
	)

	// FramesDropped counts frames the station discarded
	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsta",
			Name:      "frames_dropped_total",
			Help:      "Total number of frames dropped",
		},
		[]string{"category", "reason"},
	)

	// StateTransitions counts association state changes
	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsta",
			Name:      "state_transitions_total",
			Help:      "Total number of station state transitions",
		},
		[]string{"from", "to"},
	)

	// SmeMessages counts confirmations and indications sent upward
	SmeMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsta",
			Name:      "sme_messages_total",
			Help:      "Total number of MLME confirmations and indications",
		},
		[]string{"message"},
	)

	// Errors counts failures by taxonomy kind
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsta",
			Name:      "errors_total",
			Help:      "Total number of station errors by kind",
		},
		[]string{"kind"},
	)

	// RssiDbm is the rolling RSSI average of the associated BSS
	RssiDbm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wsta",
			Name:      "rssi_dbm",
			Help:      "Moving average of the received signal strength",
		},
	)

	// EapolKeyMessages counts 4-way handshake messages seen on the air
	EapolKeyMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsta",
			Name:      "eapol_key_messages_total",
			Help:      "Total number of EAPOL-Key frames by handshake message",
		},
		[]string{"direction", "message"},
	)

	// ChannelExcursions counts off-channel scans bracketed by the hopper
	ChannelExcursions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wsta",
			Name:      "channel_excursions_total",
			Help:      "Total number of off-channel excursions",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		// Ignore AlreadyRegistered so tests and the binary can share the registry
		prometheus.DefaultRegisterer.Register(FramesTotal)
		prometheus.DefaultRegisterer.Register(FramesDropped)
		prometheus.DefaultRegisterer.Register(StateTransitions)
		prometheus.DefaultRegisterer.Register(SmeMessages)
		prometheus.DefaultRegisterer.Register(Errors)
		prometheus.DefaultRegisterer.Register(RssiDbm)
		prometheus.DefaultRegisterer.Register(EapolKeyMessages)
		prometheus.DefaultRegisterer.Register(ChannelExcursions)
	})
}
