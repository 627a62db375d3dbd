// Package metrics holds the prometheus collectors of the signaling node.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	calls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voice",
			Subsystem: "call",
			Name:      "sessions_total",
			Help:      "Call peers created, by direction.",
		},
		[]string{"direction"},
	)
	peerStates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voice",
			Subsystem: "call",
			Name:      "state_transitions_total",
			Help:      "Call peer state transitions, by target state.",
		},
		[]string{"state"},
	)
	harvestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "voice",
			Subsystem: "transport",
			Name:      "harvest_duration_seconds",
			Help:      "Time from harvest start to wrap-up.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"timed_out"},
	)
	candidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voice",
			Subsystem: "transport",
			Name:      "candidates_total",
			Help:      "Local candidates harvested, by harvester and delivery.",
		},
		[]string{"harvester", "delivery"},
	)
	coinNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voice",
			Subsystem: "coin",
			Name:      "notifications_total",
			Help:      "Conference notification attempts, by outcome.",
		},
		[]string{"outcome"},
	)
	relayQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voice",
			Subsystem: "relay",
			Name:      "discovery_queries_total",
			Help:      "Relay discovery node queries, by phase and success.",
		},
		[]string{"phase", "success"},
	)
	signalFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "voice",
			Subsystem: "signal",
			Name:      "frames_total",
			Help:      "Signaling frames, by direction, type and outcome.",
		},
		[]string{"direction", "type", "outcome"},
	)
)

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(calls, peerStates, harvestDuration, candidates, coinNotifications, relayQueries, signalFrames)
	})
}

func CallCreated(direction string) {
	Register()
	calls.WithLabelValues(direction).Inc()
}

func PeerState(state string) {
	Register()
	peerStates.WithLabelValues(state).Inc()
}

func HarvestDone(d time.Duration, timedOut bool) {
	Register()
	label := "false"
	if timedOut {
		label = "true"
	}
	harvestDuration.WithLabelValues(label).Observe(d.Seconds())
}

func Candidates(harvester, delivery string, n int) {
	Register()
	candidates.WithLabelValues(harvester, delivery).Add(float64(n))
}

// Coin outcomes: sent, deferred, skipped, unsupported, failed, unchanged.
func Coin(outcome string) {
	Register()
	coinNotifications.WithLabelValues(outcome).Inc()
}

func RelayQuery(phase string, ok bool) {
	Register()
	label := "false"
	if ok {
		label = "true"
	}
	relayQueries.WithLabelValues(phase, label).Inc()
}

// SignalFrame counts one frame. Outcomes: ok, limited, backpressure, no-route, bad.
func SignalFrame(direction, typ, outcome string) {
	Register()
	signalFrames.WithLabelValues(direction, typ, outcome).Inc()
}
