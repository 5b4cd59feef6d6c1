package mux

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framemux",
			Subsystem: "dispatch",
			Name:      "cycles_total",
			Help:      "Dispatch cycles by final state.",
		},
		[]string{"channel", "state"},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framemux",
			Subsystem: "wire",
			Name:      "frames_total",
			Help:      "Frames written or read.",
		},
		[]string{"channel", "kind"},
	)
	connectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "framemux",
			Subsystem: "conn",
			Name:      "connects_total",
			Help:      "Connection attempts.",
		},
		[]string{"channel", "success"},
	)
	pendingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "framemux",
			Subsystem: "table",
			Name:      "pending_requests",
			Help:      "Pending requests after the last cycle.",
		},
		[]string{"channel"},
	)
	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "framemux",
			Subsystem: "dispatch",
			Name:      "exchange_duration_seconds",
			Help:      "Write-to-reconcile time of one exchange.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"channel"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(cyclesTotal, framesTotal, connectsTotal, pendingGauge, exchangeDuration)
	})
}

func RecordCycle(channel string, state State) {
	RegisterMetrics()
	cyclesTotal.WithLabelValues(channel, state.String()).Inc()
}

func RecordFrame(channel, kind string) {
	RegisterMetrics()
	framesTotal.WithLabelValues(channel, kind).Inc()
}

func RecordConnect(channel string, success bool) {
	RegisterMetrics()
	connectsTotal.WithLabelValues(channel, strconv.FormatBool(success)).Inc()
}

func RecordPending(channel string, n int) {
	RegisterMetrics()
	pendingGauge.WithLabelValues(channel).Set(float64(n))
}

func RecordExchange(channel string, d time.Duration) {
	RegisterMetrics()
	exchangeDuration.WithLabelValues(channel).Observe(d.Seconds())
}
