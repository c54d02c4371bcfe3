package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostbridge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"component", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hostbridge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"component", "method", "path", "status"},
	)

	queueEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hostbridge",
		Subsystem: "queue",
		Name:      "enqueued_total",
		Help:      "Commands appended to the deferred queue.",
	})
	queueDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hostbridge",
		Subsystem: "queue",
		Name:      "dropped_total",
		Help:      "Commands dropped because the queue was closed.",
	})
	queueExecuted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hostbridge",
		Subsystem: "queue",
		Name:      "executed_total",
		Help:      "Commands executed on the host thread.",
	})
	queueFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hostbridge",
		Subsystem: "queue",
		Name:      "failed_total",
		Help:      "Commands that panicked during execution.",
	})
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hostbridge",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Commands waiting for the next drain.",
	})
	queueBatch = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hostbridge",
		Subsystem: "queue",
		Name:      "drain_batch_size",
		Help:      "Commands executed per drain.",
		Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
	})

	hostTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hostbridge",
		Subsystem: "host",
		Name:      "ticks_total",
		Help:      "Host loop adapter invocations.",
	})

	windowRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostbridge",
			Subsystem: "window",
			Name:      "mode_requests_total",
			Help:      "Window mode intents recorded.",
		},
		[]string{"window", "intent"},
	)
	windowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostbridge",
			Subsystem: "window",
			Name:      "mode_transitions_total",
			Help:      "Window mode transitions applied on the host thread.",
		},
		[]string{"window", "mode"},
	)

	relayState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hostbridge",
		Subsystem: "relay",
		Name:      "state",
		Help:      "Relay connection state (0 disconnected, 1 connecting, 2 connected).",
	})
	relayFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostbridge",
			Subsystem: "relay",
			Name:      "frames_total",
			Help:      "Relay frames by direction and message type.",
		},
		[]string{"direction", "type"},
	)
	relayProtocolErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hostbridge",
		Subsystem: "relay",
		Name:      "protocol_errors_total",
		Help:      "Inbound relay messages dropped as malformed.",
	})
	relayDisconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hostbridge",
		Subsystem: "relay",
		Name:      "disconnects_total",
		Help:      "Relay connection failures.",
	})
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			queueEnqueued, queueDropped, queueExecuted, queueFailed, queueDepth, queueBatch,
			hostTicks,
			windowRequests, windowTransitions,
			relayState, relayFrames, relayProtocolErrors, relayDisconnects,
		)
	})
}

func RecordHTTPRequest(component, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(component, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(component, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordEnqueue(depth int) {
	RegisterMetrics()
	queueEnqueued.Inc()
	queueDepth.Set(float64(depth))
}

func RecordDropped() {
	RegisterMetrics()
	queueDropped.Inc()
}

func RecordDrain(executed, failed int) {
	RegisterMetrics()
	queueExecuted.Add(float64(executed))
	queueFailed.Add(float64(failed))
	queueBatch.Observe(float64(executed))
	queueDepth.Set(0)
}

func RecordHostTick() {
	RegisterMetrics()
	hostTicks.Inc()
}

func RecordModeRequest(window, intent string) {
	RegisterMetrics()
	windowRequests.WithLabelValues(window, intent).Inc()
}

func RecordModeTransition(window, mode string) {
	RegisterMetrics()
	windowTransitions.WithLabelValues(window, mode).Inc()
}

func RecordRelayState(state int) {
	RegisterMetrics()
	relayState.Set(float64(state))
}

func RecordRelayFrame(direction, msgType string) {
	RegisterMetrics()
	relayFrames.WithLabelValues(direction, msgType).Inc()
}

func RecordRelayProtocolError() {
	RegisterMetrics()
	relayProtocolErrors.Inc()
}

func RecordRelayDisconnect() {
	RegisterMetrics()
	relayDisconnects.Inc()
}
