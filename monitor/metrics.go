// Package monitor exposes Prometheus metrics for the relay loop.
package monitor

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relayAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agrelay",
		Name:      "relay_attempts_total",
		Help:      "Upstream attempts by relay mode and HTTP status (0 = transport error).",
	}, []string{"mode", "status"})

	relayExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agrelay",
		Name:      "relay_exhausted_total",
		Help:      "Requests that ran out of accounts before a usable response.",
	}, []string{"mode"})

	accountRotations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agrelay",
		Name:      "account_rotations_total",
		Help:      "Forced account rotations triggered by upstream failures.",
	})

	peekRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agrelay",
		Name:      "stream_peek_retries_total",
		Help:      "Streams abandoned during peek (error event, empty stream, timeout).",
	})

	imageTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agrelay",
		Name:      "image_tasks_total",
		Help:      "Individual image generation calls by outcome.",
	}, []string{"outcome"})

	relayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agrelay",
		Name:      "relay_duration_seconds",
		Help:      "Wall time of relay requests by mode.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"mode"})
)

// RecordAttempt counts one upstream attempt. status 0 means the request never
// produced an HTTP response.
func RecordAttempt(mode string, status int) {
	relayAttempts.WithLabelValues(mode, strconv.Itoa(status)).Inc()
}

// RecordExhausted counts a request that exhausted the account pool.
func RecordExhausted(mode string) {
	relayExhausted.WithLabelValues(mode).Inc()
}

// RecordRotation counts a forced account rotation.
func RecordRotation() {
	accountRotations.Inc()
}

// RecordPeekRetry counts a stream abandoned at the peek stage.
func RecordPeekRetry() {
	peekRetries.Inc()
}

// RecordImageTask counts one image fan-out call.
func RecordImageTask(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	imageTasks.WithLabelValues(outcome).Inc()
}

// ObserveRelayDuration records the total handler time for one request.
func ObserveRelayDuration(mode string, start time.Time) {
	relayDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
