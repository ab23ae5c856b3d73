// Package metrics holds the process-wide Prometheus collectors and a windowed
// counter that is flushed to the log and reset on an interval.
package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Metrics is created once at process start. A nil *Metrics is a valid no-op.
type Metrics struct {
	Transitions         *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	Notifications       *prometheus.CounterVec

	window window
}

type window struct {
	requests      atomic.Int64
	transitions   atomic.Int64
	notifyFailed  atomic.Int64
	notifyDropped atomic.Int64
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devmarket_transitions_total",
				Help: "Committed lifecycle transitions",
			},
			[]string{"engine", "action"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devmarket_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"method", "route", "status"},
		),
		Notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devmarket_notifications_total",
				Help: "Notification deliveries by result",
			},
			[]string{"result"},
		),
	}
}

// Transition counts a committed transition.
func (m *Metrics) Transition(engine, action string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(engine, action).Inc()
	m.window.transitions.Add(1)
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
	m.window.requests.Add(1)
}

// Notification results.
const (
	NotifySent    = "sent"
	NotifyFailed  = "failed"
	NotifyDropped = "dropped"
)

// Notification counts one notification outcome.
func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(result).Inc()
	switch result {
	case NotifyFailed:
		m.window.notifyFailed.Add(1)
	case NotifyDropped:
		m.window.notifyDropped.Add(1)
	}
}

// Snapshot is the windowed counts since the last flush.
type Snapshot struct {
	Requests      int64
	Transitions   int64
	NotifyFailed  int64
	NotifyDropped int64
}

// Flush returns the window counts and resets them to zero.
func (m *Metrics) Flush() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Requests:      m.window.requests.Swap(0),
		Transitions:   m.window.transitions.Swap(0),
		NotifyFailed:  m.window.notifyFailed.Swap(0),
		NotifyDropped: m.window.notifyDropped.Swap(0),
	}
}

// RunFlusher logs and resets the window every interval until ctx is done.
func (m *Metrics) RunFlusher(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if m == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.Flush()
			logger.Info("Metrics window",
				zap.Duration("interval", interval),
				zap.Int64("requests", s.Requests),
				zap.Int64("transitions", s.Transitions),
				zap.Int64("notifications_failed", s.NotifyFailed),
				zap.Int64("notifications_dropped", s.NotifyDropped))
		}
	}
}
