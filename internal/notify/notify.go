// Package notify delivers user notifications off the request path. Engines
// enqueue with Notify and never observe the outcome.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"devmarket/internal/metrics"
	"devmarket/internal/model"
)

// Notifier is the contract consumed by the lifecycle engines.
type Notifier interface {
	Notify(ctx context.Context, userID int64, typ, title, message string, projectID *int64)
}

// Transport delivers a single notification.
type Transport interface {
	Name() string
	Send(ctx context.Context, n model.Notification) error
}

// Options tunes the dispatcher.
type Options struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher fans queued notifications out to every transport.
type Dispatcher struct {
	transports []Transport
	opts       Options
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	queue  chan model.Notification
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Call Start before Notify has any effect
// beyond queueing.
func NewDispatcher(transports []Transport, opts Options, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 5 * time.Second
	}
	return &Dispatcher{
		transports: transports,
		opts:       opts,
		logger:     logger,
		metrics:    m,
		queue:      make(chan model.Notification, opts.QueueSize),
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("Notification dispatcher started",
		zap.Int("workers", d.opts.Workers),
		zap.Int("queue_size", d.opts.QueueSize),
		zap.Int("transports", len(d.transports)))
}

// Notify enqueues a notification without blocking. A full queue or a closed
// dispatcher drops it.
func (d *Dispatcher) Notify(_ context.Context, userID int64, typ, title, message string, projectID *int64) {
	n := model.Notification{
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		ProjectID: projectID,
		CreatedAt: time.Now().UTC(),
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(n, "dispatcher closed")
		return
	}
	select {
	case d.queue <- n:
	default:
		d.drop(n, "queue full")
	}
}

func (d *Dispatcher) drop(n model.Notification, reason string) {
	d.metrics.Notification(metrics.NotifyDropped)
	d.logger.Warn("Notification dropped",
		zap.String("reason", reason),
		zap.Int64("user_id", n.UserID),
		zap.String("type", n.Type))
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n model.Notification) {
	for _, t := range d.transports {
		ctx, cancel := context.WithTimeout(context.Background(), d.opts.SendTimeout)
		err := t.Send(ctx, n)
		cancel()
		if err != nil {
			d.metrics.Notification(metrics.NotifyFailed)
			d.logger.Error("Failed to deliver notification",
				zap.String("transport", t.Name()),
				zap.Int64("user_id", n.UserID),
				zap.String("type", n.Type),
				zap.Error(err))
			continue
		}
		d.metrics.Notification(metrics.NotifySent)
	}
}

// Close stops accepting notifications and waits for queued ones to drain or
// for ctx to expire. It then closes every transport that has a Close method;
// the dispatcher owns its transports from NewDispatcher on.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var drainErr error
	select {
	case <-done:
	case <-ctx.Done():
		drainErr = ctx.Err()
	}

	errs := []error{drainErr}
	for _, t := range d.transports {
		if c, ok := t.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s transport: %w", t.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, int64, string, string, string, *int64) {}
