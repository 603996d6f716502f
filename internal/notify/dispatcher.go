package notify

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/hostflow/internal/waitlist"
	"go.uber.org/zap"
)

const (
	defaultQueueSize       = 64
	defaultDeliveryTimeout = 10 * time.Second
)

// DispatcherConfig describes the dependencies of a Dispatcher.
type DispatcherConfig struct {
	Sender      Sender
	Logger      *zap.Logger
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher turns notification requests into text messages on its own goroutine.
// Delivery is attempted once; failures are logged and dropped.
type Dispatcher struct {
	sender      Sender
	logger      *zap.Logger
	queue       chan waitlist.NotificationRequest
	sendTimeout time.Duration
}

// NewDispatcher constructs a dispatcher with a bounded queue.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultDeliveryTimeout
	}
	return &Dispatcher{
		sender:      cfg.Sender,
		logger:      logger,
		queue:       make(chan waitlist.NotificationRequest, queueSize),
		sendTimeout: sendTimeout,
	}
}

// Enqueue implements waitlist.NotificationSink. It never blocks.
func (d *Dispatcher) Enqueue(request waitlist.NotificationRequest) bool {
	if d == nil {
		return false
	}
	select {
	case d.queue <- request:
		return true
	default:
		return false
	}
}

// Run delivers queued requests until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case request := <-d.queue:
			d.deliver(ctx, request)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, request waitlist.NotificationRequest) {
	fields := []zap.Field{
		zap.String("kind", string(request.Kind)),
		zap.String("restaurant_slug", request.Slug),
		zap.String("party_id", request.PartyID),
	}
	if d.sender == nil {
		d.logger.Warn("notification skipped: no sender", fields...)
		return
	}

	var message string
	switch request.Kind {
	case waitlist.NotificationJoinConfirmation:
		message = JoinConfirmationMessage(request.PartyName, request.Slug, request.Position)
	case waitlist.NotificationTableReady:
		message = TableReadyMessage(request.Slug)
	default:
		d.logger.Warn("notification skipped: unknown kind", fields...)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	result, err := d.sender.Send(sendCtx, request.Phone, message)
	if err != nil {
		d.logger.Warn("notification delivery failed", append(fields, zap.Error(err))...)
		return
	}
	d.logger.Info("notification delivered", append(fields, zap.String("message_id", result.MessageID))...)
}
