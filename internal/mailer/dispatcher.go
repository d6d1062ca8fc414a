package mailer

import (
	"context"

	"github.com/readshelf/readshelf/internal/logger"
)

// Dispatcher decouples the request path from SMTP round trips. Enqueue
// never blocks a request: if the queue is saturated the message is dropped
// and logged, matching the best-effort delivery contract.
type Dispatcher struct {
	sender Sender
	queue  chan Message
}

func NewDispatcher(sender Sender, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 128
	}
	return &Dispatcher{
		sender: sender,
		queue:  make(chan Message, queueSize),
	}
}

// Enqueue hands a message to the background worker.
func (d *Dispatcher) Enqueue(msg Message) {
	select {
	case d.queue <- msg:
	default:
		logger.Log.Warn("mail queue full, dropping message",
			"template", msg.Template,
			"recipients", len(msg.Recipients))
	}
}

// Start launches the delivery worker. It drains the queue until ctx is
// cancelled; send failures are logged and never retried.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case msg := <-d.queue:
				if err := d.sender.Send(msg); err != nil {
					logger.Log.Error("failed to send email",
						"template", msg.Template,
						"error", err)
				}
			case <-ctx.Done():
				logger.Log.Info("mail dispatcher shutting down")
				return
			}
		}
	}()
}
