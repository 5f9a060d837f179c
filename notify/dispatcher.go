package notify

import (
	"context"
	"sync"
	"time"
)

// DeliveryTimeout bounds a single delivery attempt.
var DeliveryTimeout = 8 * time.Second

// FailureHandler observes a failed delivery. It receives the full message so
// an undeliverable temporary password can be preserved in the operator log.
type FailureHandler func(msg Message, err error)

// Dispatcher wraps a Notifier with the fire-and-forget contract: Dispatch
// returns immediately, the delivery runs on its own goroutine with a bounded
// timeout detached from the request context, and failures go to the failure
// handler instead of the caller.
type Dispatcher struct {
	notifier  Notifier
	onFailure FailureHandler
	wg        sync.WaitGroup
}

// NewDispatcher wraps notifier. onFailure may be nil, in which case failures
// are silently dropped; callers that send credentials should always provide
// one.
func NewDispatcher(notifier Notifier, onFailure FailureHandler) *Dispatcher {
	if notifier == nil {
		notifier = Discard
	}
	return &Dispatcher{
		notifier:  notifier,
		onFailure: onFailure,
	}
}

// Dispatch queues msg for delivery and returns immediately. The triggering
// state transition has already committed, so nothing here can fail it.
func (d *Dispatcher) Dispatch(msg Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), DeliveryTimeout)
		defer cancel()

		if err := d.notifier.Send(ctx, msg); err != nil && d.onFailure != nil {
			d.onFailure(msg, err)
		}
	}()
}

// Wait blocks until every dispatched delivery has finished. Used by tests
// and by server shutdown so in-flight credentials are not dropped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
