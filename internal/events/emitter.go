// internal/events/emitter.go
package events

import (
	"context"
	"time"

	"contract-runtime/internal/common/errors"
	"contract-runtime/internal/common/logger"
	"contract-runtime/internal/common/observability"
)

// Alerter is notified when an event exhausts its delivery attempts.
type Alerter interface {
	Alert(ctx context.Context, event ChangeEvent, cause error)
}

// Emitter drives at-least-once delivery: bounded retries with exponential
// backoff, then a degraded signal. Emit is called only after the write
// committed; a delivery failure never fails the request and never touches
// the store again.
type Emitter struct {
	publisher   Publisher
	maxAttempts int
	backoffBase time.Duration
	logger      logger.Logger
	obs         *observability.Observability
	alerter     Alerter
}

func NewEmitter(publisher Publisher, maxAttempts int, backoffBase time.Duration, log logger.Logger, obs *observability.Observability) *Emitter {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Emitter{
		publisher:   publisher,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		logger:      log,
		obs:         obs,
	}
}

// WithAlerter attaches a degraded-event alerter.
func (e *Emitter) WithAlerter(a Alerter) *Emitter {
	e.alerter = a
	return e
}

// Emit delivers the event, retrying transient failures. The response to the
// client may already be committed, so the publication survives client
// disconnects: retries run on a context detached from request cancellation.
// The returned error is always an EVENT_PUBLISH_DEGRADED marker for
// observability; callers must not fail the request on it.
func (e *Emitter) Emit(ctx context.Context, event ChangeEvent) error {
	ctx = context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if lastErr = e.publisher.Publish(ctx, event.Topic, event); lastErr == nil {
			if e.obs != nil {
				e.obs.RecordEventPublished(ctx, event.Name)
			}
			return nil
		}

		e.logger.Warn("event publication failed", map[string]interface{}{
			"event":   event.Name,
			"eventId": event.ID,
			"topic":   event.Topic,
			"attempt": attempt,
			"error":   lastErr,
		})

		if attempt < e.maxAttempts {
			time.Sleep(e.backoffBase * time.Duration(1<<(attempt-1)))
		}
	}

	if e.obs != nil {
		e.obs.RecordEventDegraded(ctx, event.Name)
	}
	e.logger.Error("event delivery degraded after exhausting attempts", map[string]interface{}{
		"event":   event.Name,
		"eventId": event.ID,
		"topic":   event.Topic,
		"error":   lastErr,
	})

	if e.alerter != nil {
		e.alerter.Alert(ctx, event, lastErr)
	}
	return errors.NewEventPublishDegradedError(event.Name, lastErr)
}
