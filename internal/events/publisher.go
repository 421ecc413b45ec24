// internal/events/publisher.go
package events

import (
	"context"
	"sync"

	"contract-runtime/internal/common/logger"
)

// Publisher delivers one event to one topic. Implementations must be safe
// for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, event ChangeEvent) error
}

// LogPublisher writes events to the structured log. Dev-mode backend.
type LogPublisher struct {
	logger logger.Logger
}

func NewLogPublisher(log logger.Logger) *LogPublisher {
	return &LogPublisher{logger: log}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event ChangeEvent) error {
	p.logger.Info("change event published", map[string]interface{}{
		"topic":    topic,
		"event":    event.Name,
		"resource": event.Resource,
		"key":      event.Key,
		"kind":     string(event.Kind),
	})
	return nil
}

// Recorder captures published events for tests. Fail can be set to reject
// the first n publications.
type Recorder struct {
	mu       sync.Mutex
	events   []ChangeEvent
	topics   []string
	failures int
	err      error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailTimes makes the next n publications return err.
func (r *Recorder) FailTimes(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = n
	r.err = err
}

func (r *Recorder) Publish(_ context.Context, topic string, event ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return r.err
	}
	r.events = append(r.events, event)
	r.topics = append(r.topics, topic)
	return nil
}

// Events returns a copy of the captured events.
func (r *Recorder) Events() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChangeEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Topics returns the topics events were published to, in order.
func (r *Recorder) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.topics))
	copy(out, r.topics)
	return out
}
