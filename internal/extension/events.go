// internal/extension/events.go
package extension

import (
	"contract-runtime/internal/contract"
	"contract-runtime/internal/events"
	"contract-runtime/internal/store"
)

// BuildChangeEvent constructs the change event for a committed write:
// declared name and topic when the operation carries x-runtime-event,
// derived defaults otherwise. The payload is the persisted record snapshot.
func BuildChangeEvent(op *contract.Operation, rec store.Record, softDeleted bool, topicPrefix string) events.ChangeEvent {
	name := op.DefaultEventName(softDeleted)
	topic := ""
	if op.Event != nil {
		if op.Event.Name != "" {
			name = op.Event.Name
		}
		topic = op.Event.Topic
	}

	resource := ""
	collection := ""
	if op.Resource != nil {
		resource = op.Resource.Name
		collection = op.Resource.Collection
	}
	if topic == "" {
		topic = topicPrefix + collection
	}

	kind := events.ChangeCreated
	switch op.Kind {
	case contract.KindUpdate:
		kind = events.ChangeUpdated
	case contract.KindDelete:
		if softDeleted {
			kind = events.ChangeSoftDeleted
		} else {
			kind = events.ChangeDeleted
		}
	}

	return events.NewChangeEvent(name, resource, rec.Key(), kind, rec, topic)
}
