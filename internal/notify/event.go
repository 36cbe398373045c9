package notify

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a business event worth telling people about.
type EventType string

const (
	EventNCRCreated          EventType = "NCR_CREATED"
	EventOverDeliveryFlagged EventType = "OVER_DELIVERY_FLAGGED"
	EventTransferApproved    EventType = "TRANSFER_APPROVED"
	EventTransferRejected    EventType = "TRANSFER_REJECTED"
	EventPeriodClosed        EventType = "PERIOD_CLOSED"
)

// Event is one notification. It is built only after the engine transaction
// that produced it has committed.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	Type       EventType         `json:"type"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewEvent stamps a fresh id and time on an event.
func NewEvent(typ EventType, subject, body string) Event {
	return Event{
		ID:         uuid.New(),
		Type:       typ,
		Subject:    subject,
		Body:       body,
		Attributes: map[string]string{},
		OccurredAt: time.Now().UTC(),
	}
}

// With returns a copy of the event carrying an extra attribute.
func (e Event) With(key, value string) Event {
	attrs := make(map[string]string, len(e.Attributes)+1)
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	attrs[key] = value
	e.Attributes = attrs
	return e
}

// Queue accepts events for asynchronous delivery. Enqueue never blocks the
// caller.
type Queue interface {
	Enqueue(ev Event)
}

// Discard is a Queue that drops every event.
type Discard struct{}

func (Discard) Enqueue(Event) {}
