package infrastructure

import (
	"fmt"

	"github.com/master-pd/MARPD-MAX/events"
)

// StreamName is the JetStream stream holding every wallet event
const StreamName = "wallet_events"

var subjectsByType = map[events.EventType]string{
	events.EventTypeBalanceChanged:       "wallet.balance.changed",
	events.EventTypeAccountCreated:       "wallet.account.created",
	events.EventTypeAccountStatusChanged: "wallet.account.status_changed",
	events.EventTypePaymentDecided:       "wallet.payment.decided",
	events.EventTypeRoundResolved:        "wallet.game.round_resolved",
	events.EventTypeIntegrityFault:       "wallet.integrity.fault",
}

// EventSubjectMapper maps wallet events to NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts an event to its NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	if subject, ok := subjectsByType[event.Type()]; ok {
		return subject
	}
	return fmt.Sprintf("wallet.unknown.%s", event.Type())
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	for eventType, s := range subjectsByType {
		if s == subject {
			return eventType
		}
	}
	return events.EventType(subject)
}

// GetAllSubjects returns every subject this service publishes to, in event type order
func (m *EventSubjectMapper) GetAllSubjects() []string {
	types := events.AllEventTypes()
	subjects := make([]string, 0, len(types))
	for _, t := range types {
		subjects = append(subjects, subjectsByType[t])
	}
	return subjects
}
