package events

import (
	"context"
	"sync"

	"github.com/master-pd/MARPD-MAX/models"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChanged       EventType = "balance_changed"
	EventTypeAccountCreated       EventType = "account_created"
	EventTypeAccountStatusChanged EventType = "account_status_changed"
	EventTypePaymentDecided       EventType = "payment_decided"
	EventTypeRoundResolved        EventType = "round_resolved"
	EventTypeIntegrityFault       EventType = "integrity_fault"
)

// AllEventTypes lists every event type the core emits
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeBalanceChanged,
		EventTypeAccountCreated,
		EventTypeAccountStatusChanged,
		EventTypePaymentDecided,
		EventTypeRoundResolved,
		EventTypeIntegrityFault,
	}
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangedEvent is emitted for every committed ledger entry
type BalanceChangedEvent struct {
	AccountID   string           `json:"account_id"`
	Currency    string           `json:"currency"`
	EntryID     int64            `json:"entry_id"`
	Kind        models.EntryKind `json:"kind"`
	OldBalance  int64            `json:"old_balance"`
	NewBalance  int64            `json:"new_balance"`
	Amount      int64            `json:"amount"`
	ReferenceID string           `json:"reference_id,omitempty"`
}

func (e BalanceChangedEvent) Type() EventType {
	return EventTypeBalanceChanged
}

// AccountCreatedEvent is emitted when a user interacts for the first time
type AccountCreatedEvent struct {
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id"`
}

func (e AccountCreatedEvent) Type() EventType {
	return EventTypeAccountCreated
}

// AccountStatusChangedEvent is emitted when an account is suspended, banned or reactivated
type AccountStatusChangedEvent struct {
	AccountID string               `json:"account_id"`
	OldStatus models.AccountStatus `json:"old_status"`
	NewStatus models.AccountStatus `json:"new_status"`
}

func (e AccountStatusChangedEvent) Type() EventType {
	return EventTypeAccountStatusChanged
}

// PaymentDecidedEvent is emitted when a payment request leaves pending
type PaymentDecidedEvent struct {
	RequestID  string                  `json:"request_id"`
	AccountID  string                  `json:"account_id"`
	Direction  models.PaymentDirection `json:"direction"`
	Status     models.PaymentStatus    `json:"status"`
	Currency   string                  `json:"currency"`
	Amount     int64                   `json:"amount"`
	NetAmount  int64                   `json:"net_amount"`
	OperatorID string                  `json:"operator_id,omitempty"`
	Reason     string                  `json:"reason,omitempty"`
}

func (e PaymentDecidedEvent) Type() EventType {
	return EventTypePaymentDecided
}

// RoundResolvedEvent is emitted when a game round is resolved or refunded
type RoundResolvedEvent struct {
	RoundID   string             `json:"round_id"`
	AccountID string             `json:"account_id"`
	Game      string             `json:"game"`
	Currency  string             `json:"currency"`
	Stake     int64              `json:"stake"`
	Payout    int64              `json:"payout"`
	Outcome   string             `json:"outcome"`
	Status    models.RoundStatus `json:"status"`
}

func (e RoundResolvedEvent) Type() EventType {
	return EventTypeRoundResolved
}

// IntegrityFaultEvent is emitted when the ledger and the cache disagree or a
// round is stuck. The account is suspended before the event is published.
type IntegrityFaultEvent struct {
	AccountID string `json:"account_id"`
	Currency  string `json:"currency,omitempty"`
	Reason    string `json:"reason"`
	Expected  int64  `json:"expected"`
	Actual    int64  `json:"actual"`
	Reference string `json:"reference,omitempty"`
}

func (e IntegrityFaultEvent) Type() EventType {
	return EventTypeIntegrityFault
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// SubscribeAll adds a handler for every event type
func (b *Bus) SubscribeAll(handler Handler) {
	for _, eventType := range AllEventTypes() {
		b.Subscribe(eventType, handler)
	}
}

// Emit publishes an event to all registered handlers. Handlers run
// asynchronously; delivery is fire-and-forget.
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds events raised inside a unit of work until the
// transaction commits. Rolled back work never emits.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

// NewTransactionalBus wraps the process-wide bus
func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

// Publish stashes an event until Flush
func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Pending returns the events stashed so far
func (b *TransactionalBus) Pending() []Event {
	return b.pending
}

// Flush emits all pending events; called after a successful commit
func (b *TransactionalBus) Flush(ctx context.Context) {
	log.WithField("pendingEventCount", len(b.pending)).Debug("Flushing transactional bus")

	// Handlers outlive the transaction, so they must not inherit its cancellation
	eventCtx := context.WithoutCancel(ctx)
	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard drops pending events; called after rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
