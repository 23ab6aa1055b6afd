package observability

// Metric name prefixes
const (
	MetricPrefix = "marpd_core"
)

// Metric names
const (
	// Ledger metrics
	OperationsTotal   = MetricPrefix + ".ledger.operations_total"
	OperationDuration = MetricPrefix + ".ledger.operation_duration"

	// Game metrics
	RoundsTotal = MetricPrefix + ".games.rounds_total"

	// Payment metrics
	PaymentDecisionsTotal = MetricPrefix + ".payments.decisions_total"

	// Integrity metrics
	IntegrityFaultsTotal = MetricPrefix + ".integrity.faults_total"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"
)

// Label keys
const (
	LabelKind      = "kind"
	LabelOutcome   = "outcome"
	LabelGame      = "game"
	LabelStatus    = "status"
	LabelDirection = "direction"
	LabelReason    = "reason"
	LabelEventType = "event_type"
)
