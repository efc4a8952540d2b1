package enums

// OutboxDLQErrorReason records why an outbox row stopped being retried.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonBadEnvelope  OutboxDLQErrorReason = "bad_envelope"
)

var validOutboxDLQErrorReasons = set[OutboxDLQErrorReason]{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
	OutboxDLQReasonBadEnvelope,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	return validOutboxDLQErrorReasons.has(r)
}
