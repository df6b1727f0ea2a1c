package views

// DeadLetter wraps a transaction event that could not be persisted. Raw carries the body
// when it could not be decoded.
type DeadLetter struct {
	Event         *TransactionEvent `json:"event,omitempty"`
	Raw           string            `json:"raw,omitempty"`
	FailureReason string            `json:"failureReason"`
	Error         string            `json:"error"`
	FailedAt      string            `json:"failedAt"`
}
