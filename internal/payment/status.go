package payment

// StatusClass partitions ledger status codes. The zero value is ClassFailed so
// an unclassified status can never confirm a payment.
type StatusClass int

const (
	ClassFailed StatusClass = iota
	ClassPending
	ClassConfirmed
)

func (c StatusClass) String() string {
	switch c {
	case ClassConfirmed:
		return "confirmed"
	case ClassPending:
		return "pending"
	default:
		return "failed"
	}
}

// Target returns the payment state a status class drives to.
func (c StatusClass) Target() State {
	switch c {
	case ClassConfirmed:
		return StateConfirmed
	case ClassPending:
		return StatePending
	default:
		return StateFailed
	}
}
