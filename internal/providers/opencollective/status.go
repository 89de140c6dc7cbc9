package opencollective

import "collectivepay/internal/payment"

var statusClasses = map[string]payment.StatusClass{
	"PAID":                        payment.ClassConfirmed,
	"ACTIVE":                      payment.ClassConfirmed,
	"PROCESSING":                  payment.ClassPending,
	"PENDING":                     payment.ClassPending,
	"REQUIRE_CLIENT_CONFIRMATION": payment.ClassPending,
	"IN_REVIEW":                   payment.ClassPending,
}

// ClassifyStatus maps a ledger order status to a status class. Unknown values
// are failed.
func ClassifyStatus(status string) payment.StatusClass {
	return statusClasses[status]
}
