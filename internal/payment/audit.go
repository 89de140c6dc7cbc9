package payment

import (
	"encoding/json"
	"maps"
	"time"
)

// Audit is the evidence recorded with every reconciliation decision. It is
// written in the same statement as the state change it justifies and is the
// record support staff use to resolve disputes.
type Audit struct {
	OrderID        string            `json:"order_id,omitempty"`
	TransactionID  string            `json:"transaction_id,omitempty"`
	Status         string            `json:"status"`
	Class          string            `json:"class"`
	Reason         string            `json:"reason,omitempty"`
	Order          json.RawMessage   `json:"order,omitempty"`
	Redirect       map[string]string `json:"redirect"`
	CollectiveSlug string            `json:"collective_slug,omitempty"`
	UseStaging     bool              `json:"use_staging"`
	RecordedAt     time.Time         `json:"recorded_at"`
}

// AuditInput carries the values an Audit is built from.
type AuditInput struct {
	OrderID        string
	TransactionID  string
	Status         string
	Class          StatusClass
	Reason         error
	Order          any
	Redirect       map[string]string
	CollectiveSlug string
	UseStaging     bool
}

// NewAudit builds the audit payload once per callback. The order record is
// serialised immediately so later mutation of the source cannot alter it.
func NewAudit(in AuditInput) Audit {
	a := Audit{
		OrderID:        in.OrderID,
		TransactionID:  in.TransactionID,
		Status:         in.Status,
		Class:          in.Class.String(),
		Redirect:       maps.Clone(in.Redirect),
		CollectiveSlug: in.CollectiveSlug,
		UseStaging:     in.UseStaging,
		RecordedAt:     time.Now().UTC(),
	}
	if a.Redirect == nil {
		a.Redirect = map[string]string{}
	}
	if in.Reason != nil {
		a.Reason = ReasonCode(in.Reason)
	}
	if in.Order != nil {
		if raw, err := json.Marshal(in.Order); err == nil {
			a.Order = raw
		}
	}
	return a
}
