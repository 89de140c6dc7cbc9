package opencollective

import (
	"fmt"
	"slices"

	"collectivepay/internal/payment"
)

// Verifier checks that an order record settles a specific local payment.
// Exact amount and currency equality is the only binding between the two;
// the return redirect carries no signature.
type Verifier struct {
	cfg *Config
}

// NewVerifier creates a verifier over the configured destination slugs.
func NewVerifier(cfg *Config) *Verifier {
	return &Verifier{cfg: cfg}
}

// Verify runs the checks in order and returns the record's status when all
// pass. It does not modify rec or p.
func (v *Verifier) Verify(rec *OrderRecord, p *payment.Payment) (string, error) {
	accepted := v.cfg.AcceptedSlugs(p.EventCode)
	switch {
	case len(accepted) > 0:
		if !slices.Contains(accepted, rec.Destination()) {
			return "", fmt.Errorf("%w: got %q, want one of %q", payment.ErrDestinationMismatch, rec.Destination(), accepted)
		}
	case v.cfg.RequireDestination:
		return "", fmt.Errorf("%w: no accepted slug configured", payment.ErrDestinationMismatch)
	}

	amount, ok := rec.Money()
	if !ok {
		return "", payment.ErrAmountMissing
	}
	if !amount.Amount.Equal(p.Amount.Amount) {
		return "", fmt.Errorf("%w: got %s, want %s", payment.ErrAmountMismatch, amount.Amount, p.Amount.Amount)
	}
	if amount.Currency != p.Amount.Currency {
		return "", fmt.Errorf("%w: got %q, want %q", payment.ErrCurrencyMismatch, amount.Currency, p.Amount.Currency)
	}

	if rec.Frequency != "" && rec.Frequency != FrequencyOneTime {
		return "", fmt.Errorf("%w: frequency %s", payment.ErrRecurring, rec.Frequency)
	}

	if rec.Status == "" {
		return "", payment.ErrStatusMissing
	}
	return rec.Status, nil
}
