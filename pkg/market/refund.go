package market

import "fmt"

// RefundAmount computes the native-currency refund for returning credits at
// the configured global price: floor(amount * CreditPrice * RefundPercent / 100).
// Amounts whose refund would wrap past the int64 range are rejected with
// ErrInvalidAmount.
//
// The surrounding system defines no refund transaction, so nothing in the
// engine calls this; it exists as a documented pure calculation for hosts
// that do.
func RefundAmount(config GlobalConfig, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}
	gross, ok := mulNonNegative(amount, config.CreditPrice)
	if !ok {
		return 0, fmt.Errorf("%w: refund value overflows", ErrInvalidAmount)
	}
	scaled, ok := mulNonNegative(gross, config.RefundPercent)
	if !ok {
		return 0, fmt.Errorf("%w: refund value overflows", ErrInvalidAmount)
	}
	return scaled / percentScale, nil
}
