package market

import (
	"errors"
	"math"
	"testing"
)

func TestRefundAmountUsesGlobalPrice(test *testing.T) {
	test.Parallel()
	config := DefaultGlobalConfig()
	// 3 credits at global price 100 refunded at 90%: 3*100*90/100 = 270.
	got, err := RefundAmount(config, 3)
	if err != nil {
		test.Fatalf("refund: %v", err)
	}
	if got != 270 {
		test.Fatalf("expected refund 270, got %d", got)
	}
}

func TestRefundAmountIsFloorDivided(test *testing.T) {
	test.Parallel()
	config := GlobalConfig{CreditPrice: 1, FeePercent: 5, RefundPercent: 90, ReserveLimit: 100}
	// 3*1*90/100 = 2.7, floored to 2.
	got, err := RefundAmount(config, 3)
	if err != nil {
		test.Fatalf("refund: %v", err)
	}
	if got != 2 {
		test.Fatalf("expected floored refund 2, got %d", got)
	}
}

func TestRefundAmountZeroForNonPositiveAmounts(test *testing.T) {
	test.Parallel()
	config := DefaultGlobalConfig()
	for _, amount := range []int64{0, -5} {
		got, err := RefundAmount(config, amount)
		if err != nil {
			test.Fatalf("refund for %d: %v", amount, err)
		}
		if got != 0 {
			test.Fatalf("expected 0 for %d, got %d", amount, got)
		}
	}
}

func TestRefundAmountRejectsWraparound(test *testing.T) {
	test.Parallel()
	config := DefaultGlobalConfig()
	if _, err := RefundAmount(config, math.MaxInt64/2); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	// The product of amount and price fits, but the percent scaling wraps.
	config = GlobalConfig{CreditPrice: math.MaxInt64 / 4, FeePercent: 5, RefundPercent: 90, ReserveLimit: 100}
	if _, err := RefundAmount(config, 3); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
