package market

import (
	"errors"
	"testing"
)

func TestNewAccountIDNormalizes(test *testing.T) {
	test.Parallel()
	account, err := NewAccountID("  alice  ")
	if err != nil {
		test.Fatalf("account id: %v", err)
	}
	if account.String() != "alice" {
		test.Fatalf("expected trimmed id, got %q", account.String())
	}
	if account.IsZero() {
		test.Fatalf("expected non-zero id")
	}
}

func TestNewAccountIDRejectsEmpty(test *testing.T) {
	test.Parallel()
	for _, raw := range []string{"", "   "} {
		if _, err := NewAccountID(raw); !errors.Is(err, ErrInvalidAccountID) {
			test.Fatalf("expected ErrInvalidAccountID for %q, got %v", raw, err)
		}
	}
}

func TestNewMetadataJSONDefaultsEmpty(test *testing.T) {
	test.Parallel()
	metadata, err := NewMetadataJSON("")
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	if metadata.String() != "{}" {
		test.Fatalf("expected empty object, got %q", metadata.String())
	}
}

func TestNewMetadataJSONRejectsInvalid(test *testing.T) {
	test.Parallel()
	if _, err := NewMetadataJSON("{not json"); !errors.Is(err, ErrInvalidMetadataJSON) {
		test.Fatalf("expected ErrInvalidMetadataJSON, got %v", err)
	}
}

func TestDefaultGlobalConfigValues(test *testing.T) {
	test.Parallel()
	config := DefaultGlobalConfig()
	if config.CreditPrice != 100 || config.FeePercent != 5 || config.RefundPercent != 90 || config.ReserveLimit != 1_000_000 {
		test.Fatalf("unexpected defaults: %+v", config)
	}
}
