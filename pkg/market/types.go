package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// AccountID identifies an already-authenticated caller. It has no internal
// structure beyond equality.
type AccountID struct {
	value string
}

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// IsZero reports whether the id carries no value.
func (id AccountID) IsZero() bool {
	return id.value == ""
}

// MetadataJSON stores arbitrary request metadata attached to journal rows.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// GlobalConfig holds the owner-tuned marketplace parameters.
type GlobalConfig struct {
	CreditPrice   int64
	FeePercent    int64
	RefundPercent int64
	ReserveLimit  int64
}

// DefaultGlobalConfig returns the parameters the marketplace boots with.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		CreditPrice:   defaultCreditPrice,
		FeePercent:    defaultFeePercent,
		RefundPercent: defaultRefundPercent,
		ReserveLimit:  defaultReserveLimit,
	}
}

// ReserveState tracks the running total of credits currently listed for sale.
//
// The total is bounded above by GlobalConfig.ReserveLimit when listings are
// added, but removals clamp at zero instead of failing, and purchases do not
// decrement it at all. Both asymmetries are inherited semantics and are kept
// as-is rather than corrected here.
type ReserveState struct {
	CurrentAmount int64
}

// Balance is the per-account view of credit and native holdings. Unseen
// accounts read as the zero value; both fields stay non-negative.
type Balance struct {
	Credits int64
	Native  int64
}

// Listing is a seller's open offer: a credit quantity at a fixed unit price.
// Amount zero is a retained empty listing, not a deleted one, and Price keeps
// its last value.
type Listing struct {
	Amount int64
	Price  int64
}

// JournalEntry is one append-only audit row written alongside a successful
// mutating operation.
type JournalEntry struct {
	EntryID        string
	Operation      string
	ActorID        string
	CounterpartyID string
	CreditAmount   int64
	NativeAmount   int64
	FeeAmount      int64
	MetadataJSON   string
	CreatedUnixUTC int64
}

// Store is the persistence contract used by Engine. Reads of absent accounts
// or listings return the zero record. All Engine mutations run inside a
// single WithTx closure, so a failed operation leaves every record untouched.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetConfig(ctx context.Context) (GlobalConfig, error)
	SaveConfig(ctx context.Context, config GlobalConfig) error
	GetReserve(ctx context.Context) (ReserveState, error)
	SaveReserve(ctx context.Context, reserve ReserveState) error
	GetBalance(ctx context.Context, account AccountID) (Balance, error)
	SaveBalance(ctx context.Context, account AccountID, balance Balance) error
	GetListing(ctx context.Context, seller AccountID) (Listing, error)
	SaveListing(ctx context.Context, seller AccountID, listing Listing) error
	AppendJournal(ctx context.Context, entry JournalEntry) error
	ListJournal(ctx context.Context, account AccountID, beforeUnixUTC int64, limit int) ([]JournalEntry, error)
}
