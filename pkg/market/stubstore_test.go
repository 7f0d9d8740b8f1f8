package market

import (
	"context"
	"testing"
)

const (
	ownerAccountValue  = "owner-1"
	sellerAccountValue = "seller-1"
	buyerAccountValue  = "buyer-1"
	stubClockUnixUTC   = int64(42)
)

// stubStore is an in-memory Store. WithTx snapshots state and rolls it back
// on error, matching the all-or-nothing contract of the real store.
type stubStore struct {
	config   GlobalConfig
	reserve  ReserveState
	balances map[string]Balance
	listings map[string]Listing
	journal  []JournalEntry

	withTxError        error
	getConfigError     error
	saveConfigError    error
	getReserveError    error
	saveReserveError   error
	getBalanceError    error
	saveBalanceError   error
	getListingError    error
	saveListingError   error
	appendJournalError error
	listJournalError   error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		config:   DefaultGlobalConfig(),
		balances: map[string]Balance{},
		listings: map[string]Listing{},
	}
}

func (store *stubStore) snapshot() *stubStore {
	balances := make(map[string]Balance, len(store.balances))
	for key, value := range store.balances {
		balances[key] = value
	}
	listings := make(map[string]Listing, len(store.listings))
	for key, value := range store.listings {
		listings[key] = value
	}
	journal := make([]JournalEntry, len(store.journal))
	copy(journal, store.journal)
	return &stubStore{
		config:   store.config,
		reserve:  store.reserve,
		balances: balances,
		listings: listings,
		journal:  journal,
	}
}

func (store *stubStore) restore(from *stubStore) {
	store.config = from.config
	store.reserve = from.reserve
	store.balances = from.balances
	store.listings = from.listings
	store.journal = from.journal
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if store.withTxError != nil {
		return store.withTxError
	}
	before := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.restore(before)
		return err
	}
	return nil
}

func (store *stubStore) GetConfig(context.Context) (GlobalConfig, error) {
	if store.getConfigError != nil {
		return GlobalConfig{}, store.getConfigError
	}
	return store.config, nil
}

func (store *stubStore) SaveConfig(_ context.Context, config GlobalConfig) error {
	if store.saveConfigError != nil {
		return store.saveConfigError
	}
	store.config = config
	return nil
}

func (store *stubStore) GetReserve(context.Context) (ReserveState, error) {
	if store.getReserveError != nil {
		return ReserveState{}, store.getReserveError
	}
	return store.reserve, nil
}

func (store *stubStore) SaveReserve(_ context.Context, reserve ReserveState) error {
	if store.saveReserveError != nil {
		return store.saveReserveError
	}
	store.reserve = reserve
	return nil
}

func (store *stubStore) GetBalance(_ context.Context, account AccountID) (Balance, error) {
	if store.getBalanceError != nil {
		return Balance{}, store.getBalanceError
	}
	return store.balances[account.String()], nil
}

func (store *stubStore) SaveBalance(_ context.Context, account AccountID, balance Balance) error {
	if store.saveBalanceError != nil {
		return store.saveBalanceError
	}
	store.balances[account.String()] = balance
	return nil
}

func (store *stubStore) GetListing(_ context.Context, seller AccountID) (Listing, error) {
	if store.getListingError != nil {
		return Listing{}, store.getListingError
	}
	return store.listings[seller.String()], nil
}

func (store *stubStore) SaveListing(_ context.Context, seller AccountID, listing Listing) error {
	if store.saveListingError != nil {
		return store.saveListingError
	}
	store.listings[seller.String()] = listing
	return nil
}

func (store *stubStore) AppendJournal(_ context.Context, entry JournalEntry) error {
	if store.appendJournalError != nil {
		return store.appendJournalError
	}
	store.journal = append(store.journal, entry)
	return nil
}

func (store *stubStore) ListJournal(_ context.Context, account AccountID, beforeUnixUTC int64, limit int) ([]JournalEntry, error) {
	if store.listJournalError != nil {
		return nil, store.listJournalError
	}
	entries := make([]JournalEntry, 0, limit)
	for index := len(store.journal) - 1; index >= 0 && len(entries) < limit; index-- {
		entry := store.journal[index]
		if entry.ActorID != account.String() && entry.CounterpartyID != account.String() {
			continue
		}
		if beforeUnixUTC != 0 && entry.CreatedUnixUTC >= beforeUnixUTC {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func mustAccountID(test *testing.T, raw string) AccountID {
	test.Helper()
	account, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id %q: %v", raw, err)
	}
	return account
}

func mustNewEngine(test *testing.T, store Store, options ...EngineOption) *Engine {
	test.Helper()
	engine, err := NewEngine(store, mustAccountID(test, ownerAccountValue), func() int64 { return stubClockUnixUTC }, options...)
	if err != nil {
		test.Fatalf("engine init: %v", err)
	}
	return engine
}

func seedBalance(store *stubStore, account string, credits int64, native int64) {
	store.balances[account] = Balance{Credits: credits, Native: native}
}

func assertNonNegativeBalances(test *testing.T, store *stubStore) {
	test.Helper()
	for account, balance := range store.balances {
		if balance.Credits < 0 || balance.Native < 0 {
			test.Fatalf("account %s went negative: %+v", account, balance)
		}
	}
}
