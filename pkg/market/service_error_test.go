package market

import (
	"context"
	"errors"
	"testing"
)

var errStoreFailure = errors.New("store failure")

func TestAddForSaleReturnsStoreErrors(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(store *stubStore)
	}{
		{
			name:      "balance lookup error",
			configure: func(store *stubStore) { store.getBalanceError = errStoreFailure },
		},
		{
			name:      "listing lookup error",
			configure: func(store *stubStore) { store.getListingError = errStoreFailure },
		},
		{
			name:      "reserve lookup error",
			configure: func(store *stubStore) { store.getReserveError = errStoreFailure },
		},
		{
			name:      "config lookup error",
			configure: func(store *stubStore) { store.getConfigError = errStoreFailure },
		},
		{
			name:      "reserve save error",
			configure: func(store *stubStore) { store.saveReserveError = errStoreFailure },
		},
		{
			name:      "listing save error",
			configure: func(store *stubStore) { store.saveListingError = errStoreFailure },
		},
		{
			name:      "journal append error",
			configure: func(store *stubStore) { store.appendJournalError = errStoreFailure },
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			seedBalance(store, sellerAccountValue, 100, 0)
			testCase.configure(store)
			engine := mustNewEngine(test, store)
			seller := mustAccountID(test, sellerAccountValue)

			err := engine.AddForSale(context.Background(), seller, 10, 5)
			if !errors.Is(err, errStoreFailure) {
				test.Fatalf("expected store failure, got %v", err)
			}
		})
	}
}

func TestBuyFromSellerReturnsStoreErrors(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(store *stubStore)
	}{
		{
			name:      "config lookup error",
			configure: func(store *stubStore) { store.getConfigError = errStoreFailure },
		},
		{
			name:      "listing lookup error",
			configure: func(store *stubStore) { store.getListingError = errStoreFailure },
		},
		{
			name:      "balance lookup error",
			configure: func(store *stubStore) { store.getBalanceError = errStoreFailure },
		},
		{
			name:      "balance save error",
			configure: func(store *stubStore) { store.saveBalanceError = errStoreFailure },
		},
		{
			name:      "listing save error",
			configure: func(store *stubStore) { store.saveListingError = errStoreFailure },
		},
		{
			name:      "journal append error",
			configure: func(store *stubStore) { store.appendJournalError = errStoreFailure },
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			store.listings[sellerAccountValue] = Listing{Amount: 50, Price: 10}
			seedBalance(store, sellerAccountValue, 100, 0)
			seedBalance(store, buyerAccountValue, 0, 1000)
			testCase.configure(store)
			engine := mustNewEngine(test, store)
			seller := mustAccountID(test, sellerAccountValue)
			buyer := mustAccountID(test, buyerAccountValue)

			err := engine.BuyFromSeller(context.Background(), buyer, seller, 10)
			if !errors.Is(err, errStoreFailure) {
				test.Fatalf("expected store failure, got %v", err)
			}
		})
	}
}

func TestConfigSettersReturnStoreErrors(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.saveConfigError = errStoreFailure
	engine := mustNewEngine(test, store)
	owner := mustAccountID(test, ownerAccountValue)

	if err := engine.SetCreditPrice(context.Background(), owner, 10); !errors.Is(err, errStoreFailure) {
		test.Fatalf("expected store failure, got %v", err)
	}
}
