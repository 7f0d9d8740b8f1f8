package market

import (
	"context"
	"fmt"
)

// AddForSale lists amount credits at the given unit price. A repeated call
// merges into the seller's existing listing: amounts accumulate, while the
// new price replaces the old one for the whole listing.
func (engine *Engine) AddForSale(ctx context.Context, caller AccountID, amount int64, price int64) error {
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if amount <= 0 {
			return fmt.Errorf("%w: sale amount must be greater than zero", ErrInvalidAmount)
		}
		if price <= 0 {
			return fmt.Errorf("%w: sale price must be greater than zero", ErrInvalidPrice)
		}
		balance, err := transactionStore.GetBalance(ctx, caller)
		if err != nil {
			return err
		}
		listing, err := transactionStore.GetListing(ctx, caller)
		if err != nil {
			return err
		}
		newListedTotal, ok := addNonNegative(listing.Amount, amount)
		if !ok {
			return fmt.Errorf("%w: listed total overflows", ErrInvalidAmount)
		}
		if balance.Credits < newListedTotal {
			return ErrInsufficientBalance
		}
		if err := engine.applyReserveDelta(ctx, transactionStore, amount); err != nil {
			return err
		}
		if err := transactionStore.SaveListing(ctx, caller, Listing{Amount: newListedTotal, Price: price}); err != nil {
			return err
		}
		return engine.appendJournal(ctx, transactionStore, JournalEntry{
			Operation:    operationAddForSale,
			ActorID:      caller.String(),
			CreditAmount: amount,
			MetadataJSON: unitPriceMetadata(price),
		})
	})
	engine.logOperation(ctx, OperationLog{
		Operation: operationAddForSale,
		Actor:     caller,
		Credits:   amount,
		Native:    price,
		Error:     operationError,
	})
	return operationError
}

// RemoveFromSale withdraws amount credits from the caller's listing. The
// listing keeps its price even when its amount reaches zero.
func (engine *Engine) RemoveFromSale(ctx context.Context, caller AccountID, amount int64) error {
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if amount < 0 {
			return fmt.Errorf("%w: withdrawal amount must not be negative", ErrInvalidAmount)
		}
		listing, err := transactionStore.GetListing(ctx, caller)
		if err != nil {
			return err
		}
		if listing.Amount < amount {
			return ErrInsufficientBalance
		}
		if err := engine.applyReserveDelta(ctx, transactionStore, -amount); err != nil {
			return err
		}
		if err := transactionStore.SaveListing(ctx, caller, Listing{Amount: listing.Amount - amount, Price: listing.Price}); err != nil {
			return err
		}
		return engine.appendJournal(ctx, transactionStore, JournalEntry{
			Operation:    operationRemoveFromSale,
			ActorID:      caller.String(),
			CreditAmount: amount,
			MetadataJSON: unitPriceMetadata(listing.Price),
		})
	})
	engine.logOperation(ctx, OperationLog{
		Operation: operationRemoveFromSale,
		Actor:     caller,
		Credits:   amount,
		Error:     operationError,
	})
	return operationError
}

// BuyFromSeller purchases amount credits from the seller's listing at its
// listed price, charging the buyer cost plus a fee that is routed to the
// owner. All preconditions are confirmed before any balance moves.
//
// The reserve total is intentionally left unchanged by a purchase: the
// credits change hands but the tracked figure keeps counting them, so it can
// drift above the true sum of open listings over time. Known limitation of
// the inherited semantics.
func (engine *Engine) BuyFromSeller(ctx context.Context, caller AccountID, seller AccountID, amount int64) error {
	var fee int64
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if caller == seller {
			return ErrSameAccountConflict
		}
		if amount <= 0 {
			return fmt.Errorf("%w: purchase amount must be greater than zero", ErrInvalidAmount)
		}
		config, err := transactionStore.GetConfig(ctx)
		if err != nil {
			return err
		}
		listing, err := transactionStore.GetListing(ctx, seller)
		if err != nil {
			return err
		}
		cost, ok := mulNonNegative(amount, listing.Price)
		if !ok {
			return fmt.Errorf("%w: purchase cost overflows", ErrInvalidAmount)
		}
		feeBase, ok := mulNonNegative(cost, config.FeePercent)
		if !ok {
			return fmt.Errorf("%w: purchase fee overflows", ErrInvalidAmount)
		}
		fee = feeBase / percentScale
		totalCost, ok := addNonNegative(cost, fee)
		if !ok {
			return fmt.Errorf("%w: purchase total overflows", ErrInvalidAmount)
		}

		balances := newBalanceSet(transactionStore)
		sellerBalance, err := balances.load(ctx, seller)
		if err != nil {
			return err
		}
		buyerBalance, err := balances.load(ctx, caller)
		if err != nil {
			return err
		}
		if listing.Amount < amount {
			return ErrInsufficientBalance
		}
		if sellerBalance.Credits < amount {
			return ErrInsufficientBalance
		}
		if buyerBalance.Native < totalCost {
			return ErrInsufficientBalance
		}
		ownerBalance, err := balances.load(ctx, engine.owner)
		if err != nil {
			return err
		}

		sellerBalance.Credits -= amount
		sellerBalance.Native += cost
		buyerBalance.Native -= totalCost
		buyerBalance.Credits += amount
		ownerBalance.Native += fee

		if err := transactionStore.SaveListing(ctx, seller, Listing{Amount: listing.Amount - amount, Price: listing.Price}); err != nil {
			return err
		}
		if err := balances.save(ctx); err != nil {
			return err
		}
		return engine.appendJournal(ctx, transactionStore, JournalEntry{
			Operation:      operationBuyFromSeller,
			ActorID:        caller.String(),
			CounterpartyID: seller.String(),
			CreditAmount:   amount,
			NativeAmount:   cost,
			FeeAmount:      fee,
			MetadataJSON:   unitPriceMetadata(listing.Price),
		})
	})
	engine.logOperation(ctx, OperationLog{
		Operation:    operationBuyFromSeller,
		Actor:        caller,
		Counterparty: seller,
		Credits:      amount,
		Fee:          fee,
		Error:        operationError,
	})
	return operationError
}

// applyReserveDelta mutates the tracked reserve. Negative deltas clamp at
// zero and never fail; positive deltas are rejected when they would push the
// reserve past the configured limit.
func (engine *Engine) applyReserveDelta(ctx context.Context, transactionStore Store, delta int64) error {
	reserve, err := transactionStore.GetReserve(ctx)
	if err != nil {
		return err
	}
	if delta < 0 {
		reserve.CurrentAmount += delta
		if reserve.CurrentAmount < 0 {
			reserve.CurrentAmount = 0
		}
	} else {
		config, err := transactionStore.GetConfig(ctx)
		if err != nil {
			return err
		}
		raised, ok := addNonNegative(reserve.CurrentAmount, delta)
		if !ok || raised > config.ReserveLimit {
			return ErrReserveLimitExceeded
		}
		reserve.CurrentAmount = raised
	}
	return transactionStore.SaveReserve(ctx, reserve)
}

func (engine *Engine) appendJournal(ctx context.Context, transactionStore Store, entry JournalEntry) error {
	entry.CreatedUnixUTC = engine.nowFn()
	if entry.MetadataJSON == "" {
		entry.MetadataJSON = "{}"
	}
	return transactionStore.AppendJournal(ctx, entry)
}

// addNonNegative adds two non-negative values, reporting false when the sum
// wraps past the int64 range.
func addNonNegative(left int64, right int64) (int64, bool) {
	sum := left + right
	if sum < 0 {
		return 0, false
	}
	return sum, true
}

// mulNonNegative multiplies two non-negative values, reporting false when the
// product wraps past the int64 range.
func mulNonNegative(left int64, right int64) (int64, bool) {
	if left == 0 || right == 0 {
		return 0, true
	}
	product := left * right
	if product < 0 || product/right != left {
		return 0, false
	}
	return product, true
}

func unitPriceMetadata(price int64) string {
	metadata, err := NewMetadataJSON(fmt.Sprintf(`{"unit_price":%d}`, price))
	if err != nil {
		return "{}"
	}
	return metadata.String()
}

// balanceSet loads each touched account balance once so that aliased parties
// (the owner selling or buying) mutate a single record instead of two stale
// copies.
type balanceSet struct {
	store    Store
	order    []AccountID
	balances map[AccountID]*Balance
}

func newBalanceSet(store Store) *balanceSet {
	return &balanceSet{store: store, balances: map[AccountID]*Balance{}}
}

func (set *balanceSet) load(ctx context.Context, account AccountID) (*Balance, error) {
	if balance, ok := set.balances[account]; ok {
		return balance, nil
	}
	balance, err := set.store.GetBalance(ctx, account)
	if err != nil {
		return nil, err
	}
	set.order = append(set.order, account)
	set.balances[account] = &balance
	return set.balances[account], nil
}

func (set *balanceSet) save(ctx context.Context) error {
	for _, account := range set.order {
		if err := set.store.SaveBalance(ctx, account, *set.balances[account]); err != nil {
			return err
		}
	}
	return nil
}
