package market

import (
	"context"
	"fmt"
)

// Engine contains the marketplace transaction logic over a Store. It is the
// only component with cross-entity business rules: every public operation
// validates all preconditions and then applies all mutations, or none, inside
// one store transaction.
type Engine struct {
	store  Store
	owner  AccountID
	nowFn  func() int64
	logger OperationLogger
}

// NewEngine wires an Engine. The owner identity is fixed at construction and
// is the only account allowed to tune GlobalConfig; it also receives purchase
// fees.
func NewEngine(store Store, owner AccountID, now func() int64, options ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidEngineConfig)
	}
	if owner.IsZero() {
		return nil, fmt.Errorf("%w: owner account is empty", ErrInvalidEngineConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidEngineConfig)
	}
	engine := &Engine{store: store, owner: owner, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(engine)
		}
	}
	return engine, nil
}

// Owner returns the configured owner identity.
func (engine *Engine) Owner() AccountID {
	return engine.owner
}

// SetCreditPrice updates the global credit price. Owner only.
func (engine *Engine) SetCreditPrice(ctx context.Context, caller AccountID, newPrice int64) error {
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := engine.requireOwner(caller); err != nil {
			return err
		}
		if newPrice <= 0 {
			return fmt.Errorf("%w: credit price must be greater than zero", ErrInvalidParameter)
		}
		config, err := transactionStore.GetConfig(ctx)
		if err != nil {
			return err
		}
		config.CreditPrice = newPrice
		return transactionStore.SaveConfig(ctx, config)
	})
	engine.logOperation(ctx, OperationLog{
		Operation: operationSetCreditPrice,
		Actor:     caller,
		Native:    newPrice,
		Error:     operationError,
	})
	return operationError
}

// SetFeePercent updates the purchase fee percentage. Owner only.
func (engine *Engine) SetFeePercent(ctx context.Context, caller AccountID, newFee int64) error {
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := engine.requireOwner(caller); err != nil {
			return err
		}
		if newFee < 0 || newFee > maxPercent {
			return fmt.Errorf("%w: fee percent must be within 0..100", ErrInvalidParameter)
		}
		config, err := transactionStore.GetConfig(ctx)
		if err != nil {
			return err
		}
		config.FeePercent = newFee
		return transactionStore.SaveConfig(ctx, config)
	})
	engine.logOperation(ctx, OperationLog{
		Operation: operationSetFeePercent,
		Actor:     caller,
		Native:    newFee,
		Error:     operationError,
	})
	return operationError
}

// SetRefundPercent updates the refund percentage used by RefundAmount. Owner only.
func (engine *Engine) SetRefundPercent(ctx context.Context, caller AccountID, newRate int64) error {
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := engine.requireOwner(caller); err != nil {
			return err
		}
		if newRate < 0 || newRate > maxPercent {
			return fmt.Errorf("%w: refund percent must be within 0..100", ErrInvalidParameter)
		}
		config, err := transactionStore.GetConfig(ctx)
		if err != nil {
			return err
		}
		config.RefundPercent = newRate
		return transactionStore.SaveConfig(ctx, config)
	})
	engine.logOperation(ctx, OperationLog{
		Operation: operationSetRefundPercent,
		Actor:     caller,
		Native:    newRate,
		Error:     operationError,
	})
	return operationError
}

// SetReserveLimit updates the reserve cap. Owner only. The new limit must not
// undercut the credits already listed.
func (engine *Engine) SetReserveLimit(ctx context.Context, caller AccountID, newLimit int64) error {
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if err := engine.requireOwner(caller); err != nil {
			return err
		}
		if newLimit < 0 {
			return fmt.Errorf("%w: reserve limit must not be negative", ErrInvalidParameter)
		}
		reserve, err := transactionStore.GetReserve(ctx)
		if err != nil {
			return err
		}
		if newLimit < reserve.CurrentAmount {
			return fmt.Errorf("%w: reserve limit below current reserve", ErrInvalidParameter)
		}
		config, err := transactionStore.GetConfig(ctx)
		if err != nil {
			return err
		}
		config.ReserveLimit = newLimit
		return transactionStore.SaveConfig(ctx, config)
	})
	engine.logOperation(ctx, OperationLog{
		Operation: operationSetReserveLimit,
		Actor:     caller,
		Native:    newLimit,
		Error:     operationError,
	})
	return operationError
}

// Config returns the current global parameters.
func (engine *Engine) Config(ctx context.Context) (GlobalConfig, error) {
	return engine.store.GetConfig(ctx)
}

// Reserve returns the tracked total of credits currently listed.
func (engine *Engine) Reserve(ctx context.Context) (ReserveState, error) {
	return engine.store.GetReserve(ctx)
}

// BalanceOf returns the account's credit and native balances, zero for
// accounts never seen before.
func (engine *Engine) BalanceOf(ctx context.Context, account AccountID) (Balance, error) {
	return engine.store.GetBalance(ctx, account)
}

// ListingOf returns the seller's open listing, zero when the seller has none.
func (engine *Engine) ListingOf(ctx context.Context, seller AccountID) (Listing, error) {
	return engine.store.GetListing(ctx, seller)
}

// History lists journal rows touching the account, newest first.
func (engine *Engine) History(ctx context.Context, account AccountID, beforeUnixUTC int64, limit int) ([]JournalEntry, error) {
	return engine.store.ListJournal(ctx, account, beforeUnixUTC, limit)
}

func (engine *Engine) requireOwner(caller AccountID) error {
	if caller != engine.owner {
		return ErrUnauthorized
	}
	return nil
}

func (engine *Engine) logOperation(ctx context.Context, entry OperationLog) {
	if engine.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	engine.logger.LogOperation(ctx, entry)
}
