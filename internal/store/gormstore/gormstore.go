package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/creditmarket/pkg/market"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	singletonRowID int64 = 1

	defaultMetadataJSON   = "{}"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19

	errorOperationStore = "store"
	errorSubjectConfig  = "config"
	errorSubjectReserve = "reserve"
	errorSubjectBalance = "balance"
	errorSubjectListing = "listing"
	errorSubjectJournal = "journal"
	errorCodeGet        = "get"
	errorCodeSave       = "save"
	errorCodeInsert     = "insert"
	errorCodeDuplicate  = "duplicate"
	errorCodeList       = "list"
	errorCodeSeed       = "seed"
)

// ErrDuplicateJournalEntry is returned when a host supplies an entry id that
// already exists.
var ErrDuplicateJournalEntry = errors.New("duplicate journal entry")

// Store implements market.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the marketplace tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&MarketConfig{}, &Reserve{}, &Account{}, &Listing{}, &JournalEntry{})
}

// EnsureSeeded creates the config and reserve singletons when absent, leaving
// existing rows untouched.
func (store *Store) EnsureSeeded(ctx context.Context, config market.GlobalConfig) error {
	configRow := MarketConfig{
		ID:            singletonRowID,
		CreditPrice:   config.CreditPrice,
		FeePercent:    config.FeePercent,
		RefundPercent: config.RefundPercent,
		ReserveLimit:  config.ReserveLimit,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&configRow).Error
	if err != nil {
		return wrapStoreError(errorSubjectConfig, errorCodeSeed, err)
	}
	reserveRow := Reserve{ID: singletonRowID}
	err = store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&reserveRow).Error
	if err != nil {
		return wrapStoreError(errorSubjectReserve, errorCodeSeed, err)
	}
	return nil
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore market.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetConfig(ctx context.Context) (market.GlobalConfig, error) {
	var row MarketConfig
	err := store.db.WithContext(ctx).Take(&row, "id = ?", singletonRowID).Error
	if err != nil {
		return market.GlobalConfig{}, wrapStoreError(errorSubjectConfig, errorCodeGet, err)
	}
	return market.GlobalConfig{
		CreditPrice:   row.CreditPrice,
		FeePercent:    row.FeePercent,
		RefundPercent: row.RefundPercent,
		ReserveLimit:  row.ReserveLimit,
	}, nil
}

func (store *Store) SaveConfig(ctx context.Context, config market.GlobalConfig) error {
	row := MarketConfig{
		ID:            singletonRowID,
		CreditPrice:   config.CreditPrice,
		FeePercent:    config.FeePercent,
		RefundPercent: config.RefundPercent,
		ReserveLimit:  config.ReserveLimit,
		UpdatedAt:     time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectConfig, errorCodeSave, err)
	}
	return nil
}

func (store *Store) GetReserve(ctx context.Context) (market.ReserveState, error) {
	var row Reserve
	err := store.db.WithContext(ctx).Take(&row, "id = ?", singletonRowID).Error
	if err != nil {
		return market.ReserveState{}, wrapStoreError(errorSubjectReserve, errorCodeGet, err)
	}
	return market.ReserveState{CurrentAmount: row.CurrentAmount}, nil
}

func (store *Store) SaveReserve(ctx context.Context, reserve market.ReserveState) error {
	row := Reserve{
		ID:            singletonRowID,
		CurrentAmount: reserve.CurrentAmount,
		UpdatedAt:     time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectReserve, errorCodeSave, err)
	}
	return nil
}

func (store *Store) GetBalance(ctx context.Context, account market.AccountID) (market.Balance, error) {
	var row Account
	err := store.db.WithContext(ctx).Take(&row, "account_id = ?", account.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.Balance{}, nil
	}
	if err != nil {
		return market.Balance{}, wrapStoreError(errorSubjectBalance, errorCodeGet, err)
	}
	return market.Balance{Credits: row.CreditBalance, Native: row.NativeBalance}, nil
}

func (store *Store) SaveBalance(ctx context.Context, account market.AccountID, balance market.Balance) error {
	row := Account{
		AccountID:     account.String(),
		CreditBalance: balance.Credits,
		NativeBalance: balance.Native,
		UpdatedAt:     time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"credit_balance", "native_balance", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeSave, err)
	}
	return nil
}

func (store *Store) GetListing(ctx context.Context, seller market.AccountID) (market.Listing, error) {
	var row Listing
	err := store.db.WithContext(ctx).Take(&row, "seller_id = ?", seller.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return market.Listing{}, nil
	}
	if err != nil {
		return market.Listing{}, wrapStoreError(errorSubjectListing, errorCodeGet, err)
	}
	return market.Listing{Amount: row.Amount, Price: row.Price}, nil
}

func (store *Store) SaveListing(ctx context.Context, seller market.AccountID, listing market.Listing) error {
	row := Listing{
		SellerID:  seller.String(),
		Amount:    listing.Amount,
		Price:     listing.Price,
		UpdatedAt: time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "seller_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "price", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorSubjectListing, errorCodeSave, err)
	}
	return nil
}

func (store *Store) AppendJournal(ctx context.Context, entry market.JournalEntry) error {
	row := JournalEntry{
		EntryID:        entry.EntryID,
		Operation:      entry.Operation,
		ActorID:        entry.ActorID,
		CounterpartyID: entry.CounterpartyID,
		CreditAmount:   entry.CreditAmount,
		NativeAmount:   entry.NativeAmount,
		FeeAmount:      entry.FeeAmount,
		Metadata:       datatypesJSON(entry.MetadataJSON),
		CreatedAt:      time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectJournal, errorCodeDuplicate, ErrDuplicateJournalEntry)
	}
	if err != nil {
		return wrapStoreError(errorSubjectJournal, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListJournal(ctx context.Context, account market.AccountID, beforeUnixUTC int64, limit int) ([]market.JournalEntry, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}

	var rows []JournalEntry
	err := store.db.WithContext(ctx).
		Where("(actor_id = ? OR counterparty_id = ?) AND created_at < ?", account.String(), account.String(), before).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectJournal, errorCodeList, err)
	}

	entries := make([]market.JournalEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, market.JournalEntry{
			EntryID:        row.EntryID,
			Operation:      row.Operation,
			ActorID:        row.ActorID,
			CounterpartyID: row.CounterpartyID,
			CreditAmount:   row.CreditAmount,
			NativeAmount:   row.NativeAmount,
			FeeAmount:      row.FeeAmount,
			MetadataJSON:   string(row.Metadata),
			CreatedUnixUTC: row.CreatedAt.Unix(),
		})
	}
	return entries, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return market.WrapError(errorOperationStore, subject, code, err)
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
