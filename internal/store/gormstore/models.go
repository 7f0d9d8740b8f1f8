package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MarketConfig is the singleton row holding the owner-tuned parameters.
type MarketConfig struct {
	ID            int64 `gorm:"primaryKey"`
	CreditPrice   int64 `gorm:"not null"`
	FeePercent    int64 `gorm:"not null"`
	RefundPercent int64 `gorm:"not null"`
	ReserveLimit  int64 `gorm:"not null"`
	UpdatedAt     time.Time
}

func (MarketConfig) TableName() string { return "market_config" }

// Reserve is the singleton row tracking credits currently listed for sale.
type Reserve struct {
	ID            int64 `gorm:"primaryKey"`
	CurrentAmount int64 `gorm:"not null"`
	UpdatedAt     time.Time
}

func (Reserve) TableName() string { return "reserve_state" }

// Account mirrors the accounts table: one credit and one native balance per
// caller identity.
type Account struct {
	AccountID     string `gorm:"primaryKey"`
	CreditBalance int64  `gorm:"not null"`
	NativeBalance int64  `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Account) TableName() string { return "accounts" }

// Listing mirrors the listings table, one row per seller.
type Listing struct {
	SellerID  string `gorm:"primaryKey"`
	Amount    int64  `gorm:"not null"`
	Price     int64  `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Listing) TableName() string { return "listings" }

// JournalEntry mirrors the append-only market_journal table.
type JournalEntry struct {
	EntryID        string         `gorm:"type:uuid;primaryKey"`
	Operation      string         `gorm:"not null"`
	ActorID        string         `gorm:"not null;index:idx_journal_actor_created,priority:1"`
	CounterpartyID string         `gorm:"index:idx_journal_counterparty"`
	CreditAmount   int64          `gorm:"not null"`
	NativeAmount   int64          `gorm:"not null"`
	FeeAmount      int64          `gorm:"not null"`
	Metadata       datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_journal_actor_created,priority:2"`
}

func (JournalEntry) TableName() string { return "market_journal" }

func (entry *JournalEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}
