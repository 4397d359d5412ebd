package model

import "time"

const (
	DirectionCredit = "CREDIT"
	DirectionDebit  = "DEBIT"
)

// Ledger reference types.
const (
	RefDeposit  = "deposit"
	RefEntryFee = "entry_fee"
	RefPayout   = "payout"
	RefRefund   = "refund"
)

// LedgerEntry is append-only: rows are never updated or deleted.
// The autoincrement id doubles as append order.
type LedgerEntry struct {
	ID            uint64    `gorm:"primaryKey"`
	OwnerID       uint64    `gorm:"index;not null"`
	Direction     string    `gorm:"size:8;not null"`
	AmountCents   int64     `gorm:"not null"`
	Currency      string    `gorm:"size:8;not null"`
	ReferenceType string    `gorm:"size:32;not null"`
	ReferenceID   string    `gorm:"size:64;not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (LedgerEntry) TableName() string { return "ledger_entry" }
