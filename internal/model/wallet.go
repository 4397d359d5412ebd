package model

import "time"

// WalletAccount is a lock anchor for per-user serialization. It carries no
// balance: balances are always folded from the ledger.
type WalletAccount struct {
	OwnerID   uint64    `gorm:"primaryKey;column:owner_id"`
	Currency  string    `gorm:"size:8;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (WalletAccount) TableName() string { return "wallet_account" }
