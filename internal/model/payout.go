package model

import "time"

// PayoutRecord is produced once per settlement and never rewritten.
// LedgerEntryID points at the CREDIT that paid it out; a nil value means the
// credit still has to be appended (crash between settle and pay).
type PayoutRecord struct {
	ID                string `gorm:"primaryKey;size:36"`
	ContestInstanceID uint64 `gorm:"index;not null"`
	ContestEntryID    uint64 `gorm:"not null;uniqueIndex"`
	UserID            uint64 `gorm:"not null"`
	Rank              int    `gorm:"not null"`
	AmountCents       int64  `gorm:"not null"`
	LedgerEntryID     *uint64
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

func (PayoutRecord) TableName() string { return "payout_record" }
