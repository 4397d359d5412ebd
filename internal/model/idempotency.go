package model

import "time"

// IdempotencyKey memoizes the outcome of a mutating request. A row is only
// ever created or read, never updated; expired rows may be purged.
type IdempotencyKey struct {
	Key          string    `gorm:"primaryKey;size:64"`
	Endpoint     string    `gorm:"size:128;not null"`
	RequestHash  string    `gorm:"size:64;not null"`
	ResponseCode int       `gorm:"not null"`
	ResponseBody string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	ExpiresAt    time.Time `gorm:"not null"`
}

func (IdempotencyKey) TableName() string { return "idempotency_key" }
