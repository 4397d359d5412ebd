package model

import "time"

const (
	IntentCreated   = "CREATED"
	IntentConfirmed = "CONFIRMED"
)

// PaymentIntent is created ahead of a deposit; the processor confirms it via
// webhook. The intent id is the correlation handle shared with the processor.
type PaymentIntent struct {
	ID          string    `gorm:"primaryKey;size:36"`
	OwnerID     uint64    `gorm:"index;not null"`
	AmountCents int64     `gorm:"not null"`
	Currency    string    `gorm:"size:8;not null"`
	Status      string    `gorm:"size:16;not null;default:'CREATED'"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (PaymentIntent) TableName() string { return "payment_intent" }

// PaymentEvent deduplicates processor webhook deliveries by provider event id.
type PaymentEvent struct {
	EventID   string    `gorm:"primaryKey;size:64"`
	IntentID  string    `gorm:"size:36;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (PaymentEvent) TableName() string { return "payment_event" }
