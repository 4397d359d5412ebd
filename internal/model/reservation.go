package model

import "time"

// Reservation statuses. PENDING is the only non-terminal status.
const (
	ReservationPending  = "PENDING"
	ReservationSettled  = "SETTLED"
	ReservationReleased = "RELEASED"
)

// Reservation holds funds against a contest entry. It is the only mutable
// row in the money path; once settled, truth lives in the ledger.
type Reservation struct {
	ID             string    `gorm:"primaryKey;size:36"`
	OwnerID        uint64    `gorm:"not null;index;uniqueIndex:uq_reservation_entry"`
	ContestEntryID uint64    `gorm:"not null;uniqueIndex:uq_reservation_entry"`
	AmountCents    int64     `gorm:"not null"`
	Currency       string    `gorm:"size:8;not null"`
	Status         string    `gorm:"size:16;not null;default:'PENDING'"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (Reservation) TableName() string { return "reservation" }
