package model

import "time"

// Contest lifecycle states.
const (
	ContestScheduled = "SCHEDULED"
	ContestLocked    = "LOCKED"
	ContestLive      = "LIVE"
	ContestComplete  = "COMPLETE"
	ContestSettled   = "SETTLED"
	ContestPaid      = "PAID"
	ContestCancelled = "CANCELLED"
	ContestError     = "ERROR"
)

// ContestTemplate describes the shape of a contest. PayoutSpec is a JSON
// array of decimal fraction strings by rank, e.g. ["0.5","0.3","0.2"].
type ContestTemplate struct {
	ID            uint64    `gorm:"primaryKey"`
	Name          string    `gorm:"size:128;not null"`
	EntryFeeCents int64     `gorm:"not null"`
	MaxPlayers    int       `gorm:"not null"`
	PayoutSpec    string    `gorm:"type:text;not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (ContestTemplate) TableName() string { return "contest_template" }

type ContestInstance struct {
	ID            uint64    `gorm:"primaryKey"`
	OwnerID       uint64    `gorm:"not null"`
	TemplateID    uint64    `gorm:"not null;index"`
	EntryFeeCents int64     `gorm:"not null"`
	Currency      string    `gorm:"size:8;not null"`
	MaxPlayers    int       `gorm:"not null"`
	State         string    `gorm:"size:16;not null;default:'SCHEDULED';index"`
	LockTime      time.Time `gorm:"not null"`
	StartTime     time.Time `gorm:"not null"`
	EndTime       time.Time `gorm:"not null"`
	SettledAt     *time.Time
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (ContestInstance) TableName() string { return "contest_instance" }

// ContestEntry links a user to a contest. FinalScore stays nil until the
// scoring feed has delivered; a nil score blocks LIVE -> COMPLETE.
type ContestEntry struct {
	ID                uint64 `gorm:"primaryKey"`
	ContestInstanceID uint64 `gorm:"not null;uniqueIndex:uq_contest_user"`
	UserID            uint64 `gorm:"not null;uniqueIndex:uq_contest_user"`
	ReservationID     string `gorm:"size:36"`
	FinalScore        *int64
	FinalRank         int       `gorm:"not null;default:0"`
	JoinedAt          time.Time `gorm:"autoCreateTime"`
}

func (ContestEntry) TableName() string { return "contest_entry" }

// ContestAudit is an append-only log of state transitions.
type ContestAudit struct {
	ID        uint64    `gorm:"primaryKey"`
	ContestID uint64    `gorm:"index;not null"`
	FromState string    `gorm:"size:16;not null"`
	ToState   string    `gorm:"size:16;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ContestAudit) TableName() string { return "contest_audit" }
