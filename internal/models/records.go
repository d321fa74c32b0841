package models

import (
	"time"

	"gorm.io/datatypes"
)

// PickRecord is the durable row for one committed pick.
type PickRecord struct {
	ID            uint           `gorm:"primaryKey"`
	Ordinal       int            `gorm:"uniqueIndex;not null"`
	TeamID        string         `gorm:"index;not null"`
	Player        string         `gorm:"not null"`
	Position      string
	Price         int            `gorm:"not null"`
	Slot          string
	SlotFlagged   bool
	EligibleSlots datatypes.JSON `gorm:"type:json"`
	CreatedAt     time.Time
}

// NominationRecord is the durable row for one nomination change.
type NominationRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Player    string `gorm:"not null"`
	Bid       int
	Bidder    string
	Clock     int
	CreatedAt time.Time
}

// CheckpointRecord holds a full serialized DraftState.
type CheckpointRecord struct {
	ID        uint           `gorm:"primaryKey"`
	State     datatypes.JSON `gorm:"type:json;not null"`
	CreatedAt time.Time
}
