package models

import (
	"time"
)

// SaveVersion is the schema version of the encoded progress record.
// Records carrying any other version are discarded on load.
const SaveVersion = 1

// SaveSlot is the relational row holding one encoded progress record.
type SaveSlot struct {
	Slot      string    `gorm:"primaryKey;size:64" json:"slot"`
	Version   int       `json:"version"`
	Data      []byte    `gorm:"type:blob" json:"-"` // Encoded progress record
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table name regardless of gorm naming strategy.
func (SaveSlot) TableName() string {
	return "save_slots"
}
