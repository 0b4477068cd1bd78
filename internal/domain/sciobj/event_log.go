package sciobj

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EventCreate  = "create"
	EventUpdate  = "update"
	EventDelete  = "delete"
	EventArchive = "archive"
	EventRepair  = "repair"
)

// EventLog is the per-object audit trail written in the same transaction as the mutation.
type EventLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	DID       string         `gorm:"column:did;type:varchar(800);not null;index" json:"did"`
	Event     string         `gorm:"column:event;type:varchar(32);not null;index" json:"event"`
	Subject   string         `gorm:"column:subject;type:varchar(1024)" json:"subject,omitempty"`
	Metadata  datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
}

func (EventLog) TableName() string { return "event_log" }
