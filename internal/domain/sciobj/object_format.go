package sciobj

import "time"

const (
	FormatTypeData     = "DATA"
	FormatTypeMetadata = "METADATA"
	FormatTypeResource = "RESOURCE"
)

// ObjectFormat is a formatId this node accepts.
type ObjectFormat struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FormatID   string    `gorm:"column:format_id;type:varchar(256);not null;uniqueIndex" json:"format_id"`
	FormatName string    `gorm:"column:format_name;type:varchar(512)" json:"format_name"`
	FormatType string    `gorm:"column:format_type;type:varchar(16);not null" json:"format_type"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (ObjectFormat) TableName() string { return "object_format" }
