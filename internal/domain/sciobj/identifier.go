package sciobj

import "time"

// IdentifierKind classifies a row in the identifier namespace.
type IdentifierKind string

const (
	KindPID IdentifierKind = "pid"
	KindSID IdentifierKind = "sid"
	// KindDeleted marks a tombstoned identifier. It is not "in use" and may be reserved again.
	KindDeleted IdentifierKind = "deleted"
)

// Identifier is one entry in the namespace shared by PIDs and SIDs.
type Identifier struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	DID       string         `gorm:"column:did;type:varchar(800);not null;uniqueIndex" json:"did"`
	Kind      IdentifierKind `gorm:"column:kind;type:varchar(16);not null;index" json:"kind"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (Identifier) TableName() string { return "id_namespace" }

// InUse reports whether the identifier blocks a new reservation.
func (i *Identifier) InUse() bool {
	return i != nil && (i.Kind == KindPID || i.Kind == KindSID)
}

// DIDOf returns the DID of a nullable association, or "".
func DIDOf(i *Identifier) string {
	if i == nil {
		return ""
	}
	return i.DID
}
