package sciobj

import "time"

// Chain groups the versions of one revision chain and records its head and
// optional SID. Every stored PID is a member of exactly one chain.
type Chain struct {
	ID        int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	SIDID     *int64      `gorm:"column:sid_id;uniqueIndex" json:"sid_id,omitempty"`
	SID       *Identifier `gorm:"foreignKey:SIDID" json:"sid,omitempty"`
	HeadID    int64       `gorm:"column:head_id;not null;uniqueIndex" json:"head_id"`
	Head      *Identifier `gorm:"foreignKey:HeadID" json:"head,omitempty"`
	CreatedAt time.Time   `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time   `gorm:"not null" json:"updated_at"`
}

func (Chain) TableName() string { return "chain" }

func (c *Chain) SIDDID() string { return DIDOf(c.SID) }

func (c *Chain) HeadDID() string { return DIDOf(c.Head) }

type ChainMember struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ChainID      int64     `gorm:"column:chain_id;not null;index" json:"chain_id"`
	IdentifierID int64     `gorm:"column:identifier_id;not null;uniqueIndex" json:"identifier_id"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

func (ChainMember) TableName() string { return "chain_member" }
