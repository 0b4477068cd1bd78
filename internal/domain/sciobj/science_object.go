package sciobj

import "time"

// ScienceObject is one stored version. Obsoletes and ObsoletedBy point into the
// identifier namespace and are unique, so a version has at most one neighbour
// on each side.
type ScienceObject struct {
	ID           int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	IdentifierID int64       `gorm:"column:identifier_id;not null;uniqueIndex" json:"identifier_id"`
	Identifier   *Identifier `gorm:"foreignKey:IdentifierID" json:"identifier,omitempty"`

	SerialVersion     int64  `gorm:"column:serial_version;not null;default:1" json:"serial_version"`
	FormatID          string `gorm:"column:format_id;type:varchar(256);not null;index" json:"format_id"`
	FileName          string `gorm:"column:file_name;type:varchar(1024)" json:"file_name,omitempty"`
	Size              int64  `gorm:"column:size;not null" json:"size"`
	Checksum          string `gorm:"column:checksum;type:varchar(256);not null;index" json:"checksum"`
	ChecksumAlgorithm string `gorm:"column:checksum_algorithm;type:varchar(32);not null" json:"checksum_algorithm"`

	Submitter               string `gorm:"column:submitter;type:varchar(1024);not null" json:"submitter"`
	RightsHolder            string `gorm:"column:rights_holder;type:varchar(1024);not null" json:"rights_holder"`
	OriginMemberNode        string `gorm:"column:origin_member_node;type:varchar(256)" json:"origin_member_node,omitempty"`
	AuthoritativeMemberNode string `gorm:"column:authoritative_member_node;type:varchar(256)" json:"authoritative_member_node,omitempty"`

	ObsoletesID   *int64      `gorm:"column:obsoletes_id;uniqueIndex" json:"obsoletes_id,omitempty"`
	Obsoletes     *Identifier `gorm:"foreignKey:ObsoletesID" json:"obsoletes,omitempty"`
	ObsoletedByID *int64      `gorm:"column:obsoleted_by_id;uniqueIndex" json:"obsoleted_by_id,omitempty"`
	ObsoletedBy   *Identifier `gorm:"foreignKey:ObsoletedByID" json:"obsoleted_by,omitempty"`

	Archived   bool   `gorm:"column:archived;not null;default:false;index" json:"archived"`
	StorageKey string `gorm:"column:storage_key;type:varchar(1024);not null;uniqueIndex" json:"storage_key"`
	SysMetaXML string `gorm:"column:sysmeta_xml;type:text" json:"-"`

	UploadedAt time.Time `gorm:"column:uploaded_at;not null;index" json:"uploaded_at"`
	ModifiedAt time.Time `gorm:"column:modified_at;not null;index" json:"modified_at"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (ScienceObject) TableName() string { return "science_object" }

// PID requires Identifier to be preloaded.
func (o *ScienceObject) PID() string { return DIDOf(o.Identifier) }

func (o *ScienceObject) ObsoletesPID() string { return DIDOf(o.Obsoletes) }

func (o *ScienceObject) ObsoletedByPID() string { return DIDOf(o.ObsoletedBy) }

// IsHead reports whether no newer version obsoletes this one.
func (o *ScienceObject) IsHead() bool { return o.ObsoletedByID == nil }

// IsStandalone reports whether the object has no revision links at all.
func (o *ScienceObject) IsStandalone() bool { return o.ObsoletesID == nil && o.ObsoletedByID == nil }
