package domain

import "github.com/yungbote/membernode/internal/domain/sciobj"

type IdentifierKind = sciobj.IdentifierKind

const (
	KindPID     = sciobj.KindPID
	KindSID     = sciobj.KindSID
	KindDeleted = sciobj.KindDeleted
)

const (
	EventCreate  = sciobj.EventCreate
	EventUpdate  = sciobj.EventUpdate
	EventDelete  = sciobj.EventDelete
	EventArchive = sciobj.EventArchive
	EventRepair  = sciobj.EventRepair
)

const (
	FormatTypeData     = sciobj.FormatTypeData
	FormatTypeMetadata = sciobj.FormatTypeMetadata
	FormatTypeResource = sciobj.FormatTypeResource
)

type Identifier = sciobj.Identifier
type ScienceObject = sciobj.ScienceObject
type Chain = sciobj.Chain
type ChainMember = sciobj.ChainMember
type EventLog = sciobj.EventLog
type ObjectFormat = sciobj.ObjectFormat

func DIDOf(i *Identifier) string { return sciobj.DIDOf(i) }
