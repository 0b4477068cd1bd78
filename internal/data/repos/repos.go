package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/membernode/internal/data/repos/chain"
	"github.com/yungbote/membernode/internal/data/repos/events"
	"github.com/yungbote/membernode/internal/data/repos/formats"
	"github.com/yungbote/membernode/internal/data/repos/identifier"
	"github.com/yungbote/membernode/internal/data/repos/sciobj"
	"github.com/yungbote/membernode/internal/platform/logger"
)

type IdentifierRepo = identifier.IdentifierRepo
type ScienceObjectRepo = sciobj.ScienceObjectRepo
type ChainRepo = chain.ChainRepo
type EventLogRepo = events.EventLogRepo
type ObjectFormatRepo = formats.ObjectFormatRepo

func NewIdentifierRepo(db *gorm.DB, baseLog *logger.Logger) IdentifierRepo {
	return identifier.NewIdentifierRepo(db, baseLog)
}
func NewScienceObjectRepo(db *gorm.DB, baseLog *logger.Logger) ScienceObjectRepo {
	return sciobj.NewScienceObjectRepo(db, baseLog)
}
func NewChainRepo(db *gorm.DB, baseLog *logger.Logger) ChainRepo {
	return chain.NewChainRepo(db, baseLog)
}
func NewEventLogRepo(db *gorm.DB, baseLog *logger.Logger) EventLogRepo {
	return events.NewEventLogRepo(db, baseLog)
}
func NewObjectFormatRepo(db *gorm.DB, baseLog *logger.Logger) ObjectFormatRepo {
	return formats.NewObjectFormatRepo(db, baseLog)
}

// Set is every table repo, built on one handle.
type Set struct {
	Identifiers IdentifierRepo
	Objects     ScienceObjectRepo
	Chains      ChainRepo
	Events      EventLogRepo
	Formats     ObjectFormatRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Identifiers: NewIdentifierRepo(db, baseLog),
		Objects:     NewScienceObjectRepo(db, baseLog),
		Chains:      NewChainRepo(db, baseLog),
		Events:      NewEventLogRepo(db, baseLog),
		Formats:     NewObjectFormatRepo(db, baseLog),
	}
}
