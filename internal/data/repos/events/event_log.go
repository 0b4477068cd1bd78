package events

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/membernode/internal/domain"
	"github.com/yungbote/membernode/internal/platform/dbctx"
	"github.com/yungbote/membernode/internal/platform/logger"
)

type EventLogRepo interface {
	Record(dbc dbctx.Context, did, event, subject string, metadata map[string]any) (*types.EventLog, error)
	ListByDID(dbc dbctx.Context, did string) ([]*types.EventLog, error)
}

type eventLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventLogRepo(db *gorm.DB, baseLog *logger.Logger) EventLogRepo {
	return &eventLogRepo{
		db:  db,
		log: baseLog.With("repo", "EventLogRepo"),
	}
}

func (r *eventLogRepo) Record(dbc dbctx.Context, did, event, subject string, metadata map[string]any) (*types.EventLog, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	raw := []byte("{}")
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	row := &types.EventLog{
		DID:      did,
		Event:    event,
		Subject:  subject,
		Metadata: datatypes.JSON(raw),
	}
	if err := transaction.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *eventLogRepo) ListByDID(dbc dbctx.Context, did string) ([]*types.EventLog, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EventLog
	err := transaction.WithContext(dbc.Ctx).
		Where("did = ?", did).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
