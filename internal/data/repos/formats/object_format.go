package formats

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/membernode/internal/domain"
	"github.com/yungbote/membernode/internal/platform/dbctx"
	"github.com/yungbote/membernode/internal/platform/logger"
)

type ObjectFormatRepo interface {
	ListAll(dbc dbctx.Context) ([]*types.ObjectFormat, error)
	Upsert(dbc dbctx.Context, formats []*types.ObjectFormat) error
}

type objectFormatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewObjectFormatRepo(db *gorm.DB, baseLog *logger.Logger) ObjectFormatRepo {
	return &objectFormatRepo{
		db:  db,
		log: baseLog.With("repo", "ObjectFormatRepo"),
	}
}

func (r *objectFormatRepo) ListAll(dbc dbctx.Context) ([]*types.ObjectFormat, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ObjectFormat
	if err := transaction.WithContext(dbc.Ctx).Order("format_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Upsert inserts formats, replacing name and type of existing format ids.
func (r *objectFormatRepo) Upsert(dbc dbctx.Context, formats []*types.ObjectFormat) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(formats) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "format_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"format_name", "format_type", "updated_at"}),
	}).Create(&formats).Error
}
