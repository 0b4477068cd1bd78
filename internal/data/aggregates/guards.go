package aggregates

import (
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/membernode/internal/platform/dbctx"
)

// CASGuard provides compare-and-set helpers for aggregate writes on rows
// that carry a serial_version column.
type CASGuard struct {
	db *gorm.DB
}

func NewCASGuard(db *gorm.DB) CASGuard {
	return CASGuard{db: db}
}

func (g CASGuard) baseDB(dbc dbctx.Context) (*gorm.DB, error) {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx), nil
	}
	if g.db != nil {
		return g.db.WithContext(dbc.Ctx), nil
	}
	return nil, ValidationError("missing db transaction context")
}

// UpdateByVersion updates a row only when id and serial_version match.
func (g CASGuard) UpdateByVersion(dbc dbctx.Context, table string, id int64, expectedVersion int64, updates map[string]any) (bool, error) {
	db, err := g.baseDB(dbc)
	if err != nil {
		return false, err
	}
	table = strings.TrimSpace(table)
	if table == "" || id <= 0 {
		return false, ValidationError("table and id are required for a guarded update")
	}
	if len(updates) == 0 {
		return false, ValidationError("guarded update has no columns")
	}
	res := db.Table(table).
		Where("id = ?", id).
		Where("serial_version = ?", expectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RequireCASSuccess converts a failed compare-and-set into a typed conflict error.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return ConflictError(strings.TrimSpace(message))
}
