package sciobj

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/membernode/internal/domain"
	"github.com/yungbote/membernode/internal/platform/dbctx"
	"github.com/yungbote/membernode/internal/platform/logger"
)

// ScienceObjectRepo stores object rows. Getters preload the PID and both
// revision links and return (nil, nil) when nothing matches.
type ScienceObjectRepo interface {
	Create(dbc dbctx.Context, obj *types.ScienceObject) error
	GetByPID(dbc dbctx.Context, pid string) (*types.ScienceObject, error)
	GetByIdentifierID(dbc dbctx.Context, identifierID int64) (*types.ScienceObject, error)
	GetByIdentifierIDs(dbc dbctx.Context, identifierIDs []int64) ([]*types.ScienceObject, error)
	UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error
	SetLinks(dbc dbctx.Context, id int64, obsoletesID, obsoletedByID *int64) error
	ReleaseLink(dbc dbctx.Context, column string, identifierID int64, exceptID int64) (int64, error)
	Delete(dbc dbctx.Context, id int64) error
	ListPage(dbc dbctx.Context, afterID int64, limit int) ([]*types.ScienceObject, error)
	ListAllPIDs(dbc dbctx.Context) ([]string, error)
	ListSerials(dbc dbctx.Context) (map[string]int64, error)
	ListLinkedTo(dbc dbctx.Context, identifierIDs []int64) ([]*types.ScienceObject, error)
	Count(dbc dbctx.Context) (int64, error)
}

type scienceObjectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScienceObjectRepo(db *gorm.DB, baseLog *logger.Logger) ScienceObjectRepo {
	return &scienceObjectRepo{
		db:  db,
		log: baseLog.With("repo", "ScienceObjectRepo"),
	}
}

func (r *scienceObjectRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *scienceObjectRepo) withLinks(q *gorm.DB) *gorm.DB {
	return q.Preload("Identifier").Preload("Obsoletes").Preload("ObsoletedBy")
}

// Create inserts obj. Associations are omitted; only the foreign keys are written.
func (r *scienceObjectRepo) Create(dbc dbctx.Context, obj *types.ScienceObject) error {
	if obj == nil {
		return fmt.Errorf("nil science object")
	}
	if obj.IdentifierID == 0 {
		return fmt.Errorf("science object has no identifier")
	}
	return r.tx(dbc).Omit(clause.Associations).Create(obj).Error
}

func (r *scienceObjectRepo) GetByPID(dbc dbctx.Context, pid string) (*types.ScienceObject, error) {
	if pid == "" {
		return nil, nil
	}
	var out types.ScienceObject
	err := r.withLinks(r.tx(dbc)).
		Where("identifier_id = (?)", r.tx(dbc).Model(&types.Identifier{}).Select("id").Where("did = ?", pid)).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

func (r *scienceObjectRepo) GetByIdentifierID(dbc dbctx.Context, identifierID int64) (*types.ScienceObject, error) {
	if identifierID == 0 {
		return nil, nil
	}
	var out types.ScienceObject
	if err := r.withLinks(r.tx(dbc)).Where("identifier_id = ?", identifierID).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

func (r *scienceObjectRepo) GetByIdentifierIDs(dbc dbctx.Context, identifierIDs []int64) ([]*types.ScienceObject, error) {
	var out []*types.ScienceObject
	if len(identifierIDs) == 0 {
		return out, nil
	}
	if err := r.withLinks(r.tx(dbc)).Where("identifier_id IN ?", identifierIDs).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *scienceObjectRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	return r.tx(dbc).Model(&types.ScienceObject{}).Where("id = ?", id).Updates(updates).Error
}

// SetLinks overwrites both revision links of one row. nil clears a link.
func (r *scienceObjectRepo) SetLinks(dbc dbctx.Context, id int64, obsoletesID, obsoletedByID *int64) error {
	if id == 0 {
		return fmt.Errorf("science object id is required")
	}
	return r.tx(dbc).Model(&types.ScienceObject{}).Where("id = ?", id).Updates(map[string]interface{}{
		"obsoletes_id":    nullable(obsoletesID),
		"obsoleted_by_id": nullable(obsoletedByID),
	}).Error
}

// ReleaseLink nulls column ("obsoletes_id" or "obsoleted_by_id") on every row
// other than exceptID that points at identifierID, so the unique link can be
// given to exceptID. It returns the number of rows touched.
func (r *scienceObjectRepo) ReleaseLink(dbc dbctx.Context, column string, identifierID int64, exceptID int64) (int64, error) {
	if column != "obsoletes_id" && column != "obsoleted_by_id" {
		return 0, fmt.Errorf("not a revision link column: %q", column)
	}
	if identifierID == 0 {
		return 0, nil
	}
	res := r.tx(dbc).Model(&types.ScienceObject{}).
		Where(column+" = ? AND id <> ?", identifierID, exceptID).
		Update(column, gorm.Expr("NULL"))
	return res.RowsAffected, res.Error
}

func (r *scienceObjectRepo) Delete(dbc dbctx.Context, id int64) error {
	if id == 0 {
		return nil
	}
	return r.tx(dbc).Where("id = ?", id).Delete(&types.ScienceObject{}).Error
}

// ListPage returns up to limit rows with id > afterID in id order.
func (r *scienceObjectRepo) ListPage(dbc dbctx.Context, afterID int64, limit int) ([]*types.ScienceObject, error) {
	if limit <= 0 {
		limit = 500
	}
	var out []*types.ScienceObject
	err := r.withLinks(r.tx(dbc)).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *scienceObjectRepo) ListAllPIDs(dbc dbctx.Context) ([]string, error) {
	var out []string
	err := r.tx(dbc).Table("science_object").
		Joins("JOIN id_namespace ON id_namespace.id = science_object.identifier_id").
		Order("id_namespace.did ASC").
		Pluck("id_namespace.did", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListSerials maps every stored PID to its serial version.
func (r *scienceObjectRepo) ListSerials(dbc dbctx.Context) (map[string]int64, error) {
	var rows []struct {
		DID           string
		SerialVersion int64
	}
	err := r.tx(dbc).Table("science_object").
		Select("id_namespace.did AS did, science_object.serial_version AS serial_version").
		Joins("JOIN id_namespace ON id_namespace.id = science_object.identifier_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.DID] = row.SerialVersion
	}
	return out, nil
}

// ListLinkedTo returns the rows whose obsoletes or obsoletedBy points at one of
// identifierIDs.
func (r *scienceObjectRepo) ListLinkedTo(dbc dbctx.Context, identifierIDs []int64) ([]*types.ScienceObject, error) {
	var out []*types.ScienceObject
	if len(identifierIDs) == 0 {
		return out, nil
	}
	err := r.withLinks(r.tx(dbc)).
		Where("obsoletes_id IN ? OR obsoleted_by_id IN ?", identifierIDs, identifierIDs).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *scienceObjectRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	if err := r.tx(dbc).Model(&types.ScienceObject{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func nullable(v *int64) interface{} {
	if v == nil {
		return gorm.Expr("NULL")
	}
	return *v
}
