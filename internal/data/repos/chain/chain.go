package chain

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/membernode/internal/domain"
	"github.com/yungbote/membernode/internal/platform/dbctx"
	"github.com/yungbote/membernode/internal/platform/logger"
)

// ChainRepo stores chain rows and their membership. Getters preload the SID
// and head identifiers and return (nil, nil) when nothing matches.
type ChainRepo interface {
	Create(dbc dbctx.Context, headID int64, sidID *int64) (*types.Chain, error)
	GetByID(dbc dbctx.Context, id int64) (*types.Chain, error)
	GetByMember(dbc dbctx.Context, identifierID int64) (*types.Chain, error)
	GetBySID(dbc dbctx.Context, sidID int64) (*types.Chain, error)
	SetHead(dbc dbctx.Context, chainID, headID int64) error
	SetSID(dbc dbctx.Context, chainID int64, sidID *int64) error
	AddMember(dbc dbctx.Context, chainID, identifierID int64) error
	RemoveMember(dbc dbctx.Context, identifierID int64) error
	MemberIDs(dbc dbctx.Context, chainID int64) ([]int64, error)
	Delete(dbc dbctx.Context, chainID int64) error
	ListAll(dbc dbctx.Context) ([]*types.Chain, error)
	DeleteEmpty(dbc dbctx.Context) ([]*types.Chain, error)
}

type chainRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChainRepo(db *gorm.DB, baseLog *logger.Logger) ChainRepo {
	return &chainRepo{
		db:  db,
		log: baseLog.With("repo", "ChainRepo"),
	}
}

func (r *chainRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

// Create makes a chain headed by headID and records headID as its first member.
func (r *chainRepo) Create(dbc dbctx.Context, headID int64, sidID *int64) (*types.Chain, error) {
	if headID == 0 {
		return nil, fmt.Errorf("chain head is required")
	}
	c := &types.Chain{HeadID: headID, SIDID: sidID}
	if err := r.tx(dbc).Omit(clause.Associations).Create(c).Error; err != nil {
		return nil, err
	}
	if err := r.AddMember(dbc, c.ID, headID); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *chainRepo) first(dbc dbctx.Context, query string, args ...interface{}) (*types.Chain, error) {
	var out types.Chain
	err := r.tx(dbc).Preload("SID").Preload("Head").
		Where(query, args...).
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

func (r *chainRepo) GetByID(dbc dbctx.Context, id int64) (*types.Chain, error) {
	if id == 0 {
		return nil, nil
	}
	return r.first(dbc, "id = ?", id)
}

func (r *chainRepo) GetByMember(dbc dbctx.Context, identifierID int64) (*types.Chain, error) {
	if identifierID == 0 {
		return nil, nil
	}
	sub := r.tx(dbc).Model(&types.ChainMember{}).Select("chain_id").Where("identifier_id = ?", identifierID)
	return r.first(dbc, "id = (?)", sub)
}

func (r *chainRepo) GetBySID(dbc dbctx.Context, sidID int64) (*types.Chain, error) {
	if sidID == 0 {
		return nil, nil
	}
	return r.first(dbc, "sid_id = ?", sidID)
}

func (r *chainRepo) SetHead(dbc dbctx.Context, chainID, headID int64) error {
	if chainID == 0 || headID == 0 {
		return fmt.Errorf("chain and head are required")
	}
	return r.tx(dbc).Model(&types.Chain{}).Where("id = ?", chainID).Update("head_id", headID).Error
}

func (r *chainRepo) SetSID(dbc dbctx.Context, chainID int64, sidID *int64) error {
	if chainID == 0 {
		return fmt.Errorf("chain is required")
	}
	var v interface{} = gorm.Expr("NULL")
	if sidID != nil {
		v = *sidID
	}
	return r.tx(dbc).Model(&types.Chain{}).Where("id = ?", chainID).Update("sid_id", v).Error
}

func (r *chainRepo) AddMember(dbc dbctx.Context, chainID, identifierID int64) error {
	if chainID == 0 || identifierID == 0 {
		return fmt.Errorf("chain and member are required")
	}
	return r.tx(dbc).Create(&types.ChainMember{ChainID: chainID, IdentifierID: identifierID}).Error
}

func (r *chainRepo) RemoveMember(dbc dbctx.Context, identifierID int64) error {
	if identifierID == 0 {
		return nil
	}
	return r.tx(dbc).Where("identifier_id = ?", identifierID).Delete(&types.ChainMember{}).Error
}

func (r *chainRepo) MemberIDs(dbc dbctx.Context, chainID int64) ([]int64, error) {
	var out []int64
	err := r.tx(dbc).Model(&types.ChainMember{}).
		Where("chain_id = ?", chainID).
		Order("identifier_id ASC").
		Pluck("identifier_id", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the chain row and any membership rows left in it.
func (r *chainRepo) Delete(dbc dbctx.Context, chainID int64) error {
	if chainID == 0 {
		return nil
	}
	if err := r.tx(dbc).Where("chain_id = ?", chainID).Delete(&types.ChainMember{}).Error; err != nil {
		return err
	}
	return r.tx(dbc).Where("id = ?", chainID).Delete(&types.Chain{}).Error
}

func (r *chainRepo) ListAll(dbc dbctx.Context) ([]*types.Chain, error) {
	var out []*types.Chain
	if err := r.tx(dbc).Preload("SID").Preload("Head").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteEmpty removes chains with no members and returns what it removed.
func (r *chainRepo) DeleteEmpty(dbc dbctx.Context) ([]*types.Chain, error) {
	var empty []*types.Chain
	err := r.tx(dbc).Preload("SID").
		Where("NOT EXISTS (SELECT 1 FROM chain_member m WHERE m.chain_id = chain.id)").
		Find(&empty).Error
	if err != nil {
		return nil, err
	}
	for _, c := range empty {
		if err := r.tx(dbc).Where("id = ?", c.ID).Delete(&types.Chain{}).Error; err != nil {
			return nil, err
		}
	}
	return empty, nil
}
