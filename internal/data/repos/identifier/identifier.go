package identifier

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/membernode/internal/domain"
	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/platform/dbctx"
	"github.com/yungbote/membernode/internal/platform/logger"
	"github.com/yungbote/membernode/internal/platform/sysmeta"
)

// IdentifierRepo is the namespace shared by PIDs and SIDs. Get and Lock return
// (nil, nil) for unknown identifiers.
type IdentifierRepo interface {
	Get(dbc dbctx.Context, did string) (*types.Identifier, error)
	GetByID(dbc dbctx.Context, id int64) (*types.Identifier, error)
	Lock(dbc dbctx.Context, did string) (*types.Identifier, error)
	IsUsed(dbc dbctx.Context, did string) (bool, error)
	IsPID(dbc dbctx.Context, did string) (bool, error)
	IsSID(dbc dbctx.Context, did string) (bool, error)
	Classify(dbc dbctx.Context, did string) (string, error)
	Reserve(dbc dbctx.Context, did string, kind types.IdentifierKind) (*types.Identifier, error)
	Tombstone(dbc dbctx.Context, did string) error
}

type identifierRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIdentifierRepo(db *gorm.DB, baseLog *logger.Logger) IdentifierRepo {
	return &identifierRepo{
		db:  db,
		log: baseLog.With("repo", "IdentifierRepo"),
	}
}

func (r *identifierRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *identifierRepo) Get(dbc dbctx.Context, did string) (*types.Identifier, error) {
	if did == "" {
		return nil, nil
	}
	var out types.Identifier
	if err := r.tx(dbc).Where("did = ?", did).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

func (r *identifierRepo) GetByID(dbc dbctx.Context, id int64) (*types.Identifier, error) {
	if id == 0 {
		return nil, nil
	}
	var out types.Identifier
	if err := r.tx(dbc).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == 0 {
		return nil, nil
	}
	return &out, nil
}

// Lock takes a row lock on did for the rest of the transaction. The SQLite
// dialector drops the locking clause; its single writer serializes anyway.
func (r *identifierRepo) Lock(dbc dbctx.Context, did string) (*types.Identifier, error) {
	if dbc.Tx == nil {
		return nil, fmt.Errorf("IdentifierRepo.Lock requires a transaction")
	}
	if did == "" {
		return nil, nil
	}
	var out types.Identifier
	err := dbc.Tx.WithContext(dbc.Ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("did = ?", did).
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

func (r *identifierRepo) IsUsed(dbc dbctx.Context, did string) (bool, error) {
	row, err := r.Get(dbc, did)
	if err != nil {
		return false, err
	}
	return row.InUse(), nil
}

func (r *identifierRepo) IsPID(dbc dbctx.Context, did string) (bool, error) {
	return r.isKind(dbc, did, types.KindPID)
}

func (r *identifierRepo) IsSID(dbc dbctx.Context, did string) (bool, error) {
	return r.isKind(dbc, did, types.KindSID)
}

func (r *identifierRepo) isKind(dbc dbctx.Context, did string, kind types.IdentifierKind) (bool, error) {
	row, err := r.Get(dbc, did)
	if err != nil {
		return false, err
	}
	return row != nil && row.Kind == kind, nil
}

// Classify returns a short phrase for error messages, e.g. "a Persistent ID (PID)".
func (r *identifierRepo) Classify(dbc dbctx.Context, did string) (string, error) {
	row, err := r.Get(dbc, did)
	if err != nil {
		return "", err
	}
	switch {
	case row == nil:
		return "unused", nil
	case row.Kind == types.KindPID:
		return "a Persistent ID (PID)", nil
	case row.Kind == types.KindSID:
		return "a Series ID (SID)", nil
	default:
		return "a previously deleted identifier", nil
	}
}

// Reserve claims did with the given kind. A tombstoned row is revived in place.
func (r *identifierRepo) Reserve(dbc dbctx.Context, did string, kind types.IdentifierKind) (*types.Identifier, error) {
	const op = "IdentifierRepo.Reserve"
	if err := sysmeta.CheckIdentifier(did); err != nil {
		return nil, domainagg.Wrap(domainagg.CodeInvalidRequest, op, err)
	}
	if kind != types.KindPID && kind != types.KindSID {
		return nil, domainagg.Errorf(domainagg.CodeInternal, op, "cannot reserve identifier as %q", kind)
	}
	existing, err := r.Get(dbc, did)
	if err != nil {
		return nil, err
	}
	if existing.InUse() {
		return nil, domainagg.Errorf(domainagg.CodeIdentifierConflict, op,
			"identifier is already in use as %s. did=%q", kindPhrase(existing.Kind), did)
	}
	if existing != nil {
		res := r.tx(dbc).Model(&types.Identifier{}).
			Where("id = ? AND kind = ?", existing.ID, types.KindDeleted).
			Update("kind", kind)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, domainagg.Errorf(domainagg.CodeConflict, op, "identifier changed while reserving. did=%q", did)
		}
		existing.Kind = kind
		r.log.Debug("Revived tombstoned identifier", "did", did, "kind", kind)
		return existing, nil
	}
	row := &types.Identifier{DID: did, Kind: kind}
	if err := r.tx(dbc).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// Tombstone releases did. Unknown identifiers are ignored.
func (r *identifierRepo) Tombstone(dbc dbctx.Context, did string) error {
	if did == "" {
		return nil
	}
	return r.tx(dbc).Model(&types.Identifier{}).
		Where("did = ?", did).
		Update("kind", types.KindDeleted).Error
}

func kindPhrase(k types.IdentifierKind) string {
	if k == types.KindSID {
		return "a Series ID (SID)"
	}
	return "a Persistent ID (PID)"
}
