package testutil

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/membernode/internal/domain"
	"github.com/yungbote/membernode/internal/platform/sysmeta"
)

func SeedIdentifier(tb testing.TB, ctx context.Context, tx *gorm.DB, did string, kind types.IdentifierKind) *types.Identifier {
	tb.Helper()
	row := &types.Identifier{DID: did, Kind: kind}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed identifier %q: %v", did, err)
	}
	return row
}

// SeedChain stores pids as one correctly linked chain, oldest first, with an
// optional SID bound to the last pid. It returns the object rows in order.
func SeedChain(tb testing.TB, ctx context.Context, tx *gorm.DB, sid string, pids ...string) []*types.ScienceObject {
	tb.Helper()
	if len(pids) == 0 {
		tb.Fatalf("seed chain: no pids")
	}
	idents := make([]*types.Identifier, len(pids))
	for i, pid := range pids {
		idents[i] = SeedIdentifier(tb, ctx, tx, pid, types.KindPID)
	}
	objs := make([]*types.ScienceObject, len(pids))
	now := time.Now().UTC()
	for i, pid := range pids {
		obj := &types.ScienceObject{
			IdentifierID:      idents[i].ID,
			SerialVersion:     1,
			FormatID:          "application/octet-stream",
			Size:              int64(len(pid)),
			Checksum:          md5Hex([]byte(pid)),
			ChecksumAlgorithm: "MD5",
			Submitter:         "CN=seed",
			RightsHolder:      "CN=seed",
			StorageKey:        "seed/" + pid,
			UploadedAt:        now,
			ModifiedAt:        now,
		}
		if i > 0 {
			obj.ObsoletesID = &idents[i-1].ID
		}
		if i < len(pids)-1 {
			obj.ObsoletedByID = &idents[i+1].ID
		}
		if err := tx.WithContext(ctx).Omit(clause.Associations).Create(obj).Error; err != nil {
			tb.Fatalf("seed object %q: %v", pid, err)
		}
		obj.Identifier = idents[i]
		objs[i] = obj
	}
	c := &types.Chain{HeadID: idents[len(idents)-1].ID}
	if sid != "" {
		s := SeedIdentifier(tb, ctx, tx, sid, types.KindSID)
		c.SIDID = &s.ID
	}
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(c).Error; err != nil {
		tb.Fatalf("seed chain: %v", err)
	}
	for _, ident := range idents {
		if err := tx.WithContext(ctx).Create(&types.ChainMember{ChainID: c.ID, IdentifierID: ident.ID}).Error; err != nil {
			tb.Fatalf("seed chain member: %v", err)
		}
	}
	return objs
}

// AttachSysMeta stores a System Metadata document on each of objs (one chain,
// oldest first, as returned by SeedChain) whose links mirror the chain and
// whose seriesId is sid.
func AttachSysMeta(tb testing.TB, ctx context.Context, tx *gorm.DB, sid string, objs ...*types.ScienceObject) {
	tb.Helper()
	for i, obj := range objs {
		pid := obj.PID()
		sm := SysMeta(pid, []byte(pid))
		sm.SerialVersion = obj.SerialVersion
		sm.SeriesID = sid
		if i > 0 {
			sm.Obsoletes = objs[i-1].PID()
		}
		if i < len(objs)-1 {
			sm.ObsoletedBy = objs[i+1].PID()
		}
		raw, err := sysmeta.Marshal(sm)
		if err != nil {
			tb.Fatalf("marshal sysmeta of %q: %v", pid, err)
		}
		if err := tx.WithContext(ctx).Model(&types.ScienceObject{}).Where("id = ?", obj.ID).
			Update("sysmeta_xml", string(raw)).Error; err != nil {
			tb.Fatalf("store sysmeta of %q: %v", pid, err)
		}
		obj.SysMetaXML = string(raw)
	}
}

// SysMeta returns a valid document for content with an MD5 checksum.
func SysMeta(pid string, content []byte) *sysmeta.SystemMetadata {
	return &sysmeta.SystemMetadata{
		Identifier:   pid,
		FormatID:     "application/octet-stream",
		Size:         int64(len(content)),
		Checksum:     sysmeta.Checksum{Algorithm: "MD5", Value: md5Hex(content)},
		Submitter:    "CN=tester",
		RightsHolder: "CN=tester",
	}
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
