package chain

import (
	"context"
	"testing"

	"github.com/yungbote/membernode/internal/data/repos/testutil"
	types "github.com/yungbote/membernode/internal/domain"
	"github.com/yungbote/membernode/internal/platform/dbctx"
)

func TestChainRepoMembershipAndSID(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewChainRepo(db, testutil.Logger(t))

	a := testutil.SeedIdentifier(t, ctx, db, "a", types.KindPID)
	b := testutil.SeedIdentifier(t, ctx, db, "b", types.KindPID)
	sid := testutil.SeedIdentifier(t, ctx, db, "series", types.KindSID)

	c, err := repo.Create(dbc, a.ID, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.AddMember(dbc, c.ID, b.ID); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := repo.SetHead(dbc, c.ID, b.ID); err != nil {
		t.Fatalf("SetHead: %v", err)
	}
	if err := repo.SetSID(dbc, c.ID, &sid.ID); err != nil {
		t.Fatalf("SetSID: %v", err)
	}

	got, err := repo.GetByMember(dbc, a.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByMember: got=%v err=%v", got, err)
	}
	if got.HeadDID() != "b" || got.SIDDID() != "series" {
		t.Fatalf("chain: head=%q sid=%q", got.HeadDID(), got.SIDDID())
	}
	if bySID, _ := repo.GetBySID(dbc, sid.ID); bySID == nil || bySID.ID != c.ID {
		t.Fatalf("GetBySID: got=%v", bySID)
	}
	ids, err := repo.MemberIDs(dbc, c.ID)
	if err != nil || len(ids) != 2 {
		t.Fatalf("MemberIDs: ids=%v err=%v", ids, err)
	}

	if err := repo.SetSID(dbc, c.ID, nil); err != nil {
		t.Fatalf("SetSID(nil): %v", err)
	}
	if got, _ := repo.GetByID(dbc, c.ID); got.SIDID != nil {
		t.Fatalf("SID should be cleared, got %v", *got.SIDID)
	}
}

func TestChainRepoDeleteEmpty(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewChainRepo(db, testutil.Logger(t))

	a := testutil.SeedIdentifier(t, ctx, db, "a", types.KindPID)
	b := testutil.SeedIdentifier(t, ctx, db, "b", types.KindPID)
	keep, _ := repo.Create(dbc, a.ID, nil)
	drop, _ := repo.Create(dbc, b.ID, nil)
	if err := repo.RemoveMember(dbc, b.ID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	removed, err := repo.DeleteEmpty(dbc)
	if err != nil {
		t.Fatalf("DeleteEmpty: %v", err)
	}
	if len(removed) != 1 || removed[0].ID != drop.ID {
		t.Fatalf("DeleteEmpty: removed=%v", removed)
	}
	all, _ := repo.ListAll(dbc)
	if len(all) != 1 || all[0].ID != keep.ID {
		t.Fatalf("ListAll after cleanup: %v", all)
	}
}
