package aggregates_test

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/membernode/internal/data/aggregates"
	aggtest "github.com/yungbote/membernode/internal/data/aggregates/testutil"
	"github.com/yungbote/membernode/internal/data/repos"
	repotest "github.com/yungbote/membernode/internal/data/repos/testutil"
	"github.com/yungbote/membernode/internal/data/revision"
	types "github.com/yungbote/membernode/internal/domain"
	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/formats"
	"github.com/yungbote/membernode/internal/platform/dbctx"
	"github.com/yungbote/membernode/internal/platform/objstore"
	"github.com/yungbote/membernode/internal/platform/sysmeta"
	"github.com/yungbote/membernode/internal/realtime"
	"github.com/yungbote/membernode/internal/realtime/bus"
)

type objFixture struct {
	ctx      context.Context
	db       *gorm.DB
	set      repos.Set
	root     string
	hooks    *aggtest.HooksRecorder
	engine   *revision.Engine
	resolver *revision.Resolver
	agg      domainagg.ScienceObjectAggregate

	mu     sync.Mutex
	events []realtime.ChainEvent
}

func newObjFixture(t *testing.T, db *gorm.DB, tune ...func(*aggregates.ScienceObjectAggregateDeps)) *objFixture {
	t.Helper()
	log := repotest.Logger(t)
	ctx := context.Background()
	root := t.TempDir()
	store, err := objstore.NewFSStore(log, root)
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	set := repos.NewSet(db, log)
	rdeps := revision.Deps{Log: log, Identifiers: set.Identifiers, Objects: set.Objects, Chains: set.Chains}
	f := &objFixture{
		ctx:      ctx,
		db:       db,
		set:      set,
		root:     root,
		hooks:    &aggtest.HooksRecorder{},
		engine:   revision.NewEngine(rdeps),
		resolver: revision.NewResolver(rdeps),
	}

	b := bus.NewMemoryBus()
	fctx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	if err := b.StartForwarder(fctx, func(ev realtime.ChainEvent) {
		f.mu.Lock()
		f.events = append(f.events, ev)
		f.mu.Unlock()
	}); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	deps := aggregates.ScienceObjectAggregateDeps{
		Base:        aggregates.BaseDeps{DB: db, Log: log, Hooks: f.hooks},
		Identifiers: set.Identifiers,
		Objects:     set.Objects,
		Chains:      set.Chains,
		Events:      set.Events,
		Store:       store,
		Formats:     formats.NewRegistry(log, set.Formats, formats.Config{}, nil),
		Bus:         b,
		NodeID:      "urn:node:TEST",
	}
	for _, fn := range tune {
		fn(&deps)
	}
	f.agg = aggregates.NewScienceObjectAggregate(deps)
	return f
}

func (f *objFixture) dbc() dbctx.Context { return dbctx.Background(f.ctx) }

func (f *objFixture) create(t *testing.T, pid, sid, content string) domainagg.ObjectResult {
	t.Helper()
	sm := repotest.SysMeta(pid, []byte(content))
	sm.SeriesID = sid
	res, err := f.agg.Create(f.ctx, domainagg.CreateObjectInput{PID: pid, Subject: "CN=tester", Content: []byte(content), SysMeta: sm})
	if err != nil {
		t.Fatalf("Create(%q): %v", pid, err)
	}
	return res
}

func (f *objFixture) update(t *testing.T, oldPID, newPID, sid string) domainagg.ObjectResult {
	t.Helper()
	res, err := f.tryUpdate(oldPID, newPID, sid)
	if err != nil {
		t.Fatalf("Update(%q -> %q): %v", oldPID, newPID, err)
	}
	return res
}

func (f *objFixture) tryUpdate(oldPID, newPID, sid string) (domainagg.ObjectResult, error) {
	content := []byte("bytes of " + newPID)
	sm := repotest.SysMeta(newPID, content)
	sm.SeriesID = sid
	return f.agg.Update(f.ctx, domainagg.UpdateObjectInput{OldPID: oldPID, NewPID: newPID, Subject: "CN=tester", Content: content, SysMeta: sm})
}

func (f *objFixture) resolve(t *testing.T, sid string) string {
	t.Helper()
	pid, err := f.resolver.Resolve(f.dbc(), sid)
	if err != nil {
		t.Fatalf("Resolve(%q): %v", sid, err)
	}
	return pid
}

func (f *objFixture) chain(t *testing.T, pid string) []string {
	t.Helper()
	got, err := f.engine.Chain(f.dbc(), pid)
	if err != nil {
		t.Fatalf("Chain(%q): %v", pid, err)
	}
	if err := f.engine.Validate(f.dbc(), pid); err != nil {
		t.Fatalf("Validate(%q): %v", pid, err)
	}
	return got
}

func (f *objFixture) storedFiles(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(f.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk store: %v", err)
	}
	return n
}

func (f *objFixture) eventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Event + ":" + ev.PID
	}
	return out
}

func wantCode(t *testing.T, err error, code domainagg.ErrorCode) {
	t.Helper()
	if !domainagg.IsCode(err, code) {
		t.Fatalf("want %s, got %q (%v)", code, domainagg.CodeOf(err), err)
	}
}

func TestCreateWithSIDResolvesToPID(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	res := f.create(t, "A", "S", "first")
	if res.PID != "A" || res.SID != "S" || res.HeadPID != "A" || res.SerialVersion != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := f.resolve(t, "S"); got != "A" {
		t.Fatalf("resolve(S): want A got %q", got)
	}

	desc, err := f.agg.Describe(f.ctx, "S")
	if err != nil {
		t.Fatalf("Describe(S): %v", err)
	}
	if desc.PID != "A" || desc.SysMeta == nil {
		t.Fatalf("unexpected description %+v", desc)
	}
	if desc.SysMeta.OriginMemberNode != "urn:node:TEST" || desc.SysMeta.Submitter != "CN=tester" {
		t.Fatalf("node controlled values not set: %+v", desc.SysMeta)
	}
	if diff := cmp.Diff([]string{"create:A"}, f.eventNames()); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestUpdateMovesSIDToNewHead(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	f.create(t, "A", "S", "first")
	res := f.update(t, "A", "B", "")
	if res.SID != "S" || res.HeadPID != "B" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := f.resolve(t, "S"); got != "B" {
		t.Fatalf("resolve(S): want B got %q", got)
	}

	a, err := f.agg.Describe(f.ctx, "A")
	if err != nil {
		t.Fatalf("Describe(A): %v", err)
	}
	b, err := f.agg.Describe(f.ctx, "B")
	if err != nil {
		t.Fatalf("Describe(B): %v", err)
	}
	if a.ObsoletedBy != "B" || b.Obsoletes != "A" {
		t.Fatalf("links not mirrored: A.obsoletedBy=%q B.obsoletes=%q", a.ObsoletedBy, b.Obsoletes)
	}
	if a.SerialVersion != 2 || a.SysMeta.ObsoletedBy != "B" {
		t.Fatalf("obsoleted version metadata not refreshed: serial=%d sysmeta.obsoletedBy=%q", a.SerialVersion, a.SysMeta.ObsoletedBy)
	}
	if b.SysMeta.SeriesID != "S" || b.SysMeta.Obsoletes != "A" {
		t.Fatalf("new version metadata: %+v", b.SysMeta)
	}
	if diff := cmp.Diff([]string{"A", "B"}, f.chain(t, "A")); diff != "" {
		t.Fatalf("chain (-want +got):\n%s", diff)
	}
}

func buildChain(t *testing.T, f *objFixture, sid string, pids ...string) {
	t.Helper()
	f.create(t, pids[0], sid, "bytes of "+pids[0])
	for i := 1; i < len(pids); i++ {
		f.update(t, pids[i-1], pids[i], "")
	}
}

func TestDeleteHeadRebindsSID(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	buildChain(t, f, "S", "P0", "P1", "P2", "P3", "P4")
	if got := f.resolve(t, "S"); got != "P4" {
		t.Fatalf("resolve(S) before delete: %q", got)
	}
	before := f.storedFiles(t)

	res, err := f.agg.Delete(f.ctx, domainagg.DeleteObjectInput{DID: "P4", Subject: "CN=tester"})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res.HeadPID != "P3" || res.SID != "S" {
		t.Fatalf("unexpected result %+v", res)
	}
	if diff := cmp.Diff([]string{"P0", "P1", "P2", "P3"}, f.chain(t, "P0")); diff != "" {
		t.Fatalf("chain (-want +got):\n%s", diff)
	}
	if got := f.resolve(t, "S"); got != "P3" {
		t.Fatalf("resolve(S): want P3 got %q", got)
	}
	if after := f.storedFiles(t); after != before-1 {
		t.Fatalf("bytes of deleted version kept: before=%d after=%d", before, after)
	}
	used, err := f.set.Identifiers.IsUsed(f.dbc(), "P4")
	if err != nil || used {
		t.Fatalf("deleted PID still in use: used=%v err=%v", used, err)
	}
}

func TestDeleteBySIDAndLastMemberOrphansSID(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	buildChain(t, f, "S", "A", "B")

	res, err := f.agg.Delete(f.ctx, domainagg.DeleteObjectInput{DID: "S"})
	if err != nil {
		t.Fatalf("Delete(S): %v", err)
	}
	if res.PID != "B" || res.HeadPID != "A" {
		t.Fatalf("delete via SID should remove the head: %+v", res)
	}
	if _, err := f.agg.Delete(f.ctx, domainagg.DeleteObjectInput{DID: "A"}); err != nil {
		t.Fatalf("Delete(A): %v", err)
	}
	_, err = f.resolver.Resolve(f.dbc(), "S")
	wantCode(t, err, domainagg.CodeNotFound)

	f.create(t, "C", "S", "reuses the released SID")
	if got := f.resolve(t, "S"); got != "C" {
		t.Fatalf("resolve(S): want C got %q", got)
	}
}

func TestCreateRejectsUsedIdentifier(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	f.create(t, "X", "S", "x")

	cases := []struct {
		name     string
		pid, sid string
	}{
		{"pid reused as pid", "X", ""},
		{"sid reused as pid", "S", ""},
		{"pid reused as sid", "Y", "X"},
		{"sid of another chain", "Z", "S"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sm := repotest.SysMeta(tc.pid, []byte("other"))
			sm.SeriesID = tc.sid
			_, err := f.agg.Create(f.ctx, domainagg.CreateObjectInput{PID: tc.pid, Content: []byte("other"), SysMeta: sm})
			wantCode(t, err, domainagg.CodeIdentifierConflict)
		})
	}
	for _, pid := range []string{"Y", "Z"} {
		if used, _ := f.set.Identifiers.IsUsed(f.dbc(), pid); used {
			t.Fatalf("failed create left %q reserved", pid)
		}
	}

	last, ok := f.hooks.Last()
	if !ok || last.Name != "ScienceObject.Create" || last.Status != string(domainagg.CodeIdentifierConflict) {
		t.Fatalf("unexpected hook %+v", last)
	}
}

func TestRecreateAfterDelete(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	f.create(t, "X", "", "old bytes")
	if _, err := f.agg.Delete(f.ctx, domainagg.DeleteObjectInput{DID: "X"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.agg.Describe(f.ctx, "X"); !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("deleted object should be not found, got %v", err)
	}

	f.create(t, "X", "", "new bytes")
	rc, desc, err := f.agg.Open(f.ctx, "X")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "new bytes" || desc.Obsoletes != "" || desc.ObsoletedBy != "" {
		t.Fatalf("recreated object: bytes=%q desc=%+v", got, desc)
	}
}

func TestArchiveIsIdempotent(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	buildChain(t, f, "S", "A", "B")

	first, err := f.agg.Archive(f.ctx, domainagg.ArchiveObjectInput{DID: "S"})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !first.Changed || first.PID != "B" || first.SerialVersion != 2 {
		t.Fatalf("first archive: %+v", first)
	}
	second, err := f.agg.Archive(f.ctx, domainagg.ArchiveObjectInput{DID: "B"})
	if err != nil {
		t.Fatalf("second Archive: %v", err)
	}
	if second.Changed || !second.Archived || second.SerialVersion != 2 {
		t.Fatalf("second archive should be a no-op: %+v", second)
	}

	desc, err := f.agg.Describe(f.ctx, "B")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if !desc.Archived || !desc.SysMeta.IsArchived() || desc.HeadPID != "B" {
		t.Fatalf("archived state: %+v", desc)
	}
	if got := f.resolve(t, "S"); got != "B" {
		t.Fatalf("archive must not move the SID, resolve(S)=%q", got)
	}

	_, err = f.tryUpdate("B", "C", "")
	wantCode(t, err, domainagg.CodeInvalidRequest)
}

func TestUpdatePreconditions(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	buildChain(t, f, "S", "A", "B")
	f.create(t, "Other", "T", "other")

	cases := []struct {
		name           string
		oldPID, newPID string
		sid            string
		want           domainagg.ErrorCode
	}{
		{"non-head", "A", "C", "", domainagg.CodeChainIntegrity},
		{"unknown old", "missing", "C", "", domainagg.CodeNotFound},
		{"sid as old", "S", "C", "", domainagg.CodeInvalidRequest},
		{"new pid in use", "B", "Other", "", domainagg.CodeIdentifierConflict},
		{"sid mismatch", "B", "C", "T", domainagg.CodeIdentifierConflict},
		{"new sid of another chain", "Other", "C", "S", domainagg.CodeIdentifierConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.tryUpdate(tc.oldPID, tc.newPID, tc.sid)
			wantCode(t, err, tc.want)
		})
	}
	if used, _ := f.set.Identifiers.IsUsed(f.dbc(), "C"); used {
		t.Fatalf("failed updates left C reserved")
	}
	if diff := cmp.Diff([]string{"A", "B"}, f.chain(t, "A")); diff != "" {
		t.Fatalf("chain changed by failed updates (-want +got):\n%s", diff)
	}
}

func TestUpdateAdoptsNewSID(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	f.create(t, "A", "", "a")
	res := f.update(t, "A", "B", "S")
	if res.SID != "S" {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := f.resolve(t, "S"); got != "B" {
		t.Fatalf("resolve(S): want B got %q", got)
	}
}

func TestCreateRejectsInvalidSystemMetadata(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))

	badChecksum := repotest.SysMeta("A", []byte("content"))
	badChecksum.Checksum.Value = "00000000000000000000000000000000"

	unknownFormat := repotest.SysMeta("A", []byte("content"))
	unknownFormat.FormatID = "application/x-not-registered"

	obsoletes := repotest.SysMeta("A", []byte("content"))
	obsoletes.Obsoletes = "Z"

	mismatch := repotest.SysMeta("other", []byte("content"))

	for name, sm := range map[string]*sysmeta.SystemMetadata{
		"checksum":        badChecksum,
		"format":          unknownFormat,
		"obsoletes":       obsoletes,
		"identifier":      mismatch,
		"missing sysmeta": nil,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.agg.Create(f.ctx, domainagg.CreateObjectInput{PID: "A", Content: []byte("content"), SysMeta: sm})
			wantCode(t, err, domainagg.CodeInvalidSystemMetadata)
		})
	}
	if n := f.storedFiles(t); n != 0 {
		t.Fatalf("rejected creates wrote %d files", n)
	}
}

func TestImportCreateAppendsToHead(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	f.create(t, "A", "S", "a")

	sm := repotest.SysMeta("B", []byte("b"))
	sm.Obsoletes = "A"
	res, err := f.agg.Create(f.ctx, domainagg.CreateObjectInput{PID: "B", Content: []byte("b"), SysMeta: sm, Import: true})
	if err != nil {
		t.Fatalf("import Create: %v", err)
	}
	if res.SID != "S" {
		t.Fatalf("imported version should join the chain SID: %+v", res)
	}
	if diff := cmp.Diff([]string{"A", "B"}, f.chain(t, "B")); diff != "" {
		t.Fatalf("chain (-want +got):\n%s", diff)
	}
	if got := f.resolve(t, "S"); got != "B" {
		t.Fatalf("resolve(S): want B got %q", got)
	}
}

func TestUnauthorizedCallsChangeNothing(t *testing.T) {
	deny := domainagg.AuthorizerFunc(func(_ context.Context, subject string, action domainagg.Action, did string) error {
		if action == domainagg.ActionCreate && did == "seed" {
			return nil
		}
		return errors.New("subject lacks permission")
	})
	f := newObjFixture(t, repotest.DB(t), func(d *aggregates.ScienceObjectAggregateDeps) { d.Authorizer = deny })
	f.create(t, "seed", "S", "seed")

	_, err := f.agg.Create(f.ctx, domainagg.CreateObjectInput{PID: "A", Content: []byte("a"), SysMeta: repotest.SysMeta("A", []byte("a"))})
	wantCode(t, err, domainagg.CodeNotAuthorized)
	_, err = f.tryUpdate("seed", "B", "")
	wantCode(t, err, domainagg.CodeNotAuthorized)
	_, err = f.agg.Delete(f.ctx, domainagg.DeleteObjectInput{DID: "seed"})
	wantCode(t, err, domainagg.CodeNotAuthorized)
	_, err = f.agg.Archive(f.ctx, domainagg.ArchiveObjectInput{DID: "seed"})
	wantCode(t, err, domainagg.CodeNotAuthorized)

	for _, did := range []string{"A", "B"} {
		if used, _ := f.set.Identifiers.IsUsed(f.dbc(), did); used {
			t.Fatalf("unauthorized call reserved %q", did)
		}
	}
	desc, err := f.agg.Describe(f.ctx, "seed")
	if err != nil || desc.Archived {
		t.Fatalf("seed changed: %+v err=%v", desc, err)
	}
	logs, err := f.set.Events.ListByDID(f.dbc(), "seed")
	if err != nil || len(logs) != 1 {
		t.Fatalf("event log of seed: %d rows err=%v", len(logs), err)
	}
}

func TestFailedCommitRollsBackEverything(t *testing.T) {
	db := repotest.DB(t)
	runner := &aggtest.FaultyTxRunner{
		Inner:      aggregates.NewGormTxRunner(db),
		FailCommit: errors.New("commit refused"),
	}
	f := newObjFixture(t, db, func(d *aggregates.ScienceObjectAggregateDeps) { d.Base.Runner = runner })

	_, err := f.agg.Create(f.ctx, domainagg.CreateObjectInput{PID: "A", Content: []byte("a"), SysMeta: func() *sysmeta.SystemMetadata {
		sm := repotest.SysMeta("A", []byte("a"))
		sm.SeriesID = "S"
		return sm
	}()})
	if err == nil {
		t.Fatalf("expected failure")
	}
	wantCode(t, err, domainagg.CodeInternal)
	if runner.Rollbacks != 1 || runner.Commits != 0 {
		t.Fatalf("runner calls: rollbacks=%d commits=%d", runner.Rollbacks, runner.Commits)
	}
	for _, did := range []string{"A", "S"} {
		if used, _ := f.set.Identifiers.IsUsed(f.dbc(), did); used {
			t.Fatalf("%q survived the rollback", did)
		}
	}
	if n := f.storedFiles(t); n != 0 {
		t.Fatalf("rolled back create left %d files", n)
	}
	if got := f.eventNames(); len(got) != 0 {
		t.Fatalf("rolled back create published %v", got)
	}
}

func TestConcurrentUpdatesDoNotFork(t *testing.T) {
	// Shares one SQLite connection between goroutines; a Postgres test
	// transaction cannot be used concurrently.
	f := newObjFixture(t, repotest.SQLite(t))
	f.create(t, "A", "S", "a")

	var (
		g         errgroup.Group
		mu        sync.Mutex
		succeeded []string
	)
	for _, pid := range []string{"B1", "B2", "B3"} {
		g.Go(func() error {
			_, err := f.tryUpdate("A", pid, "")
			switch {
			case err == nil:
				mu.Lock()
				succeeded = append(succeeded, pid)
				mu.Unlock()
				return nil
			case domainagg.IsCode(err, domainagg.CodeChainIntegrity),
				domainagg.IsCode(err, domainagg.CodeConflict),
				domainagg.IsCode(err, domainagg.CodeRetryable):
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if len(succeeded) != 1 {
		t.Fatalf("exactly one update must win, got %v", succeeded)
	}
	if diff := cmp.Diff([]string{"A", succeeded[0]}, f.chain(t, "A")); diff != "" {
		t.Fatalf("chain (-want +got):\n%s", diff)
	}
	if got := f.resolve(t, "S"); got != succeeded[0] {
		t.Fatalf("resolve(S): want %q got %q", succeeded[0], got)
	}
}

func TestEventLogRecordsMutations(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t), func(d *aggregates.ScienceObjectAggregateDeps) {
		d.Now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	})
	buildChain(t, f, "S", "A", "B")
	if _, err := f.agg.Archive(f.ctx, domainagg.ArchiveObjectInput{DID: "A"}); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	var got []string
	for _, did := range []string{"A", "B"} {
		rows, err := f.set.Events.ListByDID(f.dbc(), did)
		if err != nil {
			t.Fatalf("ListByDID: %v", err)
		}
		for _, r := range rows {
			got = append(got, r.Event+":"+r.DID)
		}
	}
	want := []string{types.EventCreate + ":A", types.EventArchive + ":A", types.EventUpdate + ":B"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("event log (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"create:A", "update:B", "archive:A"}, f.eventNames()); diff != "" {
		t.Fatalf("bus events (-want +got):\n%s", diff)
	}
}
