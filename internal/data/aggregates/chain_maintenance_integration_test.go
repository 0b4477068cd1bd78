package aggregates_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gorm.io/gorm"

	"github.com/yungbote/membernode/internal/data/aggregates"
	aggtest "github.com/yungbote/membernode/internal/data/aggregates/testutil"
	repotest "github.com/yungbote/membernode/internal/data/repos/testutil"
	"github.com/yungbote/membernode/internal/data/revision"
	types "github.com/yungbote/membernode/internal/domain"
	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/observability"
)

func newMaintenance(t *testing.T, f *objFixture) domainagg.ChainMaintenance {
	t.Helper()
	return newMaintenanceWithHooks(t, f, nil)
}

func newMaintenanceWithHooks(t *testing.T, f *objFixture, hooks aggregates.Hooks) domainagg.ChainMaintenance {
	t.Helper()
	return aggregates.NewChainMaintenance(aggregates.ChainMaintenanceDeps{
		Base:          aggregates.BaseDeps{DB: f.db, Log: repotest.Logger(t), Hooks: hooks},
		Identifiers:   f.set.Identifiers,
		Objects:       f.set.Objects,
		Chains:        f.set.Chains,
		Events:        f.set.Events,
		Metrics:       observability.NewMetrics(),
		ProgressEvery: 2,
	})
}

// damage unlinks B from A in the rows only and splits B (not the head) into
// its own chain, leaving the stored System Metadata intact.
func damage(t *testing.T, f *objFixture) {
	t.Helper()
	a, err := f.set.Objects.GetByPID(f.dbc(), "A")
	if err != nil || a == nil {
		t.Fatalf("load A: %v", err)
	}
	b, err := f.set.Objects.GetByPID(f.dbc(), "B")
	if err != nil || b == nil {
		t.Fatalf("load B: %v", err)
	}
	if err := f.db.Model(&types.ScienceObject{}).Where("id = ?", a.ID).
		Update("obsoleted_by_id", gorm.Expr("NULL")).Error; err != nil {
		t.Fatalf("damage link: %v", err)
	}
	if err := f.set.Chains.RemoveMember(f.dbc(), b.IdentifierID); err != nil {
		t.Fatalf("damage membership: %v", err)
	}
	if _, err := f.set.Chains.Create(f.dbc(), b.IdentifierID, nil); err != nil {
		t.Fatalf("damage chain: %v", err)
	}
}

func TestRepairAllChainsFromSysMeta(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	buildChain(t, f, "S", "A", "B", "C")
	f.create(t, "lonely", "", "standalone")
	m := newMaintenance(t, f)

	want, err := m.Export(f.ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	damage(t, f)

	verify, err := m.Verify(f.ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(verify.Violations) == 0 {
		t.Fatalf("damaged chain should report violations")
	}

	source := revision.NewSysMetaSource(repotest.Logger(t), f.set.Objects)
	report, err := m.RepairAllChains(f.ctx, source)
	if err != nil {
		t.Fatalf("RepairAllChains: %v", err)
	}
	if report.Source != "sysmeta" || report.Records != 4 || report.LinksChanged != 1 || report.ChainsRebuilt == 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, f.chain(t, "B")); diff != "" {
		t.Fatalf("chain (-want +got):\n%s", diff)
	}
	if got := f.resolve(t, "S"); got != "C" {
		t.Fatalf("resolve(S): want C got %q", got)
	}

	got, err := m.Export(f.ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("repaired state differs from original (-want +got):\n%s", diff)
	}

	again, err := m.RepairAllChains(f.ctx, source)
	if err != nil {
		t.Fatalf("second RepairAllChains: %v", err)
	}
	if again.LinksChanged != 0 || again.ChainsRebuilt != 0 || again.SIDsBound != 0 || again.ChainsRemoved != 0 {
		t.Fatalf("second run changed state: %+v", again)
	}
	verify, err = m.Verify(f.ctx)
	if err != nil || len(verify.Violations) != 0 {
		t.Fatalf("violations after repair: %+v err=%v", verify.Violations, err)
	}
	if verify.Objects != 4 || verify.Chains != 2 {
		t.Fatalf("verify counts: objects=%d chains=%d", verify.Objects, verify.Chains)
	}
}

func TestRepairAllChainsFromManifest(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	buildChain(t, f, "S", "A", "B", "C")
	m := newMaintenance(t, f)

	recs, err := m.Export(f.ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	path := filepath.Join(t.TempDir(), "chains.yaml")
	manifest := revision.Manifest{Version: revision.ManifestVersion, Node: "urn:node:TEST", GeneratedAt: time.Now().UTC(), Records: recs}
	if err := revision.WriteManifestFile(path, manifest); err != nil {
		t.Fatalf("WriteManifestFile: %v", err)
	}
	damage(t, f)

	report, err := m.RepairAllChains(f.ctx, revision.NewManifestSource(path))
	if err != nil {
		t.Fatalf("RepairAllChains: %v", err)
	}
	if report.LinksChanged != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	got, err := m.Export(f.ctx)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if diff := cmp.Diff(recs, got); diff != "" {
		t.Fatalf("state differs from manifest (-want +got):\n%s", diff)
	}

	logs, err := f.set.Events.ListByDID(f.dbc(), "C")
	if err != nil {
		t.Fatalf("ListByDID: %v", err)
	}
	if last := logs[len(logs)-1]; last.Event != types.EventRepair {
		t.Fatalf("repair should log an event on the head, got %q", last.Event)
	}
}

func TestRepairAllChainsStopsOnCancel(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	f.create(t, "A", "", "a")
	m := newMaintenance(t, f)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	_, err := m.RepairAllChains(ctx, revision.StaticSource{Label: "static", Recs: []domainagg.RevisionRecord{{PID: "A"}}})
	if !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("cancelled repair: want retryable got %v", err)
	}

	_, err = m.RepairAllChains(f.ctx, nil)
	wantCode(t, err, domainagg.CodeInvalidRequest)
}

// interleaveHooks runs fn once, right after the first chain step of a repair
// commits.
type interleaveHooks struct {
	*aggtest.HooksRecorder
	once sync.Once
	fn   func()
}

func (h *interleaveHooks) ObserveOperation(op, status string, dur time.Duration) {
	h.HooksRecorder.ObserveOperation(op, status, dur)
	if op == "ChainMaintenance.RepairAllChains.chain" && status == "success" {
		h.once.Do(h.fn)
	}
}

func TestRepairAllChainsSkipsChainUpdatedDuringRun(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	buildChain(t, f, "", "P0", "P1")
	buildChain(t, f, "S", "X0", "X1", "X2")

	hooks := &interleaveHooks{HooksRecorder: &aggtest.HooksRecorder{}}
	hooks.fn = func() { f.update(t, "X2", "X3", "") }
	m := newMaintenanceWithHooks(t, f, hooks)
	source := revision.NewSysMetaSource(repotest.Logger(t), f.set.Objects)

	report, err := m.RepairAllChains(f.ctx, source)
	if err != nil {
		t.Fatalf("RepairAllChains: %v", err)
	}
	if diff := cmp.Diff([]string{"X2"}, report.Stale); diff != "" {
		t.Fatalf("stale chains (-want +got):\n%s", diff)
	}
	if report.LinksChanged != 0 {
		t.Fatalf("repair rewrote links from an old snapshot: %+v", report)
	}
	if got := f.resolve(t, "S"); got != "X3" {
		t.Fatalf("resolve(S): want X3 got %q", got)
	}
	if diff := cmp.Diff([]string{"X0", "X1", "X2", "X3"}, f.chain(t, "X0")); diff != "" {
		t.Fatalf("chain (-want +got):\n%s", diff)
	}

	again, err := m.RepairAllChains(f.ctx, source)
	if err != nil {
		t.Fatalf("second RepairAllChains: %v", err)
	}
	if len(again.Stale) != 0 || again.LinksChanged != 0 || again.ChainsRebuilt != 0 {
		t.Fatalf("second run should find nothing to do: %+v", again)
	}
	if got := f.resolve(t, "S"); got != "X3" {
		t.Fatalf("resolve(S) after rerun: want X3 got %q", got)
	}
}

func TestRepairAllChainsFromSysMetaAfterCut(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	// The cut version sorts before the chain root, so it would claim the SID
	// first if its System Metadata still named it.
	buildChain(t, f, "S", "M0", "A", "M2")
	if err := f.engine.CutFromChain(f.dbc(), "A"); err != nil {
		t.Fatalf("CutFromChain: %v", err)
	}
	m := newMaintenance(t, f)
	source := revision.NewSysMetaSource(repotest.Logger(t), f.set.Objects)

	report, err := m.RepairAllChains(f.ctx, source)
	if err != nil {
		t.Fatalf("RepairAllChains: %v", err)
	}
	if len(report.DroppedLinks) != 0 || report.LinksChanged != 0 {
		t.Fatalf("cut left System Metadata out of step with the rows: %+v", report)
	}
	if got := f.resolve(t, "S"); got != "M2" {
		t.Fatalf("resolve(S): want M2 got %q", got)
	}
	if diff := cmp.Diff([]string{"M0", "M2"}, f.chain(t, "M0")); diff != "" {
		t.Fatalf("chain (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A"}, f.chain(t, "A")); diff != "" {
		t.Fatalf("cut chain (-want +got):\n%s", diff)
	}

	again, err := m.RepairAllChains(f.ctx, source)
	if err != nil {
		t.Fatalf("second RepairAllChains: %v", err)
	}
	if again.LinksChanged != 0 || again.ChainsRebuilt != 0 || again.SIDsBound != 0 {
		t.Fatalf("second run changed state: %+v", again)
	}
}

func TestRepairAllChainsFromSysMetaAfterSIDAdoption(t *testing.T) {
	f := newObjFixture(t, repotest.DB(t))
	f.create(t, "P0", "T", "p0")
	buildChain(t, f, "", "Q0", "Q1")
	m := newMaintenance(t, f)

	joined := revision.StaticSource{Label: "static", Recs: []domainagg.RevisionRecord{
		{PID: "P0", ObsoletedBy: "Q0"},
		{PID: "Q0", Obsoletes: "P0", ObsoletedBy: "Q1"},
		{PID: "Q1", Obsoletes: "Q0"},
	}}
	report, err := m.RepairAllChains(f.ctx, joined)
	if err != nil {
		t.Fatalf("RepairAllChains: %v", err)
	}
	if report.SIDsBound != 1 {
		t.Fatalf("joined chain should adopt T: %+v", report)
	}
	if got := f.resolve(t, "T"); got != "Q1" {
		t.Fatalf("resolve(T): want Q1 got %q", got)
	}

	source := revision.NewSysMetaSource(repotest.Logger(t), f.set.Objects)
	again, err := m.RepairAllChains(f.ctx, source)
	if err != nil {
		t.Fatalf("RepairAllChains(sysmeta): %v", err)
	}
	if again.LinksChanged != 0 || again.ChainsRebuilt != 0 || len(again.DroppedLinks) != 0 {
		t.Fatalf("System Metadata disagrees with the adopted chain: %+v", again)
	}
	if got := f.resolve(t, "T"); got != "Q1" {
		t.Fatalf("resolve(T) after sysmeta repair: want Q1 got %q", got)
	}
	if diff := cmp.Diff([]string{"P0", "Q0", "Q1"}, f.chain(t, "Q1")); diff != "" {
		t.Fatalf("chain (-want +got):\n%s", diff)
	}
}
