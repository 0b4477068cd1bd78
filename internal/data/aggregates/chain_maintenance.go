package aggregates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/yungbote/membernode/internal/data/repos"
	"github.com/yungbote/membernode/internal/data/revision"
	types "github.com/yungbote/membernode/internal/domain"
	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/observability"
	"github.com/yungbote/membernode/internal/platform/dbctx"
	"github.com/yungbote/membernode/internal/platform/logger"
)

const defaultRepairProgressEvery = 1000

type ChainMaintenanceDeps struct {
	Base BaseDeps

	Identifiers repos.IdentifierRepo
	Objects     repos.ScienceObjectRepo
	Chains      repos.ChainRepo
	Events      repos.EventLogRepo

	Engine  *revision.Engine
	Metrics *observability.Metrics

	// ProgressEvery is how many repair steps pass between progress log lines.
	ProgressEvery int
	Now           func() time.Time
}

type chainMaintenance struct {
	deps ChainMaintenanceDeps
	log  *logger.Logger
}

func NewChainMaintenance(deps ChainMaintenanceDeps) domainagg.ChainMaintenance {
	deps.Base = deps.Base.withDefaults()
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.ProgressEvery <= 0 {
		deps.ProgressEvery = defaultRepairProgressEvery
	}
	if deps.Engine == nil {
		deps.Engine = revision.NewEngine(revision.Deps{
			Log:         deps.Base.Log,
			Identifiers: deps.Identifiers,
			Objects:     deps.Objects,
			Chains:      deps.Chains,
			Now:         deps.Now,
		})
	}
	return &chainMaintenance{
		deps: deps,
		log:  deps.Base.Log.With("aggregate", "ChainMaintenance"),
	}
}

func (m *chainMaintenance) Contract() domainagg.Contract {
	return domainagg.ChainMaintenanceContract
}

func (m *chainMaintenance) configured(op string) error {
	d := m.deps
	if d.Identifiers == nil || d.Objects == nil || d.Chains == nil || d.Events == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "chain maintenance repos not configured", nil)
	}
	return nil
}

// RepairAllChains converges stored links, chain rows and SID bindings on the
// records of source. Each chain commits on its own, so an interrupted run keeps
// its progress and a rerun finishes the job. A chain whose versions changed
// after the plan was built is left alone and reported as stale.
func (m *chainMaintenance) RepairAllChains(ctx context.Context, source domainagg.RevisionSource) (domainagg.RepairReport, error) {
	const op = "ChainMaintenance.RepairAllChains"
	report := domainagg.RepairReport{StartedAt: m.deps.Now()}
	if err := m.configured(op); err != nil {
		return report, err
	}
	if source == nil {
		return report, MapError(op, ValidationError("revision source is required"))
	}
	report.Source = source.Name()
	start := time.Now()

	// Serials are read before the records so any write the records miss shows
	// up as a serial mismatch when its chain is locked.
	serials, err := m.deps.Objects.ListSerials(dbctx.Background(ctx))
	if err != nil {
		return report, MapError(op, err)
	}
	records, err := source.Records(ctx)
	if err != nil {
		return report, MapError(op, fmt.Errorf("read %s: %w", source.Name(), err))
	}
	stored := make([]string, 0, len(serials))
	for pid := range serials {
		stored = append(stored, pid)
	}
	sort.Strings(stored)
	plan := revision.BuildPlan(stored, records)
	report.Records = len(records)
	report.Skipped = plan.Skipped
	report.DroppedLinks = plan.Dropped
	for _, msg := range plan.Dropped {
		m.log.Warn("Dropped revision link", "source", report.Source, "reason", msg)
	}
	m.log.Info("Repairing revision chains",
		"source", report.Source, "records", len(records), "stored", len(stored), "chains", len(plan.Components))

	planned := make(map[string]domainagg.RevisionRecord, len(plan.PIDs))
	for _, rec := range plan.Records() {
		planned[rec.PID] = rec
	}

	for i, comp := range plan.Components {
		if err := ctx.Err(); err != nil {
			return report, MapError(op, err)
		}
		var (
			stale   string
			changed int
			res     revision.RebuildResult
		)
		err := executeWrite(ctx, m.deps.Base, op+".chain", func(dbc dbctx.Context) error {
			stale, changed, res = "", 0, revision.RebuildResult{}
			var err error
			if stale, err = m.deps.Engine.LockComponent(dbc, comp.Members, comp.SID, serials); err != nil || stale != "" {
				return err
			}
			for _, pid := range comp.Members {
				rec := planned[pid]
				ok, err := m.deps.Engine.ApplyLinks(dbc, pid, rec.Obsoletes, rec.ObsoletedBy)
				if err != nil {
					return err
				}
				if ok {
					changed++
				}
			}
			if res, err = m.deps.Engine.RebuildChain(dbc, comp.Members, comp.SID); err != nil {
				return err
			}
			if changed == 0 && !res.Changed {
				return nil
			}
			meta := map[string]any{"source": report.Source, "members": len(comp.Members), "links_changed": changed}
			if comp.SID != "" {
				meta["sid"] = comp.SID
			}
			if len(res.ReleasedSID) > 0 {
				meta["released_sids"] = res.ReleasedSID
			}
			_, err = m.deps.Events.Record(dbc, comp.Head(), types.EventRepair, "", meta)
			return err
		})
		if err != nil {
			return report, err
		}
		if stale != "" {
			report.Stale = append(report.Stale, comp.Head())
			m.log.Warn("Chain changed during repair; left for the next run",
				"source", report.Source, "head", comp.Head(), "changed_pid", stale)
			continue
		}
		report.LinksChanged += changed
		if res.Changed {
			report.ChainsRebuilt++
		}
		if res.SIDBound {
			report.SIDsBound++
		}
		if (i+1)%m.deps.ProgressEvery == 0 {
			m.log.Info("Repair progress", "done", i+1, "links_changed", report.LinksChanged, "rebuilt", report.ChainsRebuilt)
		}
	}

	err = executeWrite(ctx, m.deps.Base, op+".cleanup", func(dbc dbctx.Context) error {
		removed, err := m.deps.Chains.DeleteEmpty(dbc)
		if err != nil {
			return err
		}
		for _, c := range removed {
			if sid := c.SIDDID(); sid != "" {
				if err := m.deps.Identifiers.Tombstone(dbc, sid); err != nil {
					return err
				}
			}
		}
		report.ChainsRemoved = len(removed)
		return nil
	})
	if err != nil {
		return report, err
	}

	report.FinishedAt = m.deps.Now()
	m.deps.Metrics.ObserveRepair(report.LinksChanged, report.ChainsRebuilt, report.SIDsBound, report.ChainsRemoved, time.Since(start))
	m.log.Info("Repaired revision chains",
		"source", report.Source,
		"links_changed", report.LinksChanged,
		"chains_rebuilt", report.ChainsRebuilt,
		"sids_bound", report.SIDsBound,
		"chains_removed", report.ChainsRemoved,
		"dropped", len(report.DroppedLinks),
		"stale", len(report.Stale),
	)
	return report, nil
}

func (m *chainMaintenance) Verify(ctx context.Context) (domainagg.VerifyReport, error) {
	const op = "ChainMaintenance.Verify"
	var report domainagg.VerifyReport
	if err := m.configured(op); err != nil {
		return report, err
	}
	err := executeRead(ctx, op, func(dbc dbctx.Context) error {
		chains, err := m.deps.Chains.ListAll(dbc)
		if err != nil {
			return err
		}
		report.Chains = len(chains)
		members := map[int64]bool{}
		for _, c := range chains {
			ids, err := m.deps.Chains.MemberIDs(dbc, c.ID)
			if err != nil {
				return err
			}
			for _, id := range ids {
				members[id] = true
			}
			violations, err := m.deps.Engine.VerifyChain(dbc, c)
			if err != nil {
				return err
			}
			report.Violations = append(report.Violations, violations...)
		}

		pids, err := m.deps.Objects.ListAllPIDs(dbc)
		if err != nil {
			return err
		}
		report.Objects = len(pids)
		for _, pid := range pids {
			ident, err := m.deps.Identifiers.Get(dbc, pid)
			if err != nil {
				return err
			}
			if ident != nil && !members[ident.ID] {
				report.Violations = append(report.Violations, domainagg.ChainViolation{
					PID:     pid,
					Message: "version is not a member of any chain",
				})
			}
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	m.deps.Metrics.SetVerifyViolations(len(report.Violations))
	if len(report.Violations) > 0 {
		m.log.Warn("Revision chain violations found", "count", len(report.Violations))
	}
	return report, nil
}

func (m *chainMaintenance) Export(ctx context.Context) ([]domainagg.RevisionRecord, error) {
	const op = "ChainMaintenance.Export"
	if err := m.configured(op); err != nil {
		return nil, err
	}
	var out []domainagg.RevisionRecord
	err := executeRead(ctx, op, func(dbc dbctx.Context) error {
		var err error
		out, err = m.deps.Engine.Export(dbc)
		return err
	})
	return out, err
}
