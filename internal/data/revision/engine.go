// Package revision maintains revision chains: the obsoletes/obsoletedBy links
// between versions, chain membership and heads, and SID bindings.
//
// Every method runs on the caller's dbctx.Context and never opens its own
// transaction. Callers that mutate own the transaction boundary.
package revision

import (
	"time"

	"github.com/yungbote/membernode/internal/data/repos"
	types "github.com/yungbote/membernode/internal/domain"
	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/platform/dbctx"
	"github.com/yungbote/membernode/internal/platform/logger"
	"github.com/yungbote/membernode/internal/platform/sysmeta"
)

type Deps struct {
	Log         *logger.Logger
	Identifiers repos.IdentifierRepo
	Objects     repos.ScienceObjectRepo
	Chains      repos.ChainRepo
	Now         func() time.Time
}

type Engine struct {
	log    *logger.Logger
	ids    repos.IdentifierRepo
	objs   repos.ScienceObjectRepo
	chains repos.ChainRepo
	now    func() time.Time
}

func NewEngine(deps Deps) *Engine {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		log:    log.With("component", "RevisionEngine"),
		ids:    deps.Identifiers,
		objs:   deps.Objects,
		chains: deps.Chains,
		now:    now,
	}
}

func integrity(op, format string, args ...any) error {
	return domainagg.Errorf(domainagg.CodeChainIntegrity, op, format, args...)
}

func notFound(op, format string, args ...any) error {
	return domainagg.Errorf(domainagg.CodeNotFound, op, format, args...)
}

func (e *Engine) load(dbc dbctx.Context, op, pid string) (*types.ScienceObject, error) {
	obj, err := e.objs.GetByPID(dbc, pid)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, notFound(op, "object does not exist. pid=%q", pid)
	}
	return obj, nil
}

// loadRef loads the version a link of from points at.
func (e *Engine) loadRef(dbc dbctx.Context, op string, identifierID int64, from *types.ScienceObject) (*types.ScienceObject, error) {
	obj, err := e.objs.GetByIdentifierID(dbc, identifierID)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, integrity(op, "revision link of %q references a version that is not stored", from.PID())
	}
	return obj, nil
}

// resolvePID returns the identifier row id of a stored PID, nil for "".
func (e *Engine) resolvePID(dbc dbctx.Context, op, did string) (*int64, error) {
	if did == "" {
		return nil, nil
	}
	ident, err := e.ids.Get(dbc, did)
	if err != nil {
		return nil, err
	}
	if ident == nil || ident.Kind != types.KindPID {
		return nil, notFound(op, "revision link references an identifier that is not a stored PID. did=%q", did)
	}
	id := ident.ID
	return &id, nil
}

// IsInChain reports whether pid has at least one revision link.
func (e *Engine) IsInChain(dbc dbctx.Context, pid string) (bool, error) {
	obj, err := e.load(dbc, "revision.IsInChain", pid)
	if err != nil {
		return false, err
	}
	return !obj.IsStandalone(), nil
}

// SetLinks overwrites both links of pid without touching its neighbours.
// It is the raw primitive behind imports; it does not keep the chain consistent.
func (e *Engine) SetLinks(dbc dbctx.Context, pid, obsoletes, obsoletedBy string) error {
	const op = "revision.SetLinks"
	if pid == obsoletes || pid == obsoletedBy {
		return integrity(op, "a version cannot obsolete itself. pid=%q", pid)
	}
	obj, err := e.load(dbc, op, pid)
	if err != nil {
		return err
	}
	a, err := e.resolvePID(dbc, op, obsoletes)
	if err != nil {
		return err
	}
	b, err := e.resolvePID(dbc, op, obsoletedBy)
	if err != nil {
		return err
	}
	if err := e.objs.SetLinks(dbc, obj.ID, a, b); err != nil {
		return err
	}
	return e.syncSysMeta(dbc, obj.IdentifierID, false, false)
}

// Head returns the newest version of the chain containing pid.
func (e *Engine) Head(dbc dbctx.Context, pid string) (*types.ScienceObject, error) {
	const op = "revision.Head"
	obj, err := e.load(dbc, op, pid)
	if err != nil {
		return nil, err
	}
	versions, err := e.walk(dbc, op, obj)
	if err != nil {
		return nil, err
	}
	return versions[len(versions)-1], nil
}

// Chain returns the PIDs of the chain containing pid, oldest first.
func (e *Engine) Chain(dbc dbctx.Context, pid string) ([]string, error) {
	const op = "revision.Chain"
	obj, err := e.load(dbc, op, pid)
	if err != nil {
		return nil, err
	}
	versions, err := e.walk(dbc, op, obj)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.PID()
	}
	return out, nil
}

// walk follows links from start to the tail and then to the head, checking
// that every link is mirrored by its neighbour and that no version repeats.
func (e *Engine) walk(dbc dbctx.Context, op string, start *types.ScienceObject) ([]*types.ScienceObject, error) {
	seen := map[int64]bool{start.IdentifierID: true}
	tail := start
	for tail.ObsoletesID != nil {
		prev, err := e.loadRef(dbc, op, *tail.ObsoletesID, tail)
		if err != nil {
			return nil, err
		}
		if prev.ObsoletedByID == nil || *prev.ObsoletedByID != tail.IdentifierID {
			return nil, integrity(op, "%q obsoletes %q but %q is not obsoleted by it", tail.PID(), prev.PID(), prev.PID())
		}
		if seen[prev.IdentifierID] {
			return nil, integrity(op, "revision cycle through %q", prev.PID())
		}
		seen[prev.IdentifierID] = true
		tail = prev
	}

	out := []*types.ScienceObject{tail}
	seen = map[int64]bool{tail.IdentifierID: true}
	cur := tail
	for cur.ObsoletedByID != nil {
		next, err := e.loadRef(dbc, op, *cur.ObsoletedByID, cur)
		if err != nil {
			return nil, err
		}
		if next.ObsoletesID == nil || *next.ObsoletesID != cur.IdentifierID {
			return nil, integrity(op, "%q is obsoleted by %q but %q does not obsolete it", cur.PID(), next.PID(), next.PID())
		}
		if seen[next.IdentifierID] {
			return nil, integrity(op, "revision cycle through %q", next.PID())
		}
		seen[next.IdentifierID] = true
		out = append(out, next)
		cur = next
	}
	return out, nil
}

// Validate checks the chain containing pid: mirrored links, no cycles, and a
// chain row whose members and head match the walked versions.
func (e *Engine) Validate(dbc dbctx.Context, pid string) error {
	const op = "revision.Validate"
	obj, err := e.load(dbc, op, pid)
	if err != nil {
		return err
	}
	versions, err := e.walk(dbc, op, obj)
	if err != nil {
		return err
	}
	return e.validateMembership(dbc, op, versions)
}

func (e *Engine) validateMembership(dbc dbctx.Context, op string, versions []*types.ScienceObject) error {
	head := versions[len(versions)-1]
	c, err := e.chains.GetByMember(dbc, head.IdentifierID)
	if err != nil {
		return err
	}
	if c == nil {
		return integrity(op, "version is not a member of any chain. pid=%q", head.PID())
	}
	if c.HeadID != head.IdentifierID {
		return integrity(op, "chain head is %q but the newest version is %q", c.HeadDID(), head.PID())
	}
	members, err := e.chains.MemberIDs(dbc, c.ID)
	if err != nil {
		return err
	}
	if len(members) != len(versions) {
		return integrity(op, "chain of %q has %d members but %d linked versions", head.PID(), len(members), len(versions))
	}
	want := make(map[int64]bool, len(versions))
	for _, v := range versions {
		want[v.IdentifierID] = true
	}
	for _, id := range members {
		if !want[id] {
			return integrity(op, "chain of %q has a member outside its revision links", head.PID())
		}
	}
	return nil
}

// AppendVersion links newPID after headPID and moves the chain head (and so
// its SID) to newPID. newPID must be stored and have no links.
func (e *Engine) AppendVersion(dbc dbctx.Context, newPID, headPID string) error {
	const op = "revision.AppendVersion"
	if newPID == headPID {
		return integrity(op, "a version cannot obsolete itself. pid=%q", newPID)
	}
	head, err := e.load(dbc, op, headPID)
	if err != nil {
		return err
	}
	if !head.IsHead() {
		return integrity(op, "object has already been obsoleted. pid=%q obsoletedBy=%q", headPID, head.ObsoletedByPID())
	}
	nw, err := e.load(dbc, op, newPID)
	if err != nil {
		return err
	}
	if !nw.IsStandalone() {
		return integrity(op, "new version already belongs to a revision chain. pid=%q", newPID)
	}
	headChain, err := e.chains.GetByMember(dbc, head.IdentifierID)
	if err != nil {
		return err
	}
	if headChain == nil {
		return integrity(op, "version is not a member of any chain. pid=%q", headPID)
	}
	if headChain.HeadID != head.IdentifierID {
		return integrity(op, "chain head is %q, not %q", headChain.HeadDID(), headPID)
	}

	// A standalone new version may already have its own chain row; fold it in.
	ownChain, err := e.chains.GetByMember(dbc, nw.IdentifierID)
	if err != nil {
		return err
	}
	var carrySID *int64
	if ownChain != nil {
		members, err := e.chains.MemberIDs(dbc, ownChain.ID)
		if err != nil {
			return err
		}
		if len(members) > 1 {
			return integrity(op, "new version shares a chain with other versions. pid=%q", newPID)
		}
		if ownChain.SIDID != nil {
			if headChain.SIDID != nil && *headChain.SIDID != *ownChain.SIDID {
				return domainagg.Errorf(domainagg.CodeIdentifierConflict, op,
					"chains have different SIDs and cannot be joined. sid=%q other=%q", headChain.SIDDID(), ownChain.SIDDID())
			}
			carrySID = ownChain.SIDID
		}
		if err := e.chains.Delete(dbc, ownChain.ID); err != nil {
			return err
		}
	}

	if err := e.objs.SetLinks(dbc, nw.ID, &head.IdentifierID, nil); err != nil {
		return err
	}
	if err := e.objs.UpdateFields(dbc, head.ID, map[string]interface{}{"obsoleted_by_id": nw.IdentifierID}); err != nil {
		return err
	}
	if err := e.chains.AddMember(dbc, headChain.ID, nw.IdentifierID); err != nil {
		return err
	}
	if err := e.chains.SetHead(dbc, headChain.ID, nw.IdentifierID); err != nil {
		return err
	}
	if carrySID != nil && headChain.SIDID == nil {
		if err := e.chains.SetSID(dbc, headChain.ID, carrySID); err != nil {
			return err
		}
	}
	if err := e.syncSysMeta(dbc, head.IdentifierID, true, false); err != nil {
		return err
	}
	return e.syncSysMeta(dbc, nw.IdentifierID, false, false)
}

// CutFromChain detaches pid, joining its neighbours to each other. The cut
// version ends up alone in a new chain without a SID; the old chain keeps its
// SID, which follows the recomputed head. Cutting a standalone version is a no-op.
func (e *Engine) CutFromChain(dbc dbctx.Context, pid string) error {
	const op = "revision.CutFromChain"
	obj, err := e.load(dbc, op, pid)
	if err != nil {
		return err
	}
	if obj.IsStandalone() {
		return nil
	}

	var prev, next *types.ScienceObject
	if obj.ObsoletesID != nil {
		if prev, err = e.loadRef(dbc, op, *obj.ObsoletesID, obj); err != nil {
			return err
		}
		if prev.ObsoletedByID == nil || *prev.ObsoletedByID != obj.IdentifierID {
			return integrity(op, "%q obsoletes %q but the link is not mirrored", pid, prev.PID())
		}
	}
	if obj.ObsoletedByID != nil {
		if next, err = e.loadRef(dbc, op, *obj.ObsoletedByID, obj); err != nil {
			return err
		}
		if next.ObsoletesID == nil || *next.ObsoletesID != obj.IdentifierID {
			return integrity(op, "%q is obsoleted by %q but the link is not mirrored", pid, next.PID())
		}
	}

	c, err := e.chains.GetByMember(dbc, obj.IdentifierID)
	if err != nil {
		return err
	}
	if c == nil {
		return integrity(op, "version is not a member of any chain. pid=%q", pid)
	}

	// Clear the cut version first so the unique link columns never hold two rows.
	if err := e.objs.SetLinks(dbc, obj.ID, nil, nil); err != nil {
		return err
	}
	var prevIdent, nextIdent *int64
	if prev != nil {
		prevIdent = &prev.IdentifierID
	}
	if next != nil {
		nextIdent = &next.IdentifierID
	}
	if prev != nil {
		if err := e.objs.SetLinks(dbc, prev.ID, prev.ObsoletesID, nextIdent); err != nil {
			return err
		}
	}
	if next != nil {
		if err := e.objs.SetLinks(dbc, next.ID, prevIdent, next.ObsoletedByID); err != nil {
			return err
		}
	}

	if err := e.chains.RemoveMember(dbc, obj.IdentifierID); err != nil {
		return err
	}
	if c.HeadID == obj.IdentifierID {
		anchor := prev
		if anchor == nil {
			anchor = next
		}
		newHead, err := e.Head(dbc, anchor.PID())
		if err != nil {
			return err
		}
		if err := e.chains.SetHead(dbc, c.ID, newHead.IdentifierID); err != nil {
			return err
		}
	}
	if _, err := e.chains.Create(dbc, obj.IdentifierID, nil); err != nil {
		return err
	}

	for _, touched := range []*types.ScienceObject{prev, next} {
		if touched == nil {
			continue
		}
		if err := e.syncSysMeta(dbc, touched.IdentifierID, true, false); err != nil {
			return err
		}
	}
	// The cut version leaves the series along with the chain.
	if err := e.syncSysMeta(dbc, obj.IdentifierID, true, true); err != nil {
		return err
	}
	e.log.Debug("Cut version from chain", "pid", pid, "prev", prev != nil, "next", next != nil)
	return nil
}

// DeleteVersion removes pid for good. The chain is repaired around it; a chain
// left empty is removed and its SID released. The PID is tombstoned, so it may
// be reused. It returns the removed row for blob cleanup.
func (e *Engine) DeleteVersion(dbc dbctx.Context, pid string) (*types.ScienceObject, error) {
	const op = "revision.DeleteVersion"
	obj, err := e.load(dbc, op, pid)
	if err != nil {
		return nil, err
	}
	if err := e.CutFromChain(dbc, pid); err != nil {
		return nil, err
	}
	c, err := e.chains.GetByMember(dbc, obj.IdentifierID)
	if err != nil {
		return nil, err
	}
	if err := e.chains.RemoveMember(dbc, obj.IdentifierID); err != nil {
		return nil, err
	}
	if c != nil {
		members, err := e.chains.MemberIDs(dbc, c.ID)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			if err := e.chains.Delete(dbc, c.ID); err != nil {
				return nil, err
			}
			if sid := c.SIDDID(); sid != "" {
				if err := e.ids.Tombstone(dbc, sid); err != nil {
					return nil, err
				}
				e.log.Debug("Released SID of removed chain", "sid", sid, "pid", pid)
			}
		}
	}
	if err := e.objs.Delete(dbc, obj.ID); err != nil {
		return nil, err
	}
	if err := e.ids.Tombstone(dbc, pid); err != nil {
		return nil, err
	}
	return obj, nil
}

// syncSysMeta rewrites the stored System Metadata of a version so its
// obsoletes/obsoletedBy match the row. With bump set the serial version and
// modification time advance; with clearSID the seriesId is dropped.
func (e *Engine) syncSysMeta(dbc dbctx.Context, identifierID int64, bump, clearSID bool) error {
	obj, err := e.objs.GetByIdentifierID(dbc, identifierID)
	if err != nil || obj == nil {
		return err
	}
	now := e.now()
	updates := map[string]interface{}{}
	serial := obj.SerialVersion
	if bump {
		serial++
		updates["serial_version"] = serial
		updates["modified_at"] = now
	}
	if obj.SysMetaXML != "" {
		sm, err := sysmeta.Unmarshal([]byte(obj.SysMetaXML))
		if err != nil {
			e.log.Warn("Stored system metadata is unreadable; links not mirrored", "pid", obj.PID(), "error", err)
		} else if bump || (clearSID && sm.SeriesID != "") || sm.Obsoletes != obj.ObsoletesPID() || sm.ObsoletedBy != obj.ObsoletedByPID() {
			if clearSID {
				sm.SeriesID = ""
			}
			sm.Obsoletes = obj.ObsoletesPID()
			sm.ObsoletedBy = obj.ObsoletedByPID()
			sm.SerialVersion = serial
			if bump {
				sm.DateSysMetadataModified = &now
			}
			raw, err := sysmeta.Marshal(sm)
			if err != nil {
				return err
			}
			updates["sysmeta_xml"] = string(raw)
		}
	}
	return e.objs.UpdateFields(dbc, obj.ID, updates)
}
