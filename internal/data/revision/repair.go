package revision

import (
	"sort"

	types "github.com/yungbote/membernode/internal/domain"
	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/platform/dbctx"
)

func sameRef(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ApplyLinks makes the stored links of pid equal to the planned ones. Any
// other row holding the same predecessor or successor gives it up first; that
// row is corrected when its own record is applied. It reports whether anything
// changed.
func (e *Engine) ApplyLinks(dbc dbctx.Context, pid, obsoletes, obsoletedBy string) (bool, error) {
	const op = "revision.ApplyLinks"
	obj, err := e.load(dbc, op, pid)
	if err != nil {
		return false, err
	}
	want, err := e.resolvePID(dbc, op, obsoletes)
	if err != nil {
		return false, err
	}
	wantBy, err := e.resolvePID(dbc, op, obsoletedBy)
	if err != nil {
		return false, err
	}
	if sameRef(obj.ObsoletesID, want) && sameRef(obj.ObsoletedByID, wantBy) {
		return false, nil
	}
	if want != nil {
		if _, err := e.objs.ReleaseLink(dbc, "obsoletes_id", *want, obj.ID); err != nil {
			return false, err
		}
	}
	if wantBy != nil {
		if _, err := e.objs.ReleaseLink(dbc, "obsoleted_by_id", *wantBy, obj.ID); err != nil {
			return false, err
		}
	}
	if err := e.objs.SetLinks(dbc, obj.ID, want, wantBy); err != nil {
		return false, err
	}
	if err := e.syncSysMeta(dbc, obj.IdentifierID, false, false); err != nil {
		return false, err
	}
	return true, nil
}

// LockComponent takes row locks, in DID order, on the identifiers of members,
// of every version currently linked with them and of sid. It then compares the
// locked versions with serials, the serial versions stored when the plan was
// built, and returns the first PID that was created, changed or removed since.
// An empty result means the plan for members still describes stored state.
func (e *Engine) LockComponent(dbc dbctx.Context, members []string, sid string, serials map[string]int64) (string, error) {
	memberIDs := make([]int64, 0, len(members))
	for _, pid := range members {
		ident, err := e.ids.Get(dbc, pid)
		if err != nil {
			return "", err
		}
		if ident == nil || ident.Kind != types.KindPID {
			return pid, nil
		}
		memberIDs = append(memberIDs, ident.ID)
	}
	rows, err := e.neighbourhood(dbc, memberIDs)
	if err != nil {
		return "", err
	}
	dids := map[string]bool{}
	for _, pid := range members {
		dids[pid] = true
	}
	for _, obj := range rows {
		dids[obj.PID()] = true
	}
	if sid != "" {
		dids[sid] = true
	}
	ordered := make([]string, 0, len(dids))
	for did := range dids {
		ordered = append(ordered, did)
	}
	sort.Strings(ordered)
	for _, did := range ordered {
		if _, err := e.ids.Lock(dbc, did); err != nil {
			return "", err
		}
	}

	if rows, err = e.neighbourhood(dbc, memberIDs); err != nil {
		return "", err
	}
	present := map[string]bool{}
	for _, obj := range rows {
		pid := obj.PID()
		present[pid] = true
		if serial, ok := serials[pid]; !ok || serial != obj.SerialVersion {
			return pid, nil
		}
	}
	for _, pid := range members {
		if !present[pid] {
			return pid, nil
		}
	}
	return "", nil
}

// neighbourhood returns the versions with the given identifiers together with
// every version linked with them in either direction.
func (e *Engine) neighbourhood(dbc dbctx.Context, identifierIDs []int64) ([]*types.ScienceObject, error) {
	own, err := e.objs.GetByIdentifierIDs(dbc, identifierIDs)
	if err != nil {
		return nil, err
	}
	linked, err := e.objs.ListLinkedTo(dbc, identifierIDs)
	if err != nil {
		return nil, err
	}
	inSet := make(map[int64]bool, len(identifierIDs))
	for _, id := range identifierIDs {
		inSet[id] = true
	}
	var targets []int64
	for _, obj := range own {
		for _, ref := range []*int64{obj.ObsoletesID, obj.ObsoletedByID} {
			if ref != nil && !inSet[*ref] {
				targets = append(targets, *ref)
			}
		}
	}
	pointed, err := e.objs.GetByIdentifierIDs(dbc, targets)
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{}
	var out []*types.ScienceObject
	for _, group := range [][]*types.ScienceObject{own, linked, pointed} {
		for _, obj := range group {
			if !seen[obj.ID] {
				seen[obj.ID] = true
				out = append(out, obj)
			}
		}
	}
	return out, nil
}

// RebuildResult reports what RebuildChain changed.
type RebuildResult struct {
	Changed     bool
	SIDBound    bool
	ReleasedSID []string
}

// RebuildChain makes members (oldest first) the exact membership of one chain
// row headed by the last member. sid, when set, is bound to it; otherwise an
// existing SID of the chain is kept. Versions found in the chain row that are
// not members are moved to chains of their own, to be regrouped when their
// component is rebuilt.
func (e *Engine) RebuildChain(dbc dbctx.Context, members []string, sid string) (RebuildResult, error) {
	const op = "revision.RebuildChain"
	var res RebuildResult
	if len(members) == 0 {
		return res, nil
	}
	idents := make([]*types.Identifier, len(members))
	inComponent := make(map[int64]bool, len(members))
	for i, pid := range members {
		ident, err := e.ids.Get(dbc, pid)
		if err != nil {
			return res, err
		}
		if ident == nil || ident.Kind != types.KindPID {
			return res, notFound(op, "object does not exist. pid=%q", pid)
		}
		idents[i] = ident
		inComponent[ident.ID] = true
	}
	head := idents[len(idents)-1]

	target, err := e.chains.GetByMember(dbc, head.ID)
	if err != nil {
		return res, err
	}
	for i := 0; target == nil && i < len(idents)-1; i++ {
		if target, err = e.chains.GetByMember(dbc, idents[i].ID); err != nil {
			return res, err
		}
	}
	if target == nil {
		created, err := e.chains.Create(dbc, head.ID, nil)
		if err != nil {
			return res, err
		}
		if target, err = e.chains.GetByID(dbc, created.ID); err != nil {
			return res, err
		}
		res.Changed = true
	}

	var adoptSID *types.Identifier
	for _, ident := range idents {
		c, err := e.chains.GetByMember(dbc, ident.ID)
		if err != nil {
			return res, err
		}
		if c != nil && c.ID == target.ID {
			continue
		}
		if c != nil {
			released, err := e.detach(dbc, c, ident.ID)
			if err != nil {
				return res, err
			}
			if released != nil {
				if adoptSID == nil && target.SIDID == nil && sid == "" {
					adoptSID = released
				} else {
					res.ReleasedSID = append(res.ReleasedSID, released.DID)
				}
			}
		}
		if err := e.chains.AddMember(dbc, target.ID, ident.ID); err != nil {
			return res, err
		}
		res.Changed = true
	}

	if target.HeadID != head.ID {
		if err := e.chains.SetHead(dbc, target.ID, head.ID); err != nil {
			return res, err
		}
		res.Changed = true
	}

	current, err := e.chains.MemberIDs(dbc, target.ID)
	if err != nil {
		return res, err
	}
	for _, id := range current {
		if inComponent[id] {
			continue
		}
		if err := e.chains.RemoveMember(dbc, id); err != nil {
			return res, err
		}
		if _, err := e.chains.Create(dbc, id, nil); err != nil {
			return res, err
		}
		res.Changed = true
	}

	switch {
	case sid != "" && target.SIDDID() != sid:
		if err := e.bindRepairSID(dbc, op, target, sid); err != nil {
			return res, err
		}
		if target.SIDID != nil {
			res.ReleasedSID = append(res.ReleasedSID, target.SIDDID())
		}
		res.Changed, res.SIDBound = true, true
	case sid == "" && target.SIDID == nil && adoptSID != nil:
		if err := e.chains.SetSID(dbc, target.ID, &adoptSID.ID); err != nil {
			return res, err
		}
		res.Changed, res.SIDBound = true, true
	}

	kept := res.ReleasedSID[:0]
	for _, did := range res.ReleasedSID {
		if did == "" || did == sid || (adoptSID != nil && did == adoptSID.DID) {
			continue
		}
		if err := e.ids.Tombstone(dbc, did); err != nil {
			return res, err
		}
		kept = append(kept, did)
	}
	res.ReleasedSID = kept
	return res, nil
}

// detach removes a version from chain c. An emptied chain is deleted and its
// SID identifier returned; otherwise a chain that was headed by the version
// gets a placeholder head from its remaining members.
func (e *Engine) detach(dbc dbctx.Context, c *types.Chain, identifierID int64) (*types.Identifier, error) {
	if err := e.chains.RemoveMember(dbc, identifierID); err != nil {
		return nil, err
	}
	remaining, err := e.chains.MemberIDs(dbc, c.ID)
	if err != nil {
		return nil, err
	}
	if len(remaining) == 0 {
		if err := e.chains.Delete(dbc, c.ID); err != nil {
			return nil, err
		}
		return c.SID, nil
	}
	if c.HeadID == identifierID {
		if err := e.chains.SetHead(dbc, c.ID, remaining[len(remaining)-1]); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (e *Engine) bindRepairSID(dbc dbctx.Context, op string, target *types.Chain, sid string) error {
	ident, err := e.ids.Get(dbc, sid)
	if err != nil {
		return err
	}
	switch {
	case ident != nil && ident.Kind == types.KindPID:
		return domainagg.Errorf(domainagg.CodeIdentifierConflict, op, "SID is in use as a PID. sid=%q", sid)
	case !ident.InUse():
		if ident, err = e.ids.Reserve(dbc, sid, types.KindSID); err != nil {
			return err
		}
	default:
		other, err := e.chains.GetBySID(dbc, ident.ID)
		if err != nil {
			return err
		}
		if other != nil && other.ID != target.ID {
			if err := e.chains.SetSID(dbc, other.ID, nil); err != nil {
				return err
			}
			e.log.Info("Moved SID to repaired chain", "sid", sid, "from_head", other.HeadDID(), "to_head", target.HeadDID())
		}
	}
	return e.chains.SetSID(dbc, target.ID, &ident.ID)
}

// VerifyChain walks the chain headed by c and returns every violation found.
func (e *Engine) VerifyChain(dbc dbctx.Context, c *types.Chain) ([]domainagg.ChainViolation, error) {
	const op = "revision.VerifyChain"
	var out []domainagg.ChainViolation
	head, err := e.objs.GetByIdentifierID(dbc, c.HeadID)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return append(out, domainagg.ChainViolation{PID: c.HeadDID(), Message: "chain head is not a stored version"}), nil
	}
	if !head.IsHead() {
		out = append(out, domainagg.ChainViolation{PID: head.PID(), Message: "chain head is obsoleted by " + head.ObsoletedByPID()})
	}
	versions, err := e.walk(dbc, op, head)
	if err != nil {
		if domainagg.IsCode(err, domainagg.CodeChainIntegrity) {
			return append(out, domainagg.ChainViolation{PID: head.PID(), Message: err.Error()}), nil
		}
		return nil, err
	}
	if err := e.validateMembership(dbc, op, versions); err != nil {
		if !domainagg.IsCode(err, domainagg.CodeChainIntegrity) {
			return nil, err
		}
		out = append(out, domainagg.ChainViolation{PID: head.PID(), Message: err.Error()})
	}
	return out, nil
}
