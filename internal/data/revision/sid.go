package revision

import (
	"github.com/yungbote/membernode/internal/data/repos"
	types "github.com/yungbote/membernode/internal/domain"
	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/platform/dbctx"
	"github.com/yungbote/membernode/internal/platform/logger"
)

// Resolver maps SIDs to the head PID of their chain.
type Resolver struct {
	log    *logger.Logger
	ids    repos.IdentifierRepo
	chains repos.ChainRepo
	objs   repos.ScienceObjectRepo
}

func NewResolver(deps Deps) *Resolver {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{
		log:    log.With("component", "SIDResolver"),
		ids:    deps.Identifiers,
		chains: deps.Chains,
		objs:   deps.Objects,
	}
}

func (r *Resolver) pidIdentifier(dbc dbctx.Context, op, pid string) (*types.Identifier, error) {
	ident, err := r.ids.Get(dbc, pid)
	if err != nil {
		return nil, err
	}
	if ident == nil || ident.Kind != types.KindPID {
		return nil, notFound(op, "object does not exist. pid=%q", pid)
	}
	return ident, nil
}

// HasSID returns the SID of the chain containing pid. ok is false when the
// chain has none.
func (r *Resolver) HasSID(dbc dbctx.Context, pid string) (sid string, ok bool, err error) {
	const op = "revision.HasSID"
	ident, err := r.pidIdentifier(dbc, op, pid)
	if err != nil {
		return "", false, err
	}
	c, err := r.chains.GetByMember(dbc, ident.ID)
	if err != nil || c == nil {
		return "", false, err
	}
	sid = c.SIDDID()
	return sid, sid != "", nil
}

// Resolve returns the head PID of the chain sid is bound to.
func (r *Resolver) Resolve(dbc dbctx.Context, sid string) (string, error) {
	const op = "revision.Resolve"
	ident, err := r.ids.Get(dbc, sid)
	if err != nil {
		return "", err
	}
	if ident == nil || ident.Kind != types.KindSID {
		return "", notFound(op, "identifier is not a SID. sid=%q", sid)
	}
	c, err := r.chains.GetBySID(dbc, ident.ID)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", notFound(op, "SID is not bound to any chain. sid=%q", sid)
	}
	return c.HeadDID(), nil
}

// ResolveDID accepts a PID or a SID and returns the PID it denotes together
// with the SID of its chain.
func (r *Resolver) ResolveDID(dbc dbctx.Context, did string) (pid string, sid string, err error) {
	const op = "revision.ResolveDID"
	ident, err := r.ids.Get(dbc, did)
	if err != nil {
		return "", "", err
	}
	switch {
	case ident == nil || ident.Kind == types.KindDeleted:
		return "", "", notFound(op, "identifier does not exist. did=%q", did)
	case ident.Kind == types.KindSID:
		pid, err := r.Resolve(dbc, did)
		return pid, did, err
	default:
		sid, _, err := r.HasSID(dbc, did)
		return did, sid, err
	}
}

// Bind attaches sid to the chain whose head is pid, reserving sid if it is
// unused. Binding the SID a chain already has is a no-op. A SID bound to a
// different chain, a chain with a different SID, or a SID that is in use as
// a PID is an IdentifierConflict.
func (r *Resolver) Bind(dbc dbctx.Context, sid, pid string) error {
	const op = "revision.Bind"
	if sid == pid {
		return domainagg.Errorf(domainagg.CodeIdentifierConflict, op, "SID must differ from the PID. did=%q", sid)
	}
	pidIdent, err := r.pidIdentifier(dbc, op, pid)
	if err != nil {
		return err
	}
	obj, err := r.objs.GetByIdentifierID(dbc, pidIdent.ID)
	if err != nil {
		return err
	}
	if obj == nil {
		return notFound(op, "object does not exist. pid=%q", pid)
	}
	if !obj.IsHead() {
		return integrity(op, "a SID can only be bound to the head of a chain. pid=%q obsoletedBy=%q", pid, obj.ObsoletedByPID())
	}
	c, err := r.chains.GetByMember(dbc, pidIdent.ID)
	if err != nil {
		return err
	}
	if c == nil {
		return integrity(op, "version is not a member of any chain. pid=%q", pid)
	}

	sidIdent, err := r.ids.Get(dbc, sid)
	if err != nil {
		return err
	}
	switch {
	case sidIdent.InUse() && sidIdent.Kind == types.KindPID:
		return domainagg.Errorf(domainagg.CodeIdentifierConflict, op, "identifier is already in use as a Persistent ID (PID). did=%q", sid)
	case sidIdent.InUse():
		bound, err := r.chains.GetBySID(dbc, sidIdent.ID)
		if err != nil {
			return err
		}
		if bound != nil && bound.ID != c.ID {
			return domainagg.Errorf(domainagg.CodeIdentifierConflict, op,
				"SID is already bound to another chain. sid=%q head=%q", sid, bound.HeadDID())
		}
	default:
		if c.SIDID != nil {
			return domainagg.Errorf(domainagg.CodeIdentifierConflict, op,
				"a different SID is already assigned to the chain. existing_sid=%q new_sid=%q pid=%q", c.SIDDID(), sid, pid)
		}
		if sidIdent, err = r.ids.Reserve(dbc, sid, types.KindSID); err != nil {
			return err
		}
	}
	if c.SIDID != nil && *c.SIDID != sidIdent.ID {
		return domainagg.Errorf(domainagg.CodeIdentifierConflict, op,
			"a different SID is already assigned to the chain. existing_sid=%q new_sid=%q pid=%q", c.SIDDID(), sid, pid)
	}
	if c.HeadID != pidIdent.ID {
		if err := r.chains.SetHead(dbc, c.ID, pidIdent.ID); err != nil {
			return err
		}
	}
	if c.SIDID == nil {
		if err := r.chains.SetSID(dbc, c.ID, &sidIdent.ID); err != nil {
			return err
		}
		r.log.Debug("Bound SID", "sid", sid, "pid", pid)
	}
	return nil
}
