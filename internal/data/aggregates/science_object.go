package aggregates

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/yungbote/membernode/internal/data/repos"
	"github.com/yungbote/membernode/internal/data/revision"
	types "github.com/yungbote/membernode/internal/domain"
	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/observability"
	"github.com/yungbote/membernode/internal/platform/dbctx"
	"github.com/yungbote/membernode/internal/platform/logger"
	"github.com/yungbote/membernode/internal/platform/objstore"
	"github.com/yungbote/membernode/internal/platform/sysmeta"
	"github.com/yungbote/membernode/internal/realtime"
	"github.com/yungbote/membernode/internal/realtime/bus"
)

// FormatChecker reports whether a formatId is accepted by this node.
type FormatChecker interface {
	IsKnown(ctx context.Context, formatID string) (bool, error)
}

type ScienceObjectAggregateDeps struct {
	Base BaseDeps

	Identifiers repos.IdentifierRepo
	Objects     repos.ScienceObjectRepo
	Chains      repos.ChainRepo
	Events      repos.EventLogRepo

	Engine   *revision.Engine
	Resolver *revision.Resolver

	Store      objstore.Store
	Formats    FormatChecker
	Authorizer domainagg.Authorizer
	Bus        bus.Bus
	Metrics    *observability.Metrics

	// NodeID is written to originMemberNode and authoritativeMemberNode when set.
	NodeID string
	Now    func() time.Time
}

type scienceObjectAggregate struct {
	deps ScienceObjectAggregateDeps
	log  *logger.Logger
}

func NewScienceObjectAggregate(deps ScienceObjectAggregateDeps) domainagg.ScienceObjectAggregate {
	deps.Base = deps.Base.withDefaults()
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	rdeps := revision.Deps{
		Log:         deps.Base.Log,
		Identifiers: deps.Identifiers,
		Objects:     deps.Objects,
		Chains:      deps.Chains,
		Now:         deps.Now,
	}
	if deps.Engine == nil {
		deps.Engine = revision.NewEngine(rdeps)
	}
	if deps.Resolver == nil {
		deps.Resolver = revision.NewResolver(rdeps)
	}
	return &scienceObjectAggregate{
		deps: deps,
		log:  deps.Base.Log.With("aggregate", "ScienceObject"),
	}
}

func (a *scienceObjectAggregate) Contract() domainagg.Contract {
	return domainagg.ScienceObjectAggregateContract
}

func (a *scienceObjectAggregate) configured(op string) error {
	d := a.deps
	if d.Identifiers == nil || d.Objects == nil || d.Chains == nil || d.Events == nil || d.Store == nil {
		return domainagg.NewError(domainagg.CodeInternal, op, "science object aggregate repos not configured", nil)
	}
	return nil
}

func (a *scienceObjectAggregate) authorize(ctx context.Context, op, subject string, action domainagg.Action, did string) error {
	if a.deps.Authorizer == nil {
		return nil
	}
	err := a.deps.Authorizer.Authorize(ctx, subject, action, did)
	if err == nil {
		return nil
	}
	if domainagg.CodeOf(err) != "" {
		return err
	}
	return domainagg.Wrap(domainagg.CodeNotAuthorized, op, err)
}

func (a *scienceObjectAggregate) checkFormat(ctx context.Context, op, formatID string) error {
	if a.deps.Formats == nil {
		return nil
	}
	ok, err := a.deps.Formats.IsKnown(ctx, formatID)
	if err != nil {
		return MapError(op, err)
	}
	if !ok {
		return domainagg.Errorf(domainagg.CodeInvalidSystemMetadata, op, "unknown formatId. formatId=%q", formatID)
	}
	return nil
}

func invalidSysMeta(op string, err error) error {
	return domainagg.Wrap(domainagg.CodeInvalidSystemMetadata, op, err)
}

// checkIncoming validates a document arriving with new bytes under pid.
func checkIncoming(op, pid string, sm *sysmeta.SystemMetadata, content []byte) error {
	if err := sysmeta.CheckIdentifier(pid); err != nil {
		return domainagg.Wrap(domainagg.CodeInvalidRequest, op, err)
	}
	if sm == nil {
		return domainagg.Errorf(domainagg.CodeInvalidSystemMetadata, op, "system metadata is required. pid=%q", pid)
	}
	if sm.Identifier != pid {
		return domainagg.Errorf(domainagg.CodeInvalidSystemMetadata, op,
			"identifier in system metadata does not match the PID. sysmeta=%q pid=%q", sm.Identifier, pid)
	}
	if err := sysmeta.CheckNewObject(sm); err != nil {
		return invalidSysMeta(op, err)
	}
	if err := sysmeta.CheckContent(sm, content); err != nil {
		return invalidSysMeta(op, err)
	}
	return nil
}

// stampNodeValues sets the fields this node controls on every stored document.
func (a *scienceObjectAggregate) stampNodeValues(sm *sysmeta.SystemMetadata, subject string, now time.Time) {
	sm.SerialVersion = 1
	sm.DateUploaded = &now
	sm.DateSysMetadataModified = &now
	if s := strings.TrimSpace(subject); s != "" {
		sm.Submitter = s
	}
	if a.deps.NodeID != "" {
		sm.OriginMemberNode = a.deps.NodeID
		sm.AuthoritativeMemberNode = a.deps.NodeID
	}
	f := false
	sm.Archived = &f
}

// requireUnused locks did and fails when it is in use as a PID or SID.
func (a *scienceObjectAggregate) requireUnused(dbc dbctx.Context, op, did string) error {
	ident, err := a.deps.Identifiers.Lock(dbc, did)
	if err != nil {
		return err
	}
	if !ident.InUse() {
		return nil
	}
	what, err := a.deps.Identifiers.Classify(dbc, did)
	if err != nil {
		return err
	}
	return domainagg.Errorf(domainagg.CodeIdentifierConflict, op, "identifier is already in use as %s. did=%q", what, did)
}

// storeVersion reserves pid, writes the bytes and inserts a standalone version
// in a chain of its own. It reports the written key through key.
func (a *scienceObjectAggregate) storeVersion(dbc dbctx.Context, pid string, sm *sysmeta.SystemMetadata, content []byte, key *string) (*types.ScienceObject, error) {
	ident, err := a.deps.Identifiers.Reserve(dbc, pid, types.KindPID)
	if err != nil {
		return nil, err
	}
	k := objstore.KeyFor(pid)
	if _, err := a.deps.Store.Put(dbc.Ctx, k, bytes.NewReader(content)); err != nil {
		return nil, err
	}
	*key = k

	raw, err := sysmeta.Marshal(sm)
	if err != nil {
		return nil, err
	}
	algo, _ := sysmeta.CanonicalAlgorithm(sm.Checksum.Algorithm)
	obj := &types.ScienceObject{
		IdentifierID:            ident.ID,
		SerialVersion:           sm.SerialVersion,
		FormatID:                sm.FormatID,
		FileName:                sm.FileName,
		Size:                    sm.Size,
		Checksum:                strings.ToLower(sm.Checksum.Value),
		ChecksumAlgorithm:       algo,
		Submitter:               sm.Submitter,
		RightsHolder:            sm.RightsHolder,
		OriginMemberNode:        sm.OriginMemberNode,
		AuthoritativeMemberNode: sm.AuthoritativeMemberNode,
		StorageKey:              k,
		SysMetaXML:              string(raw),
		UploadedAt:              *sm.DateUploaded,
		ModifiedAt:              *sm.DateSysMetadataModified,
	}
	if err := a.deps.Objects.Create(dbc, obj); err != nil {
		return nil, err
	}
	if _, err := a.deps.Chains.Create(dbc, ident.ID, nil); err != nil {
		return nil, err
	}
	obj.Identifier = ident
	return obj, nil
}

// discard removes bytes written by a transaction that did not commit.
func (a *scienceObjectAggregate) discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := a.deps.Store.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, objstore.ErrNotExist) {
		a.log.Warn("Failed to remove bytes of rolled back version", "key", key, "error", err)
	}
}

func (a *scienceObjectAggregate) announce(ctx context.Context, event string, res domainagg.ObjectResult) {
	a.deps.Metrics.IncChainEvent(event)
	if a.deps.Bus == nil {
		return
	}
	ev := realtime.ChainEvent{Event: event, PID: res.PID, SID: res.SID, HeadPID: res.HeadPID, At: res.At}
	if err := a.deps.Bus.Publish(context.WithoutCancel(ctx), ev); err != nil {
		a.log.Warn("Failed to publish chain event", "event", event, "pid", res.PID, "error", err)
	}
}

func (a *scienceObjectAggregate) Create(ctx context.Context, in domainagg.CreateObjectInput) (domainagg.ObjectResult, error) {
	const op = "ScienceObject.Create"
	var out domainagg.ObjectResult
	if err := a.configured(op); err != nil {
		return out, err
	}
	pid := in.PID
	if pid == "" && in.SysMeta != nil {
		pid = in.SysMeta.Identifier
	}
	if err := a.authorize(ctx, op, in.Subject, domainagg.ActionCreate, pid); err != nil {
		return out, err
	}
	if err := checkIncoming(op, pid, in.SysMeta, in.Content); err != nil {
		return out, err
	}
	sm := in.SysMeta.Clone()
	if sm.Obsoletes != "" && !in.Import {
		return out, domainagg.Errorf(domainagg.CodeInvalidSystemMetadata, op,
			"obsoletes cannot be specified for this method. obsoletes=%q", sm.Obsoletes)
	}
	if err := a.checkFormat(ctx, op, sm.FormatID); err != nil {
		return out, err
	}
	now := a.deps.Now()
	a.stampNodeValues(sm, in.Subject, now)

	var key string
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		key = ""
		if err := a.requireUnused(dbc, op, pid); err != nil {
			return err
		}
		sid := sm.SeriesID
		if sm.Obsoletes != "" {
			headSID, err := a.importTarget(dbc, op, sm.Obsoletes)
			if err != nil {
				return err
			}
			if sid != "" && headSID != "" && sid != headSID {
				return domainagg.Errorf(domainagg.CodeIdentifierConflict, op,
					"a different SID is already assigned to the chain. existing_sid=%q new_sid=%q", headSID, sid)
			}
			if sid == "" {
				sid = headSID
				sm.SeriesID = headSID
			}
			if sid != "" && headSID == "" {
				if err := a.requireUnused(dbc, op, sid); err != nil {
					return err
				}
			}
		} else if sid != "" {
			if err := a.requireUnused(dbc, op, sid); err != nil {
				return err
			}
		}

		obj, err := a.storeVersion(dbc, pid, sm, in.Content, &key)
		if err != nil {
			return err
		}
		if sm.Obsoletes != "" {
			if err := a.deps.Engine.AppendVersion(dbc, pid, sm.Obsoletes); err != nil {
				return err
			}
		}
		if sid != "" {
			if err := a.deps.Resolver.Bind(dbc, sid, pid); err != nil {
				return err
			}
		}
		meta := map[string]any{}
		if sid != "" {
			meta["sid"] = sid
		}
		if sm.Obsoletes != "" {
			meta["obsoletes"] = sm.Obsoletes
		}
		if _, err := a.deps.Events.Record(dbc, pid, types.EventCreate, in.Subject, meta); err != nil {
			return err
		}
		out = domainagg.ObjectResult{
			PID:           pid,
			SID:           sid,
			HeadPID:       pid,
			SerialVersion: obj.SerialVersion,
			Changed:       true,
			At:            now,
		}
		return nil
	})
	if err != nil {
		a.discard(ctx, key)
		return domainagg.ObjectResult{}, err
	}
	a.log.Info("Created object", "pid", pid, "sid", out.SID, "import", in.Import)
	a.announce(ctx, types.EventCreate, out)
	return out, nil
}

// importTarget locks the head an imported version will obsolete and returns
// the SID of its chain.
func (a *scienceObjectAggregate) importTarget(dbc dbctx.Context, op, headPID string) (string, error) {
	ident, err := a.deps.Identifiers.Lock(dbc, headPID)
	if err != nil {
		return "", err
	}
	if ident == nil || ident.Kind != types.KindPID {
		return "", domainagg.Errorf(domainagg.CodeNotFound, op, "obsoleted object does not exist. pid=%q", headPID)
	}
	sid, _, err := a.deps.Resolver.HasSID(dbc, headPID)
	return sid, err
}

func (a *scienceObjectAggregate) Update(ctx context.Context, in domainagg.UpdateObjectInput) (domainagg.ObjectResult, error) {
	const op = "ScienceObject.Update"
	var out domainagg.ObjectResult
	if err := a.configured(op); err != nil {
		return out, err
	}
	if err := a.authorize(ctx, op, in.Subject, domainagg.ActionUpdate, in.OldPID); err != nil {
		return out, err
	}
	if in.OldPID == "" {
		return out, MapError(op, ValidationError("old pid is required"))
	}
	if in.OldPID == in.NewPID {
		return out, domainagg.Errorf(domainagg.CodeIdentifierConflict, op, "new PID must differ from the obsoleted PID. pid=%q", in.NewPID)
	}
	if err := checkIncoming(op, in.NewPID, in.SysMeta, in.Content); err != nil {
		return out, err
	}
	sm := in.SysMeta.Clone()
	if sm.Obsoletes != "" && sm.Obsoletes != in.OldPID {
		return out, domainagg.Errorf(domainagg.CodeInvalidSystemMetadata, op,
			"obsoletes in system metadata does not match the obsoleted PID. obsoletes=%q pid=%q", sm.Obsoletes, in.OldPID)
	}
	if err := a.checkFormat(ctx, op, sm.FormatID); err != nil {
		return out, err
	}
	now := a.deps.Now()
	a.stampNodeValues(sm, in.Subject, now)
	sm.Obsoletes = in.OldPID

	var key string
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		key = ""
		oldIdent, err := a.deps.Identifiers.Lock(dbc, in.OldPID)
		if err != nil {
			return err
		}
		switch {
		case oldIdent == nil || oldIdent.Kind == types.KindDeleted:
			return domainagg.Errorf(domainagg.CodeNotFound, op, "object does not exist. pid=%q", in.OldPID)
		case oldIdent.Kind == types.KindSID:
			return domainagg.Errorf(domainagg.CodeInvalidRequest, op, "update requires a PID, not a SID. did=%q", in.OldPID)
		}
		old, err := a.deps.Objects.GetByPID(dbc, in.OldPID)
		if err != nil {
			return err
		}
		if old == nil {
			return domainagg.Errorf(domainagg.CodeNotFound, op, "object does not exist. pid=%q", in.OldPID)
		}
		if old.Archived {
			return domainagg.Errorf(domainagg.CodeInvalidRequest, op, "an archived object cannot be updated. pid=%q", in.OldPID)
		}
		if !old.IsHead() {
			return domainagg.Errorf(domainagg.CodeChainIntegrity, op,
				"object has already been obsoleted. pid=%q obsoletedBy=%q", in.OldPID, old.ObsoletedByPID())
		}
		if err := a.requireUnused(dbc, op, in.NewPID); err != nil {
			return err
		}

		chainSID, _, err := a.deps.Resolver.HasSID(dbc, in.OldPID)
		if err != nil {
			return err
		}
		sid := sm.SeriesID
		switch {
		case sid == "":
			sid = chainSID
			sm.SeriesID = chainSID
		case chainSID != "" && sid != chainSID:
			return domainagg.Errorf(domainagg.CodeIdentifierConflict, op,
				"a different SID is already assigned to the chain. existing_sid=%q new_sid=%q pid=%q", chainSID, sid, in.OldPID)
		case chainSID == "":
			if err := a.requireUnused(dbc, op, sid); err != nil {
				return err
			}
		}

		obj, err := a.storeVersion(dbc, in.NewPID, sm, in.Content, &key)
		if err != nil {
			return err
		}
		if err := a.deps.Engine.AppendVersion(dbc, in.NewPID, in.OldPID); err != nil {
			return err
		}
		if sid != "" {
			if err := a.deps.Resolver.Bind(dbc, sid, in.NewPID); err != nil {
				return err
			}
		}
		meta := map[string]any{"obsoletes": in.OldPID}
		if sid != "" {
			meta["sid"] = sid
		}
		if _, err := a.deps.Events.Record(dbc, in.NewPID, types.EventUpdate, in.Subject, meta); err != nil {
			return err
		}
		out = domainagg.ObjectResult{
			PID:           in.NewPID,
			SID:           sid,
			HeadPID:       in.NewPID,
			SerialVersion: obj.SerialVersion,
			Changed:       true,
			At:            now,
		}
		return nil
	})
	if err != nil {
		a.discard(ctx, key)
		return domainagg.ObjectResult{}, err
	}
	a.log.Info("Updated object", "old_pid", in.OldPID, "new_pid", in.NewPID, "sid", out.SID)
	a.announce(ctx, types.EventUpdate, out)
	return out, nil
}

// lockResolved resolves did (PID or SID) and locks the PID it denotes.
func (a *scienceObjectAggregate) lockResolved(dbc dbctx.Context, did string) (pid, sid string, err error) {
	pid, sid, err = a.deps.Resolver.ResolveDID(dbc, did)
	if err != nil {
		return "", "", err
	}
	if _, err := a.deps.Identifiers.Lock(dbc, pid); err != nil {
		return "", "", err
	}
	return pid, sid, nil
}

func (a *scienceObjectAggregate) Delete(ctx context.Context, in domainagg.DeleteObjectInput) (domainagg.ObjectResult, error) {
	const op = "ScienceObject.Delete"
	var out domainagg.ObjectResult
	if err := a.configured(op); err != nil {
		return out, err
	}
	if err := a.authorize(ctx, op, in.Subject, domainagg.ActionDelete, in.DID); err != nil {
		return out, err
	}
	if strings.TrimSpace(in.DID) == "" {
		return out, MapError(op, ValidationError("identifier is required"))
	}
	now := a.deps.Now()

	var removedKey string
	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		removedKey = ""
		pid, sid, err := a.lockResolved(dbc, in.DID)
		if err != nil {
			return err
		}
		removed, err := a.deps.Engine.DeleteVersion(dbc, pid)
		if err != nil {
			return err
		}
		removedKey = removed.StorageKey

		head := ""
		anchor := removed.ObsoletesPID()
		if anchor == "" {
			anchor = removed.ObsoletedByPID()
		}
		if anchor != "" {
			h, err := a.deps.Engine.Head(dbc, anchor)
			if err != nil {
				return err
			}
			head = h.PID()
		} else {
			sid = ""
		}
		meta := map[string]any{}
		if sid != "" {
			meta["sid"] = sid
		}
		if head != "" {
			meta["head"] = head
		}
		if _, err := a.deps.Events.Record(dbc, pid, types.EventDelete, in.Subject, meta); err != nil {
			return err
		}
		out = domainagg.ObjectResult{PID: pid, SID: sid, HeadPID: head, Changed: true, At: now}
		return nil
	})
	if err != nil {
		return domainagg.ObjectResult{}, err
	}
	if err := a.deps.Store.Delete(context.WithoutCancel(ctx), removedKey); err != nil && !errors.Is(err, objstore.ErrNotExist) {
		a.log.Warn("Deleted object but failed to remove its bytes", "pid", out.PID, "key", removedKey, "error", err)
	}
	a.log.Info("Deleted object", "pid", out.PID, "sid", out.SID, "head", out.HeadPID)
	a.announce(ctx, types.EventDelete, out)
	return out, nil
}

func (a *scienceObjectAggregate) Archive(ctx context.Context, in domainagg.ArchiveObjectInput) (domainagg.ObjectResult, error) {
	const op = "ScienceObject.Archive"
	var out domainagg.ObjectResult
	if err := a.configured(op); err != nil {
		return out, err
	}
	if err := a.authorize(ctx, op, in.Subject, domainagg.ActionArchive, in.DID); err != nil {
		return out, err
	}
	if strings.TrimSpace(in.DID) == "" {
		return out, MapError(op, ValidationError("identifier is required"))
	}
	now := a.deps.Now()

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		pid, sid, err := a.lockResolved(dbc, in.DID)
		if err != nil {
			return err
		}
		obj, err := a.deps.Objects.GetByPID(dbc, pid)
		if err != nil {
			return err
		}
		if obj == nil {
			return domainagg.Errorf(domainagg.CodeNotFound, op, "object does not exist. pid=%q", pid)
		}
		head, err := a.deps.Engine.Head(dbc, pid)
		if err != nil {
			return err
		}
		out = domainagg.ObjectResult{
			PID:           pid,
			SID:           sid,
			HeadPID:       head.PID(),
			SerialVersion: obj.SerialVersion,
			Archived:      true,
			At:            now,
		}
		if obj.Archived {
			return nil
		}

		serial := obj.SerialVersion + 1
		updates := map[string]any{
			"archived":       true,
			"serial_version": serial,
			"modified_at":    now,
		}
		if obj.SysMetaXML != "" {
			sm, err := sysmeta.Unmarshal([]byte(obj.SysMetaXML))
			if err != nil {
				return err
			}
			t := true
			sm.Archived = &t
			sm.SerialVersion = serial
			sm.DateSysMetadataModified = &now
			raw, err := sysmeta.Marshal(sm)
			if err != nil {
				return err
			}
			updates["sysmeta_xml"] = string(raw)
		}
		ok, err := a.deps.Base.CASGuard.UpdateByVersion(dbc, types.ScienceObject{}.TableName(), obj.ID, obj.SerialVersion, updates)
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "object changed while archiving"); err != nil {
			return err
		}
		if _, err := a.deps.Events.Record(dbc, pid, types.EventArchive, in.Subject, nil); err != nil {
			return err
		}
		out.SerialVersion = serial
		out.Changed = true
		return nil
	})
	if err != nil {
		return domainagg.ObjectResult{}, err
	}
	if !out.Changed {
		a.log.Debug("Object already archived", "pid", out.PID)
		return out, nil
	}
	a.log.Info("Archived object", "pid", out.PID)
	a.announce(ctx, types.EventArchive, out)
	return out, nil
}

func (a *scienceObjectAggregate) describe(dbc dbctx.Context, op, did string) (*types.ScienceObject, domainagg.ObjectDescription, error) {
	var desc domainagg.ObjectDescription
	pid, sid, err := a.deps.Resolver.ResolveDID(dbc, did)
	if err != nil {
		return nil, desc, err
	}
	obj, err := a.deps.Objects.GetByPID(dbc, pid)
	if err != nil {
		return nil, desc, err
	}
	if obj == nil {
		return nil, desc, domainagg.Errorf(domainagg.CodeNotFound, op, "object does not exist. pid=%q", pid)
	}
	head, err := a.deps.Engine.Head(dbc, pid)
	if err != nil {
		return nil, desc, err
	}
	desc = domainagg.ObjectDescription{
		PID:           pid,
		SID:           sid,
		HeadPID:       head.PID(),
		Obsoletes:     obj.ObsoletesPID(),
		ObsoletedBy:   obj.ObsoletedByPID(),
		FormatID:      obj.FormatID,
		Size:          obj.Size,
		Checksum:      obj.Checksum,
		ChecksumAlgo:  obj.ChecksumAlgorithm,
		SerialVersion: obj.SerialVersion,
		Archived:      obj.Archived,
		ModifiedAt:    obj.ModifiedAt,
	}
	if obj.SysMetaXML != "" {
		if sm, err := sysmeta.Unmarshal([]byte(obj.SysMetaXML)); err != nil {
			a.log.Warn("Stored system metadata is unreadable", "pid", pid, "error", err)
		} else {
			desc.SysMeta = sm
		}
	}
	return obj, desc, nil
}

func (a *scienceObjectAggregate) Describe(ctx context.Context, did string) (domainagg.ObjectDescription, error) {
	const op = "ScienceObject.Describe"
	var out domainagg.ObjectDescription
	if err := a.configured(op); err != nil {
		return out, err
	}
	err := executeRead(ctx, op, func(dbc dbctx.Context) error {
		_, desc, err := a.describe(dbc, op, did)
		out = desc
		return err
	})
	return out, err
}

func (a *scienceObjectAggregate) Open(ctx context.Context, did string) (io.ReadCloser, domainagg.ObjectDescription, error) {
	const op = "ScienceObject.Open"
	var (
		out domainagg.ObjectDescription
		key string
	)
	if err := a.configured(op); err != nil {
		return nil, out, err
	}
	err := executeRead(ctx, op, func(dbc dbctx.Context) error {
		obj, desc, err := a.describe(dbc, op, did)
		if err != nil {
			return err
		}
		out, key = desc, obj.StorageKey
		return nil
	})
	if err != nil {
		return nil, out, err
	}
	rc, err := a.deps.Store.Open(ctx, key)
	if errors.Is(err, objstore.ErrNotExist) {
		return nil, out, domainagg.Errorf(domainagg.CodeInternal, op, "bytes of stored object are missing. pid=%q", out.PID)
	}
	if err != nil {
		return nil, out, MapError(op, err)
	}
	return rc, out, nil
}
