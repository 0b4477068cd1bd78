package revision

import (
	"context"
	"fmt"

	"github.com/yungbote/membernode/internal/data/repos"
	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/platform/dbctx"
	"github.com/yungbote/membernode/internal/platform/logger"
	"github.com/yungbote/membernode/internal/platform/sysmeta"
)

const sourcePageSize = 500

// SysMetaSource reads revision records from the System Metadata stored with
// every version. A version whose document cannot be parsed contributes its
// current database links instead.
type SysMetaSource struct {
	log  *logger.Logger
	objs repos.ScienceObjectRepo
}

func NewSysMetaSource(log *logger.Logger, objs repos.ScienceObjectRepo) *SysMetaSource {
	if log == nil {
		log = logger.Nop()
	}
	return &SysMetaSource{log: log.With("source", "sysmeta"), objs: objs}
}

func (s *SysMetaSource) Name() string { return "sysmeta" }

func (s *SysMetaSource) Records(ctx context.Context) ([]domainagg.RevisionRecord, error) {
	dbc := dbctx.Background(ctx)
	var (
		out     []domainagg.RevisionRecord
		afterID int64
	)
	for {
		page, err := s.objs.ListPage(dbc, afterID, sourcePageSize)
		if err != nil {
			return nil, fmt.Errorf("list objects after id %d: %w", afterID, err)
		}
		if len(page) == 0 {
			break
		}
		for _, obj := range page {
			afterID = obj.ID
			rec := domainagg.RevisionRecord{PID: obj.PID()}
			if obj.SysMetaXML == "" {
				rec.Obsoletes = obj.ObsoletesPID()
				rec.ObsoletedBy = obj.ObsoletedByPID()
				out = append(out, rec)
				continue
			}
			sm, err := sysmeta.Unmarshal([]byte(obj.SysMetaXML))
			if err != nil {
				s.log.Warn("Unreadable system metadata; keeping stored links", "pid", rec.PID, "error", err)
				rec.Obsoletes = obj.ObsoletesPID()
				rec.ObsoletedBy = obj.ObsoletedByPID()
			} else {
				rec.Obsoletes = sm.Obsoletes
				rec.ObsoletedBy = sm.ObsoletedBy
				rec.SID = sm.SeriesID
			}
			out = append(out, rec)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	s.log.Info("Collected revision records", "records", len(out))
	return out, nil
}

// ManifestSource reads revision records from a manifest file.
type ManifestSource struct {
	Path string
}

func NewManifestSource(path string) *ManifestSource { return &ManifestSource{Path: path} }

func (s *ManifestSource) Name() string { return "manifest:" + s.Path }

func (s *ManifestSource) Records(ctx context.Context) ([]domainagg.RevisionRecord, error) {
	m, err := ReadManifestFile(s.Path)
	if err != nil {
		return nil, err
	}
	return m.Records, nil
}

// StaticSource serves a fixed record set.
type StaticSource struct {
	Label string
	Recs  []domainagg.RevisionRecord
}

func (s StaticSource) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

func (s StaticSource) Records(ctx context.Context) ([]domainagg.RevisionRecord, error) {
	out := make([]domainagg.RevisionRecord, len(s.Recs))
	copy(out, s.Recs)
	return out, nil
}
