package revision

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/platform/dbctx"
)

const ManifestVersion = 1

// Manifest is the portable form of every revision link and SID binding of a node.
type Manifest struct {
	Version     int                        `yaml:"version"`
	Node        string                     `yaml:"node,omitempty"`
	GeneratedAt time.Time                  `yaml:"generated_at"`
	Records     []domainagg.RevisionRecord `yaml:"records"`
}

func WriteManifest(w io.Writer, m Manifest) error {
	if m.Version == 0 {
		m.Version = ManifestVersion
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return enc.Close()
}

func ReadManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != ManifestVersion {
		return Manifest{}, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	for i, rec := range m.Records {
		if rec.PID == "" {
			return Manifest{}, fmt.Errorf("manifest record %d has no pid", i)
		}
	}
	return m, nil
}

func ReadManifestFile(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, err
	}
	defer f.Close()
	return ReadManifest(f)
}

// WriteManifestFile writes m next to path and renames it into place.
func WriteManifestFile(path string, m Manifest) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := WriteManifest(tmp, m); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Export returns one record per stored version, sorted by PID, describing its
// stored links and the SID of its chain.
func (e *Engine) Export(dbc dbctx.Context) ([]domainagg.RevisionRecord, error) {
	chains, err := e.chains.ListAll(dbc)
	if err != nil {
		return nil, err
	}
	sidOf := map[int64]string{}
	for _, c := range chains {
		sid := c.SIDDID()
		if sid == "" {
			continue
		}
		members, err := e.chains.MemberIDs(dbc, c.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range members {
			sidOf[id] = sid
		}
	}

	var (
		out     []domainagg.RevisionRecord
		afterID int64
	)
	for {
		page, err := e.objs.ListPage(dbc, afterID, sourcePageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, obj := range page {
			afterID = obj.ID
			out = append(out, domainagg.RevisionRecord{
				PID:         obj.PID(),
				Obsoletes:   obj.ObsoletesPID(),
				ObsoletedBy: obj.ObsoletedByPID(),
				SID:         sidOf[obj.IdentifierID],
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}
