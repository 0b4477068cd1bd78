package revision

import (
	"fmt"
	"sort"

	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
)

// Plan is the revision state a repair run converges to. It covers every
// stored PID; PIDs without a record are planned as standalone.
type Plan struct {
	PIDs        []string
	Obsoletes   map[string]string
	ObsoletedBy map[string]string
	Components  []Component
	Skipped     int
	Dropped     []string
}

// Component is one chain of the plan, oldest version first.
type Component struct {
	Members []string
	SID     string
}

func (c Component) Head() string { return c.Members[len(c.Members)-1] }

// BuildPlan derives a consistent plan from records. The obsoletes field of a
// record is authoritative and obsoletedBy is derived from it. Links to PIDs
// that are not stored, second claims on the same predecessor, and cycles are
// dropped and reported.
func BuildPlan(stored []string, records []domainagg.RevisionRecord) Plan {
	p := Plan{
		Obsoletes:   map[string]string{},
		ObsoletedBy: map[string]string{},
	}
	storedSet := make(map[string]bool, len(stored))
	for _, pid := range stored {
		if pid != "" && !storedSet[pid] {
			storedSet[pid] = true
			p.PIDs = append(p.PIDs, pid)
		}
	}
	sort.Strings(p.PIDs)

	byPID := make(map[string]domainagg.RevisionRecord, len(records))
	for _, rec := range records {
		if !storedSet[rec.PID] {
			p.Skipped++
			continue
		}
		if _, dup := byPID[rec.PID]; dup {
			p.Skipped++
			p.drop("%s: duplicate record ignored", rec.PID)
			continue
		}
		byPID[rec.PID] = rec
	}

	claimedBy := map[string]string{}
	for _, pid := range p.PIDs {
		rec, ok := byPID[pid]
		if !ok || rec.Obsoletes == "" {
			continue
		}
		prev := rec.Obsoletes
		switch {
		case prev == pid:
			p.drop("%s: obsoletes itself", pid)
		case !storedSet[prev]:
			p.drop("%s: obsoletes %s which is not stored", pid, prev)
		case claimedBy[prev] != "":
			p.drop("%s: obsoletes %s which is already obsoleted by %s", pid, prev, claimedBy[prev])
		default:
			p.Obsoletes[pid] = prev
			claimedBy[prev] = pid
		}
	}
	p.breakCycles()
	for pid, prev := range p.Obsoletes {
		p.ObsoletedBy[prev] = pid
	}
	for _, pid := range p.PIDs {
		rec, ok := byPID[pid]
		if ok && rec.ObsoletedBy != "" && rec.ObsoletedBy != p.ObsoletedBy[pid] {
			p.drop("%s: obsoletedBy %s disagrees with obsoletes links; using %q", pid, rec.ObsoletedBy, p.ObsoletedBy[pid])
		}
	}
	p.buildComponents(byPID)
	return p
}

func (p *Plan) drop(format string, args ...any) {
	p.Dropped = append(p.Dropped, fmt.Sprintf(format, args...))
}

// breakCycles removes, for every obsoletes cycle, the link held by the
// lexicographically smallest PID in it.
func (p *Plan) breakCycles() {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(p.PIDs))
	for _, start := range p.PIDs {
		if state[start] != unvisited {
			continue
		}
		var path []string
		cur := start
		for {
			if state[cur] == done {
				break
			}
			if state[cur] == onPath {
				idx := 0
				for i, v := range path {
					if v == cur {
						idx = i
						break
					}
				}
				cycle := path[idx:]
				victim := cycle[0]
				for _, v := range cycle {
					if v < victim {
						victim = v
					}
				}
				p.drop("%s: obsoletes %s closes a revision cycle", victim, p.Obsoletes[victim])
				delete(p.Obsoletes, victim)
				break
			}
			state[cur] = onPath
			path = append(path, cur)
			next, ok := p.Obsoletes[cur]
			if !ok {
				break
			}
			cur = next
		}
		for _, v := range path {
			state[v] = done
		}
	}
}

func (p *Plan) buildComponents(byPID map[string]domainagg.RevisionRecord) {
	sidOwner := map[string]string{}
	for _, pid := range p.PIDs {
		if _, hasPrev := p.Obsoletes[pid]; hasPrev {
			continue
		}
		members := []string{pid}
		for cur := pid; ; {
			next, ok := p.ObsoletedBy[cur]
			if !ok {
				break
			}
			members = append(members, next)
			cur = next
		}
		comp := Component{Members: members}
		// The newest version that names a SID decides it.
		for i := len(members) - 1; i >= 0; i-- {
			if sid := byPID[members[i]].SID; sid != "" {
				comp.SID = sid
				break
			}
		}
		if comp.SID != "" {
			switch owner, taken := sidOwner[comp.SID]; {
			case taken:
				p.drop("%s: SID %s already belongs to the chain headed by %s", comp.Head(), comp.SID, owner)
				comp.SID = ""
			case containsSorted(p.PIDs, comp.SID):
				p.drop("%s: SID %s is a stored PID", comp.Head(), comp.SID)
				comp.SID = ""
			default:
				sidOwner[comp.SID] = comp.Head()
			}
		}
		p.Components = append(p.Components, comp)
	}
}

func containsSorted(sorted []string, did string) bool {
	i := sort.SearchStrings(sorted, did)
	return i < len(sorted) && sorted[i] == did
}

// Records renders the plan in record form, one per stored PID.
func (p Plan) Records() []domainagg.RevisionRecord {
	sidOf := map[string]string{}
	for _, c := range p.Components {
		for _, m := range c.Members {
			sidOf[m] = c.SID
		}
	}
	out := make([]domainagg.RevisionRecord, 0, len(p.PIDs))
	for _, pid := range p.PIDs {
		out = append(out, domainagg.RevisionRecord{
			PID:         pid,
			Obsoletes:   p.Obsoletes[pid],
			ObsoletedBy: p.ObsoletedBy[pid],
			SID:         sidOf[pid],
		})
	}
	return out
}
