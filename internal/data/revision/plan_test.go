package revision

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
)

func TestBuildPlanDerivesObsoletedBy(t *testing.T) {
	p := BuildPlan([]string{"c", "a", "b"}, []domainagg.RevisionRecord{
		{PID: "a"},
		{PID: "b", Obsoletes: "a", SID: "old-series"},
		{PID: "c", Obsoletes: "b", SID: "series"},
	})
	if diff := cmp.Diff(map[string]string{"b": "a", "c": "b"}, p.Obsoletes); diff != "" {
		t.Fatalf("obsoletes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"a": "b", "b": "c"}, p.ObsoletedBy); diff != "" {
		t.Fatalf("obsoletedBy mismatch (-want +got):\n%s", diff)
	}
	want := []Component{{Members: []string{"a", "b", "c"}, SID: "series"}}
	if diff := cmp.Diff(want, p.Components); diff != "" {
		t.Fatalf("components mismatch (-want +got):\n%s", diff)
	}
	if len(p.Dropped) != 0 {
		t.Fatalf("nothing should be dropped, got %v", p.Dropped)
	}
}

func TestBuildPlanDropsBadLinks(t *testing.T) {
	p := BuildPlan([]string{"a", "b", "c", "x", "y"}, []domainagg.RevisionRecord{
		{PID: "b", Obsoletes: "a"},
		{PID: "c", Obsoletes: "a"},
		{PID: "x", Obsoletes: "missing"},
		{PID: "y", Obsoletes: "y"},
		{PID: "ghost", Obsoletes: "a"},
	})
	if diff := cmp.Diff(map[string]string{"b": "a"}, p.Obsoletes); diff != "" {
		t.Fatalf("obsoletes mismatch (-want +got):\n%s", diff)
	}
	if p.Skipped != 1 {
		t.Fatalf("skipped: want=1 got=%d", p.Skipped)
	}
	if len(p.Dropped) != 3 {
		t.Fatalf("dropped: want=3 got=%v", p.Dropped)
	}
	want := []Component{
		{Members: []string{"a", "b"}},
		{Members: []string{"c"}},
		{Members: []string{"x"}},
		{Members: []string{"y"}},
	}
	if diff := cmp.Diff(want, p.Components); diff != "" {
		t.Fatalf("components mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanBreaksCycles(t *testing.T) {
	p := BuildPlan([]string{"a", "b", "c"}, []domainagg.RevisionRecord{
		{PID: "a", Obsoletes: "c"},
		{PID: "b", Obsoletes: "a"},
		{PID: "c", Obsoletes: "b"},
	})
	if _, ok := p.Obsoletes["a"]; ok {
		t.Fatalf("cycle should be broken at the smallest pid, got %v", p.Obsoletes)
	}
	want := []Component{{Members: []string{"a", "b", "c"}}}
	if diff := cmp.Diff(want, p.Components); diff != "" {
		t.Fatalf("components mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanSIDClaims(t *testing.T) {
	p := BuildPlan([]string{"a", "b", "c"}, []domainagg.RevisionRecord{
		{PID: "a", SID: "series"},
		{PID: "b", SID: "series"},
		{PID: "c", SID: "a"},
	})
	want := []Component{
		{Members: []string{"a"}, SID: "series"},
		{Members: []string{"b"}},
		{Members: []string{"c"}},
	}
	if diff := cmp.Diff(want, p.Components); diff != "" {
		t.Fatalf("components mismatch (-want +got):\n%s", diff)
	}
	if len(p.Dropped) != 2 {
		t.Fatalf("dropped: want=2 got=%v", p.Dropped)
	}
}

func TestPlanRecordsCoversEveryPID(t *testing.T) {
	p := BuildPlan([]string{"a", "b", "z"}, []domainagg.RevisionRecord{
		{PID: "b", Obsoletes: "a", SID: "s"},
	})
	want := []domainagg.RevisionRecord{
		{PID: "a", ObsoletedBy: "b", SID: "s"},
		{PID: "b", Obsoletes: "a", SID: "s"},
		{PID: "z"},
	}
	if diff := cmp.Diff(want, p.Records()); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}
