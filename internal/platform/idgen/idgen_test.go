package idgen

import (
	"context"
	"strings"
	"testing"
)

func TestGenerateSkipsUsedCandidates(t *testing.T) {
	seq := []string{"taken", "taken", "free"}
	g := New(UsedCheckerFunc(func(_ context.Context, did string) (bool, error) {
		return did == "doi-taken", nil
	}))
	g.newID = func() string {
		id := seq[0]
		seq = seq[1:]
		return id
	}
	got, err := g.Generate(context.Background(), "", "doi")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "doi-free" {
		t.Fatalf("want doi-free got %q", got)
	}
}

func TestGenerateGivesUp(t *testing.T) {
	g := New(UsedCheckerFunc(func(context.Context, string) (bool, error) { return true, nil }))
	if _, err := g.Generate(context.Background(), SchemeUUID, ""); err == nil {
		t.Fatalf("expected error when every candidate is used")
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	g := New(nil)
	if _, err := g.Generate(context.Background(), "ARK", ""); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
	if _, err := g.Generate(context.Background(), "uuid", "a b"); err == nil {
		t.Fatalf("expected whitespace fragment error")
	}
	id, err := g.Generate(context.Background(), "uuid", "")
	if err != nil || len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Fatalf("unexpected uuid %q err=%v", id, err)
	}
}
