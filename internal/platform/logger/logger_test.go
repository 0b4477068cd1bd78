package logger

import (
	"strings"
	"testing"
)

func TestScrubFields(t *testing.T) {
	out := scrub([]any{"subject", "CN=Jane Doe,O=Example,C=US", "pid", "urn:uuid:1", "postgres_password", "hunter2"})
	if len(out) != 6 {
		t.Fatalf("len: want=6 got=%d", len(out))
	}
	subj, _ := out[1].(string)
	if !strings.HasPrefix(subj, "hash:") || len(subj) != len("hash:")+12 {
		t.Fatalf("subject not pseudonymized: %q", subj)
	}
	if again := scrub([]any{"subject", "CN=Jane Doe,O=Example,C=US"}); again[1] != subj {
		t.Fatalf("pseudonym should be stable: %v vs %v", again[1], subj)
	}
	if out[3] != "urn:uuid:1" {
		t.Fatalf("pid must pass through, got %v", out[3])
	}
	if out[5] != "[REDACTED]" {
		t.Fatalf("password must be redacted, got %v", out[5])
	}
}

func TestScrubNestedAndOddLength(t *testing.T) {
	out := scrub([]any{"ctx", map[string]any{"DB_DSN": "postgres://u:p@h/db", "node": "urn:node:X"}, "dangling"})
	m, ok := out[1].(map[string]any)
	if !ok || m["DB_DSN"] != "[REDACTED]" || m["node"] != "urn:node:X" {
		t.Fatalf("nested map: %v", out[1])
	}
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestNewNopMode(t *testing.T) {
	l, err := New("nop")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("discarded", "pid", "x")
	l.With("op", "test").Warn("discarded")
}
