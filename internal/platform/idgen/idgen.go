// Package idgen produces candidate identifiers that are not yet in use.
package idgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	SchemeUUID = "UUID"

	defaultAttempts = 8
)

// UsedChecker reports whether an identifier is taken.
type UsedChecker interface {
	IsUsed(ctx context.Context, did string) (bool, error)
}

// UsedCheckerFunc adapts a function to UsedChecker.
type UsedCheckerFunc func(ctx context.Context, did string) (bool, error)

func (f UsedCheckerFunc) IsUsed(ctx context.Context, did string) (bool, error) { return f(ctx, did) }

type Generator struct {
	checker  UsedChecker
	newID    func() string
	attempts int
}

func New(checker UsedChecker) *Generator {
	return &Generator{
		checker:  checker,
		newID:    func() string { return uuid.New().String() },
		attempts: defaultAttempts,
	}
}

// Generate returns an unused identifier for scheme. A non-empty fragment is
// prepended as "<fragment>-<uuid>".
func (g *Generator) Generate(ctx context.Context, scheme, fragment string) (string, error) {
	scheme = strings.TrimSpace(scheme)
	if scheme == "" {
		scheme = SchemeUUID
	}
	if !strings.EqualFold(scheme, SchemeUUID) {
		return "", fmt.Errorf("unsupported identifier scheme %q", scheme)
	}
	fragment = strings.TrimSpace(fragment)
	if strings.ContainsAny(fragment, " \t\r\n") {
		return "", fmt.Errorf("fragment must not contain whitespace")
	}
	for i := 0; i < g.attempts; i++ {
		did := g.newID()
		if fragment != "" {
			did = fragment + "-" + did
		}
		if g.checker == nil {
			return did, nil
		}
		used, err := g.checker.IsUsed(ctx, did)
		if err != nil {
			return "", err
		}
		if !used {
			return did, nil
		}
	}
	return "", fmt.Errorf("no unused identifier after %d attempts", g.attempts)
}
