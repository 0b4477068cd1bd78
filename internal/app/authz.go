package app

import (
	"context"
	"fmt"
	"strings"

	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
)

// subjectAllowlist lets listed subjects perform every write. Certificate and
// token handling happen before a subject reaches it.
type subjectAllowlist map[string]struct{}

func newAuthorizer(subjects []string) domainagg.Authorizer {
	if len(subjects) == 0 {
		return nil
	}
	allow := subjectAllowlist{}
	for _, s := range subjects {
		allow[strings.TrimSpace(s)] = struct{}{}
	}
	return allow
}

func (a subjectAllowlist) Authorize(_ context.Context, subject string, action domainagg.Action, did string) error {
	if _, ok := a[strings.TrimSpace(subject)]; ok {
		return nil
	}
	return domainagg.NewError(domainagg.CodeNotAuthorized, "authorize."+string(action),
		fmt.Sprintf("subject %q may not %s %q", subject, action, did), nil)
}
