package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/membernode/internal/data/aggregates"
	"github.com/yungbote/membernode/internal/platform/dbctx"
)

// FaultyTxRunner wraps a real runner and fails chosen transactions after
// their body ran, so the database rolls everything back. FailOnCall picks
// the 1-based transaction to fail; zero fails every one.
type FaultyTxRunner struct {
	mu sync.Mutex

	Inner      aggregates.TxRunner
	FailCommit error
	FailOnCall int

	Calls     int
	Commits   int
	Rollbacks int
}

var _ aggregates.TxRunner = (*FaultyTxRunner)(nil)

func (r *FaultyTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.Calls++
	var injected error
	if r.FailOnCall == 0 || r.FailOnCall == r.Calls {
		injected = r.FailCommit
	}
	r.mu.Unlock()

	body := func(dbc dbctx.Context) error {
		if fn != nil {
			if err := fn(dbc); err != nil {
				return err
			}
		}
		return injected
	}
	var err error
	if r.Inner != nil {
		err = r.Inner.InTx(ctx, body)
	} else {
		err = body(dbctx.Context{Ctx: ctx})
	}

	r.mu.Lock()
	if err != nil {
		r.Rollbacks++
	} else {
		r.Commits++
	}
	r.mu.Unlock()
	return err
}
