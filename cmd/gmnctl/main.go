// Command gmnctl runs maintenance tasks against a Member Node database:
// migrations, revision chain repair, export and verification.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/membernode/internal/app"
	"github.com/yungbote/membernode/internal/platform/apierr"
	"github.com/yungbote/membernode/internal/platform/instancelock"
)

var newApp = app.New

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

// describeError prefixes err with the DataONE exception a client would see.
func describeError(err error) string {
	e := apierr.FromError(err)
	return fmt.Sprintf("%s (%d): %v", e.Code, e.Status, err)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gmnctl",
		Short:         "Member Node maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newRepairChainsCmd(),
		newExportChainsCmd(),
		newVerifyChainsCmd(),
		newResolveCmd(),
		newGenerateIDCmd(),
		newDeleteCmd(),
		newArchiveCmd(),
	)
	return root
}

// withApp builds the node, optionally under the single-instance lock, and
// runs fn against it. The lock is taken before migrations run.
func withApp(cmd *cobra.Command, exclusive bool, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if exclusive {
		lock, err := instancelock.Acquire(app.LoadConfig(nil).LockPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				fmt.Fprintf(os.Stderr, "release %s: %v\n", lock.Path(), err)
			}
		}()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	a.Start()
	return fn(ctx, a)
}
