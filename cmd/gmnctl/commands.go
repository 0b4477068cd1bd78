package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/membernode/internal/app"
	"github.com/yungbote/membernode/internal/data/revision"
	domainagg "github.com/yungbote/membernode/internal/domain/aggregates"
	"github.com/yungbote/membernode/internal/platform/idgen"
)

const cliSubject = "gmnctl"

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update tables, indexes and default object formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, func(_ context.Context, a *app.App) error {
				fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", a.Cfg.DBDriver)
				return nil
			})
		},
	}
}

func newRepairChainsCmd() *cobra.Command {
	var source, manifest string
	cmd := &cobra.Command{
		Use:   "repair-chains",
		Short: "Rebuild revision links, chains and SID bindings from an authoritative source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app.App) error {
				var src domainagg.RevisionSource
				switch strings.ToLower(strings.TrimSpace(source)) {
				case "sysmeta", "":
					src = revision.NewSysMetaSource(a.Log, a.Repos.Objects)
				case "manifest":
					if strings.TrimSpace(manifest) == "" {
						return fmt.Errorf("--manifest is required with --source=manifest")
					}
					src = revision.NewManifestSource(manifest)
				default:
					return fmt.Errorf("unknown --source %q (allowed: sysmeta, manifest)", source)
				}
				report, err := a.Maintenance.RepairAllChains(ctx, src)
				if err != nil {
					return err
				}
				printRepairReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "sysmeta", "authoritative record source: sysmeta or manifest")
	cmd.Flags().StringVar(&manifest, "manifest", "", "manifest file written by export-chains")
	return cmd
}

func printRepairReport(w io.Writer, r domainagg.RepairReport) {
	fmt.Fprintf(w, "source:         %s\n", r.Source)
	fmt.Fprintf(w, "records:        %d\n", r.Records)
	fmt.Fprintf(w, "skipped:        %d\n", r.Skipped)
	fmt.Fprintf(w, "links changed:  %d\n", r.LinksChanged)
	fmt.Fprintf(w, "chains rebuilt: %d\n", r.ChainsRebuilt)
	fmt.Fprintf(w, "sids bound:     %d\n", r.SIDsBound)
	fmt.Fprintf(w, "chains removed: %d\n", r.ChainsRemoved)
	for _, d := range r.DroppedLinks {
		fmt.Fprintf(w, "dropped: %s\n", d)
	}
	for _, head := range r.Stale {
		fmt.Fprintf(w, "stale:   %s (changed during repair, rerun to converge)\n", head)
	}
	fmt.Fprintf(w, "took:           %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}

func newExportChainsCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-chains",
		Short: "Write every revision link and SID binding as a YAML manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app.App) error {
				recs, err := a.Maintenance.Export(ctx)
				if err != nil {
					return err
				}
				m := revision.Manifest{
					Version:     revision.ManifestVersion,
					Node:        a.Cfg.NodeID,
					GeneratedAt: time.Now().UTC(),
					Records:     recs,
				}
				if out == "" || out == "-" {
					return revision.WriteManifest(cmd.OutOrStdout(), m)
				}
				if err := revision.WriteManifestFile(out, m); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records to %s\n", len(recs), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "manifest path, - for stdout")
	return cmd
}

func newVerifyChainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-chains",
		Short: "Check every revision chain and report integrity violations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app.App) error {
				report, err := a.Maintenance.Verify(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "objects: %d chains: %d violations: %d\n", report.Objects, report.Chains, len(report.Violations))
				for _, v := range report.Violations {
					fmt.Fprintf(w, "  %s: %s\n", v.PID, v.Message)
				}
				if len(report.Violations) > 0 {
					return fmt.Errorf("%d chain violations found; run repair-chains", len(report.Violations))
				}
				return nil
			})
		},
	}
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <pid-or-sid>",
		Short: "Show the version a PID or SID refers to and its chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				desc, err := a.Objects.Describe(ctx, args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "pid:          %s\n", desc.PID)
				fmt.Fprintf(w, "sid:          %s\n", desc.SID)
				fmt.Fprintf(w, "head:         %s\n", desc.HeadPID)
				fmt.Fprintf(w, "obsoletes:    %s\n", desc.Obsoletes)
				fmt.Fprintf(w, "obsoleted by: %s\n", desc.ObsoletedBy)
				fmt.Fprintf(w, "format:       %s\n", desc.FormatID)
				fmt.Fprintf(w, "size:         %d\n", desc.Size)
				fmt.Fprintf(w, "checksum:     %s:%s\n", desc.ChecksumAlgo, desc.Checksum)
				fmt.Fprintf(w, "serial:       %d\n", desc.SerialVersion)
				fmt.Fprintf(w, "archived:     %t\n", desc.Archived)
				return nil
			})
		},
	}
}

func newGenerateIDCmd() *cobra.Command {
	var scheme, fragment string
	cmd := &cobra.Command{
		Use:   "generate-id",
		Short: "Print an identifier that is not used on this node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				did, err := a.IDs.Generate(ctx, scheme, fragment)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), did)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&scheme, "scheme", idgen.SchemeUUID, "identifier scheme")
	cmd.Flags().StringVar(&fragment, "fragment", "", "prefix for the generated identifier")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "delete <pid-or-sid>",
		Short: "Delete a version and reconnect its chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				res, err := a.Objects.Delete(ctx, domainagg.DeleteObjectInput{DID: args[0], Subject: subject})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (head now %q, sid %q)\n", res.PID, res.HeadPID, res.SID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", subjectFromEnv(), "subject recorded in the event log")
	return cmd
}

func newArchiveCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "archive <pid-or-sid>",
		Short: "Archive a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				res, err := a.Objects.Archive(ctx, domainagg.ArchiveObjectInput{DID: args[0], Subject: subject})
				if err != nil {
					return err
				}
				if !res.Changed {
					fmt.Fprintf(cmd.OutOrStdout(), "%s was already archived\n", res.PID)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "archived %s (serial %d)\n", res.PID, res.SerialVersion)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", subjectFromEnv(), "subject recorded in the event log")
	return cmd
}

func subjectFromEnv() string {
	if s := strings.TrimSpace(os.Getenv("GMN_SUBJECT")); s != "" {
		return s
	}
	return cliSubject
}
